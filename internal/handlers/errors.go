package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qa-escrow/internal/services"
)

// statusForKind maps a rejection kind to its HTTP status
var statusForKind = map[services.ErrorKind]int{
	services.KindNotFound:        http.StatusNotFound,
	services.KindUnauthorized:    http.StatusForbidden,
	services.KindInvalidInput:    http.StatusBadRequest,
	services.KindInvalidState:    http.StatusConflict,
	services.KindTimingViolation: http.StatusConflict,
	services.KindMismatch:        http.StatusUnprocessableEntity,
}

// respondError writes a ledger rejection with its code and kind. Anything
// else is an internal failure and its details stay in the log.
func respondError(c *gin.Context, err error) {
	var ledgerErr *services.LedgerError
	if errors.As(err, &ledgerErr) {
		status, ok := statusForKind[ledgerErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{
			"error": ledgerErr.Message,
			"code":  ledgerErr.Code,
			"kind":  ledgerErr.Kind,
		})
		return
	}

	log.Printf("[API] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
