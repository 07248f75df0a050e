package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qa-escrow/internal/auth"
	"qa-escrow/internal/models"
	"qa-escrow/internal/services"
)

type QuestionHandler struct {
	ledger *services.LedgerService
}

func NewQuestionHandler(ledger *services.LedgerService) *QuestionHandler {
	return &QuestionHandler{
		ledger: ledger,
	}
}

// PostQuestion locks a deposit and opens a question
// POST /api/questions
func (h *QuestionHandler) PostQuestion(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.PostQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.ledger.PostQuestion(c.Request.Context(), caller, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewQuestionResponse(question, h.ledger.Now()))
}

// SubmitAnswer answers an open question
// POST /api/questions/:id/answers
func (h *QuestionHandler) SubmitAnswer(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	questionID, ok := questionIDParam(c)
	if !ok {
		return
	}

	var req models.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.ledger.SubmitAnswer(c.Request.Context(), caller, questionID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, answer)
}

// ApproveAnswer pays the question's deposit to the chosen answer
// POST /api/questions/:id/approve
func (h *QuestionHandler) ApproveAnswer(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	questionID, ok := questionIDParam(c)
	if !ok {
		return
	}

	var req models.ApproveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.ledger.ApproveAnswer(c.Request.Context(), caller, questionID, req.AnswerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewQuestionResponse(question, h.ledger.Now()))
}

// RefundQuestion returns the deposit to the question's creator
// POST /api/questions/:id/refund
func (h *QuestionHandler) RefundQuestion(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	questionID, ok := questionIDParam(c)
	if !ok {
		return
	}

	question, err := h.ledger.RefundQuestion(c.Request.Context(), caller, questionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewQuestionResponse(question, h.ledger.Now()))
}

// GetOpenQuestions lists questions still accepting answers
// GET /api/questions/open
func (h *QuestionHandler) GetOpenQuestions(c *gin.Context) {
	questions, err := h.ledger.GetAllOpenQuestions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondQuestions(c, questions)
}

// GetOverdueQuestions lists questions past their deadline awaiting settlement
// GET /api/questions/overdue
func (h *QuestionHandler) GetOverdueQuestions(c *gin.Context) {
	questions, err := h.ledger.GetExpiredQuestions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondQuestions(c, questions)
}

// ListQuestions filters questions by stored status
// GET /api/questions?status=ANSWERED
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	status, err := models.ParseQuestionStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	questions, err := h.ledger.GetQuestionsByStatus(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondQuestions(c, questions)
}

// GetQuestion retrieves a question by ID
// GET /api/questions/:id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	questionID, ok := questionIDParam(c)
	if !ok {
		return
	}

	question, err := h.ledger.GetQuestionDetails(c.Request.Context(), questionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewQuestionResponse(question, h.ledger.Now()))
}

// GetAnswers lists a question's answers in submission order
// GET /api/questions/:id/answers
func (h *QuestionHandler) GetAnswers(c *gin.Context) {
	questionID, ok := questionIDParam(c)
	if !ok {
		return
	}

	answers, err := h.ledger.GetAnswersForQuestion(c.Request.Context(), questionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answers": answers,
		"count":   len(answers),
	})
}

// GetUserQuestions lists every question posted by one wallet
// GET /api/users/:address/questions
func (h *QuestionHandler) GetUserQuestions(c *gin.Context) {
	questions, err := h.ledger.GetQuestionsByCreator(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondQuestions(c, questions)
}

func (h *QuestionHandler) respondQuestions(c *gin.Context, questions []*models.Question) {
	c.JSON(http.StatusOK, gin.H{
		"questions": models.NewQuestionResponses(questions, h.ledger.Now()),
		"count":     len(questions),
	})
}

func questionIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return 0, false
	}
	return id, true
}
