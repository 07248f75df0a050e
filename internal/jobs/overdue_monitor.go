package jobs

import (
	"context"
	"log"
	"time"

	"qa-escrow/internal/metrics"
	"qa-escrow/internal/models"
)

// OverdueSource lists questions whose deadline passed while they still hold
// their deposit.
type OverdueSource interface {
	GetExpiredQuestions(ctx context.Context) ([]*models.Question, error)
}

// OverdueMonitor periodically reports questions waiting for their creator
// to approve an answer or take a refund. It never moves funds: both
// operations belong to the creator alone.
type OverdueMonitor struct {
	ledger   OverdueSource
	metrics  *metrics.LedgerMetrics
	interval time.Duration
	stopChan chan struct{}
	reported map[uint64]struct{}
}

// NewOverdueMonitor creates a new overdue question monitor job
func NewOverdueMonitor(ledger OverdueSource, m *metrics.LedgerMetrics, interval time.Duration) *OverdueMonitor {
	return &OverdueMonitor{
		ledger:   ledger,
		metrics:  m,
		interval: interval,
		stopChan: make(chan struct{}),
		reported: make(map[uint64]struct{}),
	}
}

// Start begins the scan loop
func (om *OverdueMonitor) Start() {
	log.Printf("[OverdueMonitor] Starting overdue question scan (interval: %v)", om.interval)

	ticker := time.NewTicker(om.interval)
	defer ticker.Stop()

	om.Scan(context.Background())
	for {
		select {
		case <-ticker.C:
			om.Scan(context.Background())
		case <-om.stopChan:
			log.Println("[OverdueMonitor] Stopping overdue question scan")
			return
		}
	}
}

// Stop stops the scan loop
func (om *OverdueMonitor) Stop() {
	close(om.stopChan)
}

// Scan updates the overdue gauge and logs each overdue question once. It
// returns the number of questions currently overdue.
func (om *OverdueMonitor) Scan(ctx context.Context) int {
	questions, err := om.ledger.GetExpiredQuestions(ctx)
	if err != nil {
		log.Printf("[OverdueMonitor] Error fetching overdue questions: %v", err)
		return 0
	}

	om.metrics.SetOverdueQuestions(len(questions))

	current := make(map[uint64]struct{}, len(questions))
	for _, q := range questions {
		current[q.ID] = struct{}{}
		if _, seen := om.reported[q.ID]; seen {
			continue
		}
		log.Printf("[OverdueMonitor] Question %d by %s is past its deadline (%d) with %d lamports locked",
			q.ID, q.Creator, q.Deadline, q.LockedAmount)
	}
	// Closed questions drop out so the map does not grow forever.
	om.reported = current

	return len(questions)
}
