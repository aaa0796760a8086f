package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// ReportStore keeps finalized session reports in insertion order.
type ReportStore struct {
	mu      sync.RWMutex
	reports []crawler.SessionReport
}

// NewReportStore returns an empty ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// SaveReport implements crawler.ReportStore.
func (s *ReportStore) SaveReport(_ context.Context, report crawler.SessionReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

// Reports returns a copy of the saved reports.
func (s *ReportStore) Reports() []crawler.SessionReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.SessionReport, len(s.reports))
	copy(out, s.reports)
	return out
}
