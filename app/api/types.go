package api

import (
	"context"
	"time"

	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/scheduler"
)

// CycleTrigger is the manual-run surface the API needs from the cycle runner.
type CycleTrigger interface {
	RunCycle(ctx context.Context) (scheduler.CycleSummary, error)
	Status() (bool, *time.Time, *scheduler.CycleSummary)
}

var _ CycleTrigger = (*scheduler.Runner)(nil)

type Handler struct {
	itemRepo   database.ItemRepository
	sourceRepo database.SourceRepository
	runner     CycleTrigger
}
