package scheduler

import (
	"time"

	"github.com/jakub-mrow/AMS-backend/internal/modules/history"
	"github.com/jakub-mrow/AMS-backend/internal/modules/positions"
)

// Default schedules: snapshot shortly after midnight so yesterday is
// complete, prices every hour so each exchange is caught inside its
// post-close window.
const (
	SnapshotSchedule    = "30 0 * * *"
	PriceUpdateSchedule = "@hourly"
)

// SnapshotJob advances every account's daily history to yesterday.
type SnapshotJob struct {
	svc *history.Service
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(svc *history.Service) *SnapshotJob {
	return &SnapshotJob{svc: svc}
}

func (j *SnapshotJob) Name() string { return "daily_snapshot" }

func (j *SnapshotJob) Run() error {
	return j.svc.RunDailySnapshot()
}

// PriceUpdateJob refreshes quotes for held assets on exchanges that closed
// four to five hours ago.
type PriceUpdateJob struct {
	svc *positions.Service
	now func() time.Time
}

// NewPriceUpdateJob creates a new price update job
func NewPriceUpdateJob(svc *positions.Service) *PriceUpdateJob {
	return &PriceUpdateJob{svc: svc, now: time.Now}
}

func (j *PriceUpdateJob) Name() string { return "price_update" }

func (j *PriceUpdateJob) Run() error {
	return j.svc.RunPriceUpdate(j.now())
}
