// Package sweep implements the periodic expiry of soft-deleted tasks: a
// task marked deleted is kept around for a retention window (so a cancelled
// delete can still be inspected) and is only hard-removed once that window
// has passed.
package sweep

import (
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/sagan/gridgen/internal/store"
)

var logger = log.WithField("component", "sweep")

// Sweeper hard-deletes soft-deleted tasks past their retention window on a
// cron schedule.
type Sweeper struct {
	store     *store.Store
	retention time.Duration
	cron      *cron.Cron
}

// New builds a Sweeper that runs on spec (a standard 5-field cron
// expression, e.g. "0 3 * * *" for daily at 03:00) and removes tasks
// soft-deleted more than retention ago.
func New(st *store.Store, retention time.Duration, spec string) (*Sweeper, error) {
	s := &Sweeper{
		store:     st,
		retention: retention,
		cron:      cron.New(),
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule, waiting for any in-flight run to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) runOnce() {
	cutoff := time.Now().Add(-s.retention)
	ids := s.store.ExpiredDeletedTasks(cutoff)
	for _, id := range ids {
		s.store.DeleteTaskAndSubtasks(id)
	}
	if len(ids) > 0 {
		logger.WithField("count", len(ids)).Info("swept expired tasks")
	}
}
