package scheduler

import (
	"time"

	"tickvault/internal/config"
	"tickvault/internal/loader"
	"tickvault/internal/logger"
	"tickvault/internal/market"
	"tickvault/internal/ops"

	"github.com/go-co-op/gocron"
)

// LoadSubmitter is the submission slice the scheduler needs.
type LoadSubmitter interface {
	SubmitLoad(req loader.LoadRequest) (ops.Operation, error)
}

// Scheduler periodically submits tail-mode loads so configured datasets stay
// fresh near now. A target with a load already in flight is skipped; the next
// tick picks up whatever the running one missed.
type Scheduler struct {
	cron     *gocron.Scheduler
	svc      LoadSubmitter
	registry *ops.Registry
	cfg      config.SchedulerConfig
}

func New(svc LoadSubmitter, registry *ops.Registry, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		svc:      svc,
		registry: registry,
		cfg:      cfg,
	}
}

// Start registers the refresh job and launches the scheduler loop. No-op
// when disabled.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		return
	}
	logger.Infof("[scheduler] tail refresh every %dm for %d targets", s.cfg.IntervalMinutes, len(s.cfg.Targets))
	s.cron.Every(s.cfg.IntervalMinutes).Minutes().Do(s.refreshAll)
	s.cron.StartAsync()
}

// Stop halts the scheduler loop. Operations already submitted keep running.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) refreshAll() {
	for _, target := range s.cfg.Targets {
		s.refresh(target)
	}
}

func (s *Scheduler) refresh(target config.SchedulerTarget) {
	tf, err := market.ParseTimeframe(target.Timeframe)
	if err != nil {
		logger.Errorf("[scheduler] bad target %s/%s: %v", target.Symbol, target.Timeframe, err)
		return
	}
	if s.registry.ActiveForKey(ops.TypeDataLoad, target.Symbol, tf.Key) {
		logger.Debugf("[scheduler] %s %s busy, skipping tick", target.Symbol, tf.Key)
		return
	}
	now := time.Now().UnixMilli()
	start := now - s.cfg.TailLookbackBars*tf.Millis()
	op, err := s.svc.SubmitLoad(loader.LoadRequest{
		Symbol:    target.Symbol,
		Timeframe: tf.Key,
		Start:     start,
		End:       now,
		Mode:      loader.ModeTail,
	})
	if err != nil {
		logger.Warnf("[scheduler] submitting tail load %s %s failed: %v", target.Symbol, tf.Key, err)
		return
	}
	logger.Infof("[scheduler] tail load %s submitted for %s %s", op.ID, target.Symbol, tf.Key)
}
