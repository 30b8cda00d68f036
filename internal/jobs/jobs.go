package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"tapearn/internal/referral"
	"tapearn/lib/sl"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const integrityCheckTimeout = 5 * time.Minute

type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) (*referral.Report, error)
}

// ReportSink receives every completed integrity report, e.g. the admin bot digest.
type ReportSink interface {
	IntegrityReport(report *referral.Report)
}

type Scheduler struct {
	sched gocron.Scheduler
	log   *slog.Logger
}

func New(log *slog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{
		sched: sched,
		log:   log.With(sl.Module("jobs")),
	}, nil
}

// ScheduleIntegrityCheck runs the referral graph check every interval, the first
// run starts immediately. Runs never overlap. sink may be nil.
func (s *Scheduler) ScheduleIntegrityCheck(interval time.Duration, checker IntegrityChecker, sink ReportSink) error {
	if interval <= 0 {
		return fmt.Errorf("integrity check interval must be positive, got %s", interval)
	}
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			RunIntegrityCheck(context.Background(), checker, sink, s.log)
		}),
		gocron.WithName("referral-integrity"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule integrity check: %w", err)
	}
	s.log.With(slog.Duration("interval", interval)).Info("integrity check scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func RunIntegrityCheck(ctx context.Context, checker IntegrityChecker, sink ReportSink, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, integrityCheckTimeout)
	defer cancel()

	t1 := time.Now()
	report, err := checker.CheckIntegrity(ctx)
	if err != nil {
		log.Error("integrity check", sl.Err(err))
		return
	}
	log.With(
		slog.Int("edges", report.Edges),
		slog.Int("findings", len(report.Findings)),
		slog.Float64("duration", time.Since(t1).Seconds()),
	).Debug("integrity check finished")
	if sink != nil {
		sink.IntegrityReport(report)
	}
}
