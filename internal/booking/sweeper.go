package booking

import (
	"context"
	"time"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/observability/metrics"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// ReminderSender delivers one due reminder to the patient.
type ReminderSender interface {
	SendReminder(ctx context.Context, reminder Reminder) error
}

// Sweeper periodically expires unpaid holds and dispatches due reminders.
// The core engine is poll-driven; the worker binary owns the ticker.
type Sweeper struct {
	service  *Service
	sender   ReminderSender
	interval time.Duration
	window   time.Duration
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// SweeperConfig wires the sweeper's collaborators.
type SweeperConfig struct {
	Service *Service
	// Sender may be nil; reminders are then skipped (holds still expire).
	Sender   ReminderSender
	Interval time.Duration
	// Window is the reminder eligibility tolerance around each instant. It
	// must be at least half the interval or reminders can fall between polls.
	Window  time.Duration
	Metrics *metrics.BookingMetrics
	Logger  *logging.Logger
}

func NewSweeper(cfg SweeperConfig) *Sweeper {
	if cfg.Service == nil {
		panic("booking: sweeper service required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Sweeper{
		service:  cfg.Service,
		sender:   cfg.Sender,
		interval: cfg.Interval,
		window:   cfg.Window,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("booking sweeper started", "interval", s.interval, "reminder_window", s.window)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("booking sweeper stopping")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass. Exposed so operators can force a
// sweep through the admin API.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	released, err := s.service.ExpireHolds(ctx, now)
	if err != nil {
		s.logger.Error("hold expiry sweep failed", "error", err)
	} else if released > 0 {
		s.metrics.ObserveHoldsExpired(released)
	}

	if s.sender == nil {
		return
	}
	due, err := s.service.DueReminders(ctx, now, s.window)
	if err != nil {
		s.logger.Error("reminder query failed", "error", err)
		return
	}
	for _, reminder := range due {
		// One bad reminder must not abort the rest of the batch.
		if err := s.sender.SendReminder(ctx, reminder); err != nil {
			s.logger.Error("failed to send reminder", "error", err,
				"appointment_id", reminder.Appointment.ID, "kind", reminder.Kind)
			continue
		}
		if err := s.service.MarkReminderSent(ctx, reminder); err != nil {
			s.logger.Error("failed to mark reminder sent", "error", err,
				"appointment_id", reminder.Appointment.ID, "kind", reminder.Kind)
			continue
		}
		s.metrics.ObserveReminderSent(string(reminder.Kind))
	}
}
