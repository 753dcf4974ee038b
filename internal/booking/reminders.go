package booking

import (
	"context"
	"time"
)

// DueReminders returns reminders eligible to send at now: each confirmed
// appointment has a 24h-before and a 2h-before instant, and a reminder is due
// only within ±window of its instant (tolerating polling jitter) and only if
// its sent flag is unset. The caller sends and then marks via
// MarkReminderSent; the flag is what prevents re-sends.
func (s *Service) DueReminders(ctx context.Context, now time.Time, window time.Duration) ([]Reminder, error) {
	// 24h reminders are the furthest ahead we ever look.
	appts, err := s.store.ListUpcomingConfirmed(ctx, now, now.Add(24*time.Hour+window))
	if err != nil {
		return nil, err
	}

	var due []Reminder
	for _, appt := range appts {
		if !appt.Reminder24Sent {
			at := appt.StartsAt.Add(-24 * time.Hour)
			if withinWindow(now, at, window) {
				due = append(due, Reminder{Appointment: appt, Kind: Reminder24h, At: at})
			}
		}
		if !appt.Reminder2Sent {
			at := appt.StartsAt.Add(-2 * time.Hour)
			if withinWindow(now, at, window) {
				due = append(due, Reminder{Appointment: appt, Kind: Reminder2h, At: at})
			}
		}
	}
	return due, nil
}

// MarkReminderSent records that a reminder went out.
func (s *Service) MarkReminderSent(ctx context.Context, reminder Reminder) error {
	return s.store.MarkReminderSent(ctx, reminder.Appointment.ID, reminder.Kind)
}

func withinWindow(now, at time.Time, window time.Duration) bool {
	diff := now.Sub(at)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}
