package service

import (
	"time"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns midnight of the Sunday on or before t.
func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// nextResetDate computes the boundary at which a leaderboard with the given
// reset period next rolls over: the start of the next day, week, or month.
// A never (or unknown) period has no boundary and yields nil.
func nextResetDate(p model.ResetPeriod, now time.Time) *time.Time {
	var next time.Time
	switch p {
	case model.ResetDaily:
		next = startOfDay(now.AddDate(0, 0, 1))
	case model.ResetWeekly:
		next = startOfWeek(now.AddDate(0, 0, 7))
	case model.ResetMonthly:
		next = time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	default:
		return nil
	}
	return &next
}

// timeFrameStart maps a ranking time frame to its lower created_at bound
// relative to now. All-time (or empty) has no bound.
func timeFrameStart(tf model.TimeFrame, now time.Time) *time.Time {
	var from time.Time
	switch tf {
	case model.TimeFrameToday:
		from = startOfDay(now)
	case model.TimeFrameThisWeek:
		from = startOfWeek(now)
	case model.TimeFrameThisMonth:
		from = startOfMonth(now)
	default:
		return nil
	}
	return &from
}
