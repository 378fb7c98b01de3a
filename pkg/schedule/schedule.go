package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	ErrInvalidTimeOfDay = errors.New("schedule: invalid time of day")
	ErrInvalidWeekday   = errors.New("schedule: invalid weekday")
)

// Window is a half open interval [Start, End) during which a session is
// expected to be connected.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Schedule yields the window containing now, or the next one to open.
type Schedule interface {
	Window(now time.Time) Window
}

// Resolve returns the window the session should run in and whether
// connecting now starts a new session, which is the case when the last
// connection predates the window or is unknown.
func Resolve(s Schedule, lastConnection time.Time, now time.Time) (Window, bool) {
	w := s.Window(now)
	return w, lastConnection.IsZero() || lastConnection.Before(w.Start)
}

// WaitForStart blocks until the window opens or ctx is done.
func WaitForStart(ctx context.Context, clk clock.Clock, w Window) error {
	d := w.Start.Sub(clk.Now())
	if d <= 0 {
		return nil
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Always is a single window that never closes.
type Always struct{}

var (
	alwaysStart = time.Unix(0, 0).UTC()
	alwaysEnd   = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
)

func (Always) Window(time.Time) Window {
	return Window{Start: alwaysStart, End: alwaysEnd}
}

type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	limits := []int{23, 59, 59}
	values := make([]int, 3)
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || len(part) == 0 || len(part) > 2 || v < 0 || v > limits[i] {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
		}
		values[i] = v
	}
	return TimeOfDay{Hour: values[0], Minute: values[1], Second: values[2]}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) on(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, t.Hour, t.Minute, t.Second, 0, loc)
}

// ParseWeekday accepts English day names or their three letter prefix in any
// case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if len(name) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			full := strings.ToLower(d.String())
			if name == full || name == full[:3] {
				return d, nil
			}
		}
	}
	return time.Sunday, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
}

// Daily opens a window every day from Start to End. An End that is not
// after Start closes the window the following day.
type Daily struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

func (d Daily) Window(now time.Time) Window {
	loc := location(d.Location)
	local := now.In(loc)
	y, m, day := local.Date()

	start := d.Start.on(y, m, day, loc)
	if start.After(local) {
		start = d.Start.on(y, m, day-1, loc)
	}
	w := Window{Start: start, End: d.endAfter(start)}
	if local.Before(w.End) {
		return w
	}
	sy, sm, sd := start.Date()
	next := d.Start.on(sy, sm, sd+1, loc)
	return Window{Start: next, End: d.endAfter(next)}
}

func (d Daily) endAfter(start time.Time) time.Time {
	y, m, day := start.Date()
	end := d.End.on(y, m, day, start.Location())
	if !end.After(start) {
		end = d.End.on(y, m, day+1, start.Location())
	}
	return end
}

// Weekly opens one window per week, from StartDay at Start to EndDay at End.
type Weekly struct {
	StartDay time.Weekday
	Start    TimeOfDay
	EndDay   time.Weekday
	End      TimeOfDay
	Location *time.Location
}

func (wk Weekly) Window(now time.Time) Window {
	loc := location(wk.Location)
	local := now.In(loc)
	y, m, day := local.Date()

	back := (int(local.Weekday()) - int(wk.StartDay) + 7) % 7
	start := wk.Start.on(y, m, day-back, loc)
	if start.After(local) {
		start = wk.Start.on(y, m, day-back-7, loc)
	}
	w := Window{Start: start, End: wk.endAfter(start)}
	if local.Before(w.End) {
		return w
	}
	sy, sm, sd := start.Date()
	next := wk.Start.on(sy, sm, sd+7, loc)
	return Window{Start: next, End: wk.endAfter(next)}
}

func (wk Weekly) endAfter(start time.Time) time.Time {
	y, m, day := start.Date()
	span := (int(wk.EndDay) - int(wk.StartDay) + 7) % 7
	end := wk.End.on(y, m, day+span, start.Location())
	if !end.After(start) {
		end = wk.End.on(y, m, day+span+7, start.Location())
	}
	return end
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
