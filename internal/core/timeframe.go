package core

import (
	"errors"
	"fmt"
	"time"
)

// TimeFrame selects a window of time relative to "now".
type TimeFrame uint8

const (
	All TimeFrame = iota
	Week
	Month
	PrevMonth
	YTD
	Year
	numTimeFrames
)

var ErrUnknownTimeFrame = errors.New("unknown time frame")

var timeFrameKeys = [numTimeFrames]string{
	All:       "all",
	Week:      "week",
	Month:     "month",
	PrevMonth: "prevMonth",
	YTD:       "ytd",
	Year:      "year",
}

var timeFrameLabels = [numTimeFrames]string{
	All:       "All Time",
	Week:      "This Week",
	Month:     "This Month",
	PrevMonth: "Previous Month",
	YTD:       "Year to Date",
	Year:      "Last 12 Months",
}

// TimeFrames returns every time frame in display order.
func TimeFrames() []TimeFrame {
	out := make([]TimeFrame, 0, numTimeFrames)
	for tf := All; tf < numTimeFrames; tf++ {
		out = append(out, tf)
	}
	return out
}

// ParseTimeFrame maps a request key ("all", "prevMonth", ...) to a TimeFrame.
// An empty key selects All.
func ParseTimeFrame(s string) (TimeFrame, error) {
	if s == "" {
		return All, nil
	}
	for i, k := range timeFrameKeys {
		if k == s {
			return TimeFrame(i), nil
		}
	}
	return All, fmt.Errorf("%w: %q", ErrUnknownTimeFrame, s)
}

func (tf TimeFrame) String() string {
	tf.mustValid()
	return timeFrameKeys[tf]
}

// Label is the human readable name shown in the selector.
func (tf TimeFrame) Label() string {
	tf.mustValid()
	return timeFrameLabels[tf]
}

func (tf TimeFrame) mustValid() {
	if tf >= numTimeFrames {
		panic(fmt.Sprintf("core: invalid TimeFrame %d", uint8(tf)))
	}
}

// Window is a closed [Start, End] time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// ResolveWindow computes the window selected by tf at instant now.
// Calendar boundaries are taken in now's location.
func ResolveWindow(tf TimeFrame, now time.Time) Window {
	loc := now.Location()
	y, m, d := now.Date()
	switch tf {
	case All:
		return Window{Start: time.Unix(0, 0).In(loc), End: now}
	case Week:
		// time.Date normalises a non-positive day into the previous month.
		return Window{Start: time.Date(y, m, d-int(now.Weekday()), 0, 0, 0, 0, loc), End: now}
	case Month:
		return Window{Start: time.Date(y, m, 1, 0, 0, 0, 0, loc), End: now}
	case PrevMonth:
		thisMonth := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		return Window{
			Start: time.Date(y, m-1, 1, 0, 0, 0, 0, loc),
			End:   thisMonth.Add(-time.Nanosecond),
		}
	case YTD:
		return Window{Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc), End: now}
	case Year:
		return Window{Start: time.Date(y-1, time.January, 1, 0, 0, 0, 0, loc), End: now}
	}
	tf.mustValid()
	panic("unreachable")
}
