package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// HourRange is the half-open hour-of-day interval [Start, End).
type HourRange struct {
	Start int `json:"from_hour"`
	End   int `json:"to_hour"`
}

func NewHourRange(start, end int) (HourRange, error) {
	h := HourRange{Start: start, End: end}
	if err := h.Validate(); err != nil {
		return HourRange{}, err
	}
	return h, nil
}

func (h HourRange) Validate() error {
	if h.Start < 0 || h.Start > 24 || h.End < 0 || h.End > 24 {
		return fmt.Errorf("%w: bounds must be within [0,24], got [%d,%d)", ErrInvalidRange, h.Start, h.End)
	}
	if h.Start >= h.End {
		return fmt.Errorf("%w: from_hour %d must be before to_hour %d", ErrInvalidRange, h.Start, h.End)
	}
	return nil
}

func (h HourRange) Contains(hour int) bool {
	return hour >= h.Start && hour < h.End
}

// ParseHourRange reads optional query values. Both empty means no range;
// a missing side defaults to 0 or 24.
func ParseHourRange(from, to string) (*HourRange, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" && to == "" {
		return nil, nil
	}
	h := HourRange{Start: 0, End: 24}
	var err error
	if from != "" {
		if h.Start, err = strconv.Atoi(from); err != nil {
			return nil, fmt.Errorf("%w: from_hour %q", ErrInvalidRange, from)
		}
	}
	if to != "" {
		if h.End, err = strconv.Atoi(to); err != nil {
			return nil, fmt.Errorf("%w: to_hour %q", ErrInvalidRange, to)
		}
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

// InWindow reports whether a normalized time falls on day and, when hours
// is set, inside the hour range.
func InWindow(l LocalTime, day Day, hours *HourRange) bool {
	if l.Day != day {
		return false
	}
	return hours == nil || hours.Contains(l.Hour)
}

// HourlyCounts buckets the window's items by normalized hour.
func HourlyCounts(w *Window) [24]int {
	var out [24]int
	if w == nil {
		return out
	}
	for _, it := range w.Items {
		if it.Local.Hour >= 0 && it.Local.Hour < 24 {
			out[it.Local.Hour]++
		}
	}
	return out
}
