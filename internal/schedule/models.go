package schedule

import "time"

// StoredEntry is a schedule row as read from storage. Timestamps are kept
// as raw text so that parsing happens in exactly one place.
type StoredEntry struct {
	ID        int64
	TaskID    *int64
	UserID    int64
	StartAt   *string
	EndAt     *string
	CreatedAt time.Time
}

// Entry is a schedule entry with parsed absolute instants.
type Entry struct {
	ID        int64      `json:"id"`
	TaskID    *int64     `json:"task_id"`
	UserID    int64      `json:"user_id"`
	Start     time.Time  `json:"start_at"`
	End       *time.Time `json:"end_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Duration returns End-Start, or zero when there is no end.
func (e Entry) Duration() time.Duration {
	if e.End == nil {
		return 0
	}
	return e.End.Sub(e.Start)
}

type Task struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	FixedStart       *time.Time `json:"fixed_start_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Item is one resolved row of a window query.
type Item struct {
	Entry            Entry     `json:"entry"`
	Local            LocalTime `json:"local"`
	TaskTitle        *string   `json:"task_title"`
	NegativeDuration bool      `json:"negative_duration,omitempty"`
}

// Window is the result of a window query. Skipped counts entries whose
// stored timestamps could not be parsed; Flagged counts returned items with
// a negative duration.
type Window struct {
	Day     Day        `json:"day"`
	Hours   *HourRange `json:"hours,omitempty"`
	Zone    string     `json:"zone"`
	Items   []Item     `json:"items"`
	Skipped int        `json:"skipped"`
	Flagged int        `json:"flagged"`
}
