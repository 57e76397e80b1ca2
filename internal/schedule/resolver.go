package schedule

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Store reads a user's schedule rows. Filtering by date is never pushed
// down; the resolver does it after normalization.
type Store interface {
	FetchScheduleEntries(ctx context.Context, userID int64) ([]StoredEntry, error)
}

// TaskSource returns (nil, nil) for a task that does not exist.
type TaskSource interface {
	FetchTask(ctx context.Context, taskID int64) (*Task, error)
}

// Resolver answers which of a user's entries fall inside a day/hour window
// of the target zone. It holds no mutable state.
type Resolver struct {
	store   Store
	tasks   TaskSource
	zone    *time.Location
	storage *time.Location
	log     *zap.Logger
}

type Option func(*Resolver)

// WithZone sets the zone day and hour membership is computed in.
func WithZone(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.zone = loc
		}
	}
}

// WithStorageZone sets the zone offset-less stored values are read in.
func WithStorageZone(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.storage = loc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

func NewResolver(store Store, tasks TaskSource, opts ...Option) *Resolver {
	r := &Resolver{
		store:   store,
		tasks:   tasks,
		zone:    time.UTC,
		storage: time.UTC,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) Zone() *time.Location { return r.zone }

// Today is the calendar day of now in the target zone.
func (r *Resolver) Today(now time.Time) Day {
	return Normalize(now, r.zone).Day
}

// ResolveToday resolves the window for the target-zone day containing now.
func (r *Resolver) ResolveToday(ctx context.Context, userID int64, now time.Time, hours *HourRange) (*Window, error) {
	return r.ResolveWindow(ctx, userID, r.Today(now), hours)
}

// ResolveWindow returns the user's entries on day (and inside hours, when
// given), ascending by start. Entries with unparseable timestamps are
// skipped and counted; a bad range or a failed fetch fails the call.
func (r *Resolver) ResolveWindow(ctx context.Context, userID int64, day Day, hours *HourRange) (*Window, error) {
	if hours != nil {
		if err := hours.Validate(); err != nil {
			return nil, err
		}
	}
	if day.IsZero() {
		return nil, fmt.Errorf("%w: zero day", ErrInvalidDay)
	}

	rows, err := r.store.FetchScheduleEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	w := &Window{Day: day, Hours: hours, Zone: r.zone.String(), Items: []Item{}}
	for _, row := range rows {
		if row.UserID != userID || row.StartAt == nil {
			continue
		}
		entry, err := r.parse(row)
		if err != nil {
			w.Skipped++
			r.log.Warn("skipping schedule entry",
				zap.Int64("entry_id", row.ID),
				zap.Int64("user_id", userID),
				zap.Error(err))
			continue
		}
		local := Normalize(entry.Start, r.zone)
		if !InWindow(local, day, hours) {
			continue
		}
		item := Item{Entry: entry, Local: local}
		if entry.Duration() < 0 {
			item.NegativeDuration = true
			w.Flagged++
		}
		w.Items = append(w.Items, item)
	}

	slices.SortStableFunc(w.Items, func(a, b Item) int {
		if c := a.Entry.Start.Compare(b.Entry.Start); c != 0 {
			return c
		}
		switch {
		case a.Entry.ID < b.Entry.ID:
			return -1
		case a.Entry.ID > b.Entry.ID:
			return 1
		}
		return 0
	})

	if err := r.attachTitles(ctx, w.Items); err != nil {
		return nil, err
	}
	if w.Flagged > 0 {
		r.log.Warn("schedule entries end before they start",
			zap.Int64("user_id", userID),
			zap.Int("count", w.Flagged))
	}
	return w, nil
}

func (r *Resolver) parse(row StoredEntry) (Entry, error) {
	start, err := ParseInstant(*row.StartAt, r.storage)
	if err != nil {
		return Entry{}, fmt.Errorf("start: %w", err)
	}
	e := Entry{
		ID:        row.ID,
		TaskID:    row.TaskID,
		UserID:    row.UserID,
		Start:     start,
		CreatedAt: row.CreatedAt,
	}
	if row.EndAt != nil {
		end, err := ParseInstant(*row.EndAt, r.storage)
		if err != nil {
			return Entry{}, fmt.Errorf("end: %w", err)
		}
		e.End = &end
	}
	return e, nil
}

// attachTitles left-joins task titles; a missing task leaves the title nil.
func (r *Resolver) attachTitles(ctx context.Context, items []Item) error {
	if r.tasks == nil {
		return nil
	}
	titles := make(map[int64]*string)
	for i := range items {
		id := items[i].Entry.TaskID
		if id == nil {
			continue
		}
		title, ok := titles[*id]
		if !ok {
			t, err := r.tasks.FetchTask(ctx, *id)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
			}
			if t != nil {
				s := t.Title
				title = &s
			}
			titles[*id] = title
		}
		items[i].TaskTitle = title
	}
	return nil
}
