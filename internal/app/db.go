package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lichtrinh-service/internal/schedule"
)

var (
	errEmailTaken       = errors.New("email already registered")
	errForeignTask      = errors.New("task does not belong to user")
	errNegativeDuration = errors.New("end_at must not be before start_at")
)

func (a *App) InsertUser(ctx context.Context, email, passwordHash string) (*User, error) {
	q := `INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id, email, created_at`
	var u User
	err := a.DB.QueryRow(ctx, q, email, passwordHash).Scan(&u.ID, &u.Email, &u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, errEmailTaken
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *App) UserCredentials(ctx context.Context, email string) (int64, string, error) {
	var (
		id   int64
		hash string
	)
	err := a.DB.QueryRow(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return id, hash, err
}

const taskColumns = `id, user_id, title, description, estimated_minutes, fixed_start_at, created_at`

func scanTask(row pgx.Row) (*schedule.Task, error) {
	var t schedule.Task
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description,
		&t.EstimatedMinutes, &t.FixedStart, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (a *App) InsertTask(ctx context.Context, t *schedule.Task) error {
	q := `INSERT INTO tasks (user_id, title, description, estimated_minutes, fixed_start_at)
	      VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`
	return a.DB.QueryRow(ctx, q, t.UserID, t.Title, t.Description, t.EstimatedMinutes, t.FixedStart).
		Scan(&t.ID, &t.CreatedAt)
}

func (a *App) UpdateTask(ctx context.Context, t *schedule.Task) error {
	q := `UPDATE tasks SET title=$1, description=$2, estimated_minutes=$3, fixed_start_at=$4
	      WHERE id=$5 AND user_id=$6 RETURNING created_at`
	return a.DB.QueryRow(ctx, q, t.Title, t.Description, t.EstimatedMinutes, t.FixedStart, t.ID, t.UserID).
		Scan(&t.CreatedAt)
}

func (a *App) DeleteTask(ctx context.Context, userID, taskID int64) (bool, error) {
	res, err := a.DB.Exec(ctx, `DELETE FROM tasks WHERE id=$1 AND user_id=$2`, taskID, userID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (a *App) GetTask(ctx context.Context, userID, taskID int64) (*schedule.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1 AND user_id=$2`
	return scanTask(a.DB.QueryRow(ctx, q, taskID, userID))
}

func (a *App) ListTasks(ctx context.Context, userID int64) ([]schedule.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id=$1 ORDER BY id`
	rows, err := a.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []schedule.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// FetchTask implements schedule.TaskSource. It does not scope by user:
// the resolver only asks for task ids found on the user's own entries.
func (a *App) FetchTask(ctx context.Context, taskID int64) (*schedule.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1`
	t, err := scanTask(a.DB.QueryRow(ctx, q, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// instantText renders a timestamptz as RFC3339 UTC text, independent of
// the session's DateStyle and TimeZone.
const instantText = `to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')`

// FetchScheduleEntries implements schedule.Store. Timestamps are read as
// text; parsing and zone handling belong to the resolver.
func (a *App) FetchScheduleEntries(ctx context.Context, userID int64) ([]schedule.StoredEntry, error) {
	q := `SELECT id, task_id, user_id, ` +
		fmt.Sprintf(instantText, "start_at") + `, ` +
		fmt.Sprintf(instantText, "end_at") + `, created_at
	      FROM schedule_entries WHERE user_id=$1`
	rows, err := a.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.StoredEntry
	for rows.Next() {
		var e schedule.StoredEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &e.StartAt, &e.EndAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *App) ListScheduleEntries(ctx context.Context, userID int64) ([]schedule.Entry, error) {
	q := `SELECT id, task_id, user_id, start_at, end_at, created_at
	      FROM schedule_entries
	      WHERE user_id=$1 AND start_at IS NOT NULL
	      ORDER BY start_at, id`
	rows, err := a.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []schedule.Entry{}
	for rows.Next() {
		var e schedule.Entry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UserID, &e.Start, &e.End, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertScheduleEntry stores e. A task reference must be owned by the same
// user.
func (a *App) InsertScheduleEntry(ctx context.Context, e *schedule.Entry) error {
	if e.End != nil && e.End.Before(e.Start) {
		return fmt.Errorf("%w: %s < %s", errNegativeDuration, e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
	}
	if e.TaskID != nil {
		var owner int64
		err := a.DB.QueryRow(ctx, `SELECT user_id FROM tasks WHERE id=$1`, *e.TaskID).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != e.UserID) {
			return errForeignTask
		}
		if err != nil {
			return err
		}
	}
	q := `INSERT INTO schedule_entries (task_id, user_id, start_at, end_at)
	      VALUES ($1,$2,$3,$4) RETURNING id, created_at`
	return a.DB.QueryRow(ctx, q, e.TaskID, e.UserID, e.Start.UTC(), utcPtr(e.End)).Scan(&e.ID, &e.CreatedAt)
}

func (a *App) DeleteScheduleEntry(ctx context.Context, userID, entryID int64) (bool, error) {
	res, err := a.DB.Exec(ctx, `DELETE FROM schedule_entries WHERE id=$1 AND user_id=$2`, entryID, userID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// importedEntry is a schedule entry sourced from an external calendar.
type importedEntry struct {
	ExternalID string
	Start      time.Time
	End        *time.Time
}

// SyncImportedEntries mirrors external events into a user's schedule in
// one transaction. Events are upserted by external id; previously imported
// entries from the same source that start inside [from, to) and are absent
// from entries are removed.
func (a *App) SyncImportedEntries(ctx context.Context, userID int64, source string, from, to time.Time, entries []importedEntry) (upserted, removed int, err error) {
	tx, err := a.DB.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT external_id FROM schedule_entries
	      WHERE user_id=$1 AND source=$2 AND external_id IS NOT NULL
	        AND start_at >= $3 AND start_at < $4`, userID, source, from.UTC(), to.UTC())
	if err != nil {
		return 0, 0, err
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, 0, err
	}

	if stale := staleExternalIDs(existing, entries); len(stale) > 0 {
		tag, err := tx.Exec(ctx, `DELETE FROM schedule_entries
		      WHERE user_id=$1 AND source=$2 AND external_id = ANY($3)`, userID, source, stale)
		if err != nil {
			return 0, 0, err
		}
		removed = int(tag.RowsAffected())
	}

	q := `INSERT INTO schedule_entries (user_id, start_at, end_at, source, external_id)
	      VALUES ($1,$2,$3,$4,$5)
	      ON CONFLICT (user_id, source, external_id) WHERE external_id IS NOT NULL
	      DO UPDATE SET start_at=EXCLUDED.start_at, end_at=EXCLUDED.end_at`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, q, userID, e.Start.UTC(), utcPtr(e.End), source, e.ExternalID); err != nil {
			return 0, 0, err
		}
		upserted++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return upserted, removed, nil
}

// staleExternalIDs returns the sorted ids in existing that no entry carries.
func staleExternalIDs(existing []string, entries []importedEntry) []string {
	keep := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keep[e.ExternalID] = struct{}{}
	}
	var stale []string
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	slices.Sort(stale)
	return slices.Compact(stale)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
