package app

import "time"

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type credentialsReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type taskReq struct {
	Title            string  `json:"title" binding:"required,max=200"`
	Description      *string `json:"description"`
	EstimatedMinutes *int    `json:"estimated_minutes" binding:"omitempty,min=0"`
	FixedStartAt     *string `json:"fixed_start_at"` // RFC3339
}

type scheduleEntryReq struct {
	TaskID  *int64  `json:"task_id"`
	StartAt string  `json:"start_at" binding:"required"` // RFC3339
	EndAt   *string `json:"end_at"`                      // RFC3339
}

// Stats summarises one target-zone day.
type Stats struct {
	Day         string  `json:"day"`
	Zone        string  `json:"zone"`
	Total       int     `json:"total"`
	WithTask    int     `json:"with_task"`
	ByHour      [24]int `json:"by_hour"`
	BusiestHour *int    `json:"busiest_hour"`
	Minutes     int     `json:"scheduled_minutes"`
	Skipped     int     `json:"skipped"`
	Flagged     int     `json:"flagged"`
}
