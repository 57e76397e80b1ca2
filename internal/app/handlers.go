package app

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"lichtrinh-service/internal/schedule"
)

// taskFromReq validates a task payload for the owner in the path.
func taskFromReq(c *gin.Context) (*schedule.Task, bool) {
	var req taskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title required"})
		return nil, false
	}
	if req.EstimatedMinutes != nil && *req.EstimatedMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "estimated_minutes must not be negative"})
		return nil, false
	}
	t := &schedule.Task{
		UserID:           ownerID(c),
		Title:            title,
		Description:      req.Description,
		EstimatedMinutes: req.EstimatedMinutes,
	}
	if req.FixedStartAt != nil && *req.FixedStartAt != "" {
		fixed, err := time.Parse(time.RFC3339, *req.FixedStartAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fixed_start_at"})
			return nil, false
		}
		fixed = fixed.UTC()
		t.FixedStart = &fixed
	}
	return t, true
}

// POST /users/:id/tasks
func (a *App) CreateTaskHandler(c *gin.Context) {
	t, ok := taskFromReq(c)
	if !ok {
		return
	}
	if err := a.InsertTask(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, t)
}

// GET /users/:id/tasks
func (a *App) ListTasksHandler(c *gin.Context) {
	tasks, err := a.ListTasks(c.Request.Context(), ownerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GET /users/:id/tasks/:task_id
func (a *App) GetTaskHandler(c *gin.Context) {
	taskID, ok := paramID(c, "task_id")
	if !ok {
		return
	}
	t, err := a.GetTask(c.Request.Context(), ownerID(c), taskID)
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

// PUT /users/:id/tasks/:task_id
func (a *App) UpdateTaskHandler(c *gin.Context) {
	taskID, ok := paramID(c, "task_id")
	if !ok {
		return
	}
	t, ok := taskFromReq(c)
	if !ok {
		return
	}
	t.ID = taskID

	ctx := c.Request.Context()
	err := a.UpdateTask(ctx, t)
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if a.TaskCache != nil {
		a.TaskCache.Invalidate(ctx, taskID)
	}
	c.JSON(http.StatusOK, t)
}

// DELETE /users/:id/tasks/:task_id
func (a *App) DeleteTaskHandler(c *gin.Context) {
	taskID, ok := paramID(c, "task_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	deleted, err := a.DeleteTask(ctx, ownerID(c), taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if a.TaskCache != nil {
		a.TaskCache.Invalidate(ctx, taskID)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// entryFromReq parses a schedule entry payload. Negative durations are
// rejected here rather than stored.
func entryFromReq(c *gin.Context) (*schedule.Entry, bool) {
	var req scheduleEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	start, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_at"})
		return nil, false
	}
	e := &schedule.Entry{UserID: ownerID(c), TaskID: req.TaskID, Start: start.UTC()}
	if req.EndAt != nil && *req.EndAt != "" {
		end, err := time.Parse(time.RFC3339, *req.EndAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_at"})
			return nil, false
		}
		if end.Before(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errNegativeDuration.Error()})
			return nil, false
		}
		end = end.UTC()
		e.End = &end
	}
	return e, true
}

// POST /users/:id/schedule
func (a *App) CreateScheduleEntryHandler(c *gin.Context) {
	e, ok := entryFromReq(c)
	if !ok {
		return
	}
	err := a.InsertScheduleEntry(c.Request.Context(), e)
	switch {
	case errors.Is(err, errForeignTask), errors.Is(err, errNegativeDuration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		a.Log.Error("insert schedule entry", zap.Int64("user_id", e.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, e)
}

// GET /users/:id/schedule
func (a *App) ListScheduleEntriesHandler(c *gin.Context) {
	entries, err := a.ListScheduleEntries(c.Request.Context(), ownerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// DELETE /users/:id/schedule/:entry_id
func (a *App) DeleteScheduleEntryHandler(c *gin.Context) {
	entryID, ok := paramID(c, "entry_id")
	if !ok {
		return
	}
	deleted, err := a.DeleteScheduleEntry(c.Request.Context(), ownerID(c), entryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule entry not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
