package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lichtrinh-service/internal/schedule"
)

// resolveError maps resolver failures onto HTTP statuses.
func (a *App) resolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidRange), errors.Is(err, schedule.ErrInvalidDay):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, schedule.ErrStorageUnavailable):
		a.Log.Error("schedule storage unavailable", zap.Int64("user_id", ownerID(c)), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func hoursFromQuery(c *gin.Context) (*schedule.HourRange, bool) {
	hours, err := schedule.ParseHourRange(c.Query("from_hour"), c.Query("to_hour"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return hours, true
}

// dayFromQuery reads ?day=YYYY-MM-DD, falling back to today in the target
// zone when fallback is set.
func (a *App) dayFromQuery(c *gin.Context, fallback bool) (schedule.Day, bool) {
	raw := c.Query("day")
	if raw == "" {
		if fallback {
			return a.Resolver.Today(a.now()), true
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "day required (YYYY-MM-DD)"})
		return schedule.Day{}, false
	}
	day, err := schedule.ParseDay(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return schedule.Day{}, false
	}
	return day, true
}

// GET /users/:id/schedule/window?day=YYYY-MM-DD&from_hour=H&to_hour=H
func (a *App) WindowHandler(c *gin.Context) {
	day, ok := a.dayFromQuery(c, false)
	if !ok {
		return
	}
	hours, ok := hoursFromQuery(c)
	if !ok {
		return
	}
	w, err := a.Resolver.ResolveWindow(c.Request.Context(), ownerID(c), day, hours)
	if err != nil {
		a.resolveError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GET /users/:id/schedule/today?from_hour=H&to_hour=H
func (a *App) TodayHandler(c *gin.Context) {
	hours, ok := hoursFromQuery(c)
	if !ok {
		return
	}
	w, err := a.Resolver.ResolveToday(c.Request.Context(), ownerID(c), a.now(), hours)
	if err != nil {
		a.resolveError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GET /users/:id/stats?day=YYYY-MM-DD
func (a *App) StatsHandler(c *gin.Context) {
	day, ok := a.dayFromQuery(c, true)
	if !ok {
		return
	}
	w, err := a.Resolver.ResolveWindow(c.Request.Context(), ownerID(c), day, nil)
	if err != nil {
		a.resolveError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildStats(w))
}

func buildStats(w *schedule.Window) Stats {
	s := Stats{
		Day:     w.Day.String(),
		Zone:    w.Zone,
		Total:   len(w.Items),
		ByHour:  schedule.HourlyCounts(w),
		Skipped: w.Skipped,
		Flagged: w.Flagged,
	}
	for _, it := range w.Items {
		if it.Entry.TaskID != nil {
			s.WithTask++
		}
		if d := it.Entry.Duration(); d > 0 {
			s.Minutes += int(d.Minutes())
		}
	}
	best := -1
	for h, n := range s.ByHour {
		if n > 0 && (best < 0 || n > s.ByHour[best]) {
			best = h
		}
	}
	if best >= 0 {
		s.BusiestHour = &best
	}
	return s
}
