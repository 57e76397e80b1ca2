package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"lichtrinh-service/internal/schedule"
)

const googleSource = "google"

// oauthConfig returns nil when Google credentials are not configured.
func (a *App) oauthConfig() *oauth2.Config {
	if !a.Cfg.GoogleEnabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     a.Cfg.GoogleClientID,
		ClientSecret: a.Cfg.GoogleClientSecret,
		RedirectURL:  a.Cfg.GoogleRedirectURL,
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// stateTTL bounds how long a consent round trip may take.
const stateTTL = 10 * time.Minute

// stateKey is distinct from the API token key so a state value is never
// accepted as a bearer token.
func stateKey(secret string) []byte {
	return []byte("oauth-state:" + secret)
}

// signState binds an OAuth state value to the user who started consent.
func signState(userID int64, secret string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Audience:  jwt.ClaimStrings{googleSource},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(stateKey(secret))
}

// verifyState returns the user id a state value was issued for.
func verifyState(state, secret string, now time.Time) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (interface{}, error) {
		return stateKey(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(googleSource),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return 0, err
	}
	sub, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || sub <= 0 {
		return 0, jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}

// GET /api/calendar/auth
func (a *App) GoogleAuthHandler(c *gin.Context) {
	cfg := a.oauthConfig()
	if cfg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
		return
	}
	if a.Cfg.JWTSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state signing not configured"})
		return
	}
	state, err := signState(c.GetInt64(ctxSubject), a.Cfg.JWTSecret, a.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auth_url": cfg.AuthCodeURL(state, oauth2.AccessTypeOffline),
		"state":    state,
	})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	cfg := a.oauthConfig()
	if cfg == nil || a.Cfg.JWTSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
		return
	}
	userID, err := verifyState(c.Query("state"), a.Cfg.JWTSecret, a.now())
	if err != nil {
		a.Log.Warn("rejected oauth state", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired state"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}
	token, err := cfg.Exchange(c.Request.Context(), code)
	if err != nil {
		a.Log.Warn("google token exchange failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}
	// The client keeps the token and sends it back in X-Google-Token.
	tokenJSON, _ := json.Marshal(token)
	c.JSON(http.StatusOK, gin.H{
		"message": "Authorization successful",
		"user_id": userID,
		"token":   string(tokenJSON),
	})
}

func (a *App) calendarService(c *gin.Context) (*calendar.Service, bool) {
	cfg := a.oauthConfig()
	if cfg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
		return nil, false
	}
	tokenStr := c.GetHeader("X-Google-Token")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Google token required in X-Google-Token header"})
		return nil, false
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(tokenStr), &token); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token format"})
		return nil, false
	}
	ctx := c.Request.Context()
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, &token)))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create calendar service"})
		return nil, false
	}
	return srv, true
}

// GET /api/calendar/calendars
func (a *App) GetGoogleCalendarList(c *gin.Context) {
	srv, ok := a.calendarService(c)
	if !ok {
		return
	}
	list, err := srv.CalendarList.List().Context(c.Request.Context()).Do()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to retrieve calendars: %v", err)})
		return
	}

	type calendarInfo struct {
		ID         string `json:"id"`
		Summary    string `json:"summary"`
		Primary    bool   `json:"primary"`
		AccessRole string `json:"access_role"`
		TimeZone   string `json:"time_zone,omitempty"`
	}
	out := make([]calendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, calendarInfo{
			ID:         item.Id,
			Summary:    item.Summary,
			Primary:    item.Primary,
			AccessRole: item.AccessRole,
			TimeZone:   item.TimeZone,
		})
	}
	c.JSON(http.StatusOK, gin.H{"calendars": out, "count": len(out)})
}

// POST /api/users/:id/calendar/import?calendar_id=&time_min=&time_max=
// Mirrors Google events in the range into the user's schedule entries.
// Imported entries whose event was deleted or cancelled are removed.
func (a *App) ImportGoogleCalendarHandler(c *gin.Context) {
	timeMin, err := time.Parse(time.RFC3339, c.Query("time_min"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time_min required (RFC3339)"})
		return
	}
	timeMax, err := time.Parse(time.RFC3339, c.Query("time_max"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time_max required (RFC3339)"})
		return
	}
	if !timeMin.Before(timeMax) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time_min must be before time_max"})
		return
	}
	srv, ok := a.calendarService(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	userID := ownerID(c)
	calendarID := c.DefaultQuery("calendar_id", "primary")
	loc := a.Resolver.Zone()

	var (
		entries []importedEntry
		skipped int
	)
	err = srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		MaxResults(250).
		Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				e, ok := eventEntry(item, loc)
				if !ok {
					skipped++
					continue
				}
				entries = append(entries, e)
			}
			return nil
		})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("failed to retrieve events: %v", err)})
		return
	}

	n, removed, err := a.SyncImportedEntries(ctx, userID, googleSource, timeMin, timeMax, entries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	a.Log.Info("calendar imported",
		zap.Int64("user_id", userID),
		zap.String("calendar_id", calendarID),
		zap.Int("imported", n),
		zap.Int("removed", removed),
		zap.Int("skipped", skipped))
	c.JSON(http.StatusOK, gin.H{"imported": n, "removed": removed, "skipped": skipped})
}

// eventEntry converts a Google event. All-day events start at local
// midnight of loc; cancelled or undated events are rejected.
func eventEntry(item *calendar.Event, loc *time.Location) (importedEntry, bool) {
	if item == nil || item.Id == "" || item.Status == "cancelled" {
		return importedEntry{}, false
	}
	start, ok := eventInstant(item.Start, loc)
	if !ok {
		return importedEntry{}, false
	}
	e := importedEntry{ExternalID: item.Id, Start: start}
	if end, ok := eventInstant(item.End, loc); ok {
		if end.Before(start) {
			return importedEntry{}, false
		}
		e.End = &end
	}
	return e, true
}

func eventInstant(dt *calendar.EventDateTime, loc *time.Location) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, err == nil
	}
	if dt.Date != "" {
		day, err := schedule.ParseDay(dt.Date)
		if err != nil {
			return time.Time{}, false
		}
		return day.Start(loc), true
	}
	return time.Time{}, false
}
