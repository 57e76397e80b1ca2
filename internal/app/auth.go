package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	ctxSubject = "auth_subject" // int64 user id from a JWT
	ctxService = "auth_service" // true for static service tokens
	ctxOwnerID = "owner_id"
)

// AuthMiddleware accepts HMAC-signed JWTs whose subject is a user id, or
// static service tokens.
func AuthMiddleware(jwtSecret string, staticTokens []string) gin.HandlerFunc {
	jwtSecret = strings.TrimSpace(jwtSecret)

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		if jwtSecret != "" {
			if sub, err := parseToken(tokenStr, jwtSecret); err == nil {
				c.Set(ctxSubject, sub)
				c.Next()
				return
			}
		}

		for _, t := range staticTokens {
			if t != "" && tokenStr == t {
				c.Set(ctxService, true)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

// RequireOwner parses :id and lets JWT callers touch only their own data.
// Service tokens may act on any user.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			c.Abort()
			return
		}
		if !c.GetBool(ctxService) && c.GetInt64(ctxSubject) != id {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Set(ctxOwnerID, id)
		c.Next()
	}
}

func issueToken(userID int64, secret string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return []byte(secret), nil
	}, jwt.WithLeeway(5*time.Second), jwt.WithExpirationRequired())
	if err != nil {
		return 0, err
	}
	sub, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || sub <= 0 {
		return 0, jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}

// POST /auth/register
func (a *App) RegisterHandler(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	u, err := a.InsertUser(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)), string(hash))
	if errors.Is(err, errEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		a.Log.Error("register failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, u)
}

// POST /auth/login
func (a *App) LoginHandler(c *gin.Context) {
	if a.Cfg.JWTSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token signing not configured"})
		return
	}
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, hash, err := a.UserCredentials(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	now := a.now()
	token, err := issueToken(id, a.Cfg.JWTSecret, a.Cfg.JWTTTL, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"user_id":    id,
		"expires_at": now.Add(a.Cfg.JWTTTL).UTC(),
	})
}
