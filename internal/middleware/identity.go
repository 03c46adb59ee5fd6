package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/requestdata"
)

type IdentityMiddleware struct {
	log       *logger.Logger
	jwtSecret []byte
}

func NewIdentityMiddleware(log *logger.Logger, jwtSecret string) *IdentityMiddleware {
	middlewareLog := log.With("middleware", "IdentityMiddleware")
	return &IdentityMiddleware{log: middlewareLog, jwtSecret: []byte(jwtSecret)}
}

// Resolve attaches the caller's identity to the request context. A valid
// marketplace access token yields the actor id; everything else gets a
// session id from the X-Session-ID header, minting one when absent.
// Anonymous traffic is allowed on every route: guests view profiles and
// click campaign links.
func (m *IdentityMiddleware) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := &requestdata.RequestData{}

		if token := extractBearerToken(c); token != "" {
			if actorID, err := m.parseActor(token); err == nil {
				rd.ActorID = actorID
			} else {
				m.log.Debug("access token rejected, treating as anonymous", "error", err)
			}
		}

		rd.SessionID = strings.TrimSpace(c.GetHeader("X-Session-ID"))
		if rd.ActorID == "" && rd.SessionID == "" {
			rd.SessionID = uuid.New().String()
		}

		ctx := requestdata.WithRequestData(c.Request.Context(), rd)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (m *IdentityMiddleware) parseActor(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return m.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
