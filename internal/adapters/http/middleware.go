package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	requestIDHeader = "X-Request-ID"
	clientTokenKey  = "client_token"
	clientAddrKey   = "client_addr"
)

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// ClientTokenMiddleware tags every caller with a token kept in the cookie
// session. A caller without the cookie gets a fresh token and is also tagged
// with its address, so callers that drop cookies still share a bucket.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Str("module", "adapters.http").Err(err).Msg("save client session")
			}
			c.Set(clientAddrKey, "ip:"+c.ClientIP())
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// RateLimitMiddleware charges the client token and, for callers that came
// without a cookie, their address too.
func RateLimitMiddleware(rl *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, key := range []string{c.GetString(clientTokenKey), c.GetString(clientAddrKey)} {
			if key == "" {
				continue
			}
			if !rl.Allow(key) {
				log.Debug().Str("module", "adapters.http").Str("client", key).Msg("rate limited")
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
				return
			}
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug().Str("module", "adapters.http").
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}
