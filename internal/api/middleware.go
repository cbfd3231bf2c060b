package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"countertop-service/internal/auth"
	"countertop-service/internal/util"

	"github.com/gin-gonic/gin"
)

const userKey = "acting_user"

// authMiddleware requires a Bearer token and puts the acting user on the request
func authMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		user, err := auth.ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(userKey, user)
		c.Request = c.Request.WithContext(auth.WithUser(c.Request.Context(), user))
		c.Next()
	}
}

// actingUser returns the user set by authMiddleware
func actingUser(c *gin.Context) auth.ActingUser {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(auth.ActingUser); ok {
			return user
		}
	}
	user, _ := auth.FromContext(c.Request.Context())
	return user
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
