package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-client/internal/credential"
	"github.com/stemsi/exstem-client/internal/response"
)

const (
	// ContextKeyCredential is the Gin context key for the inspected credential.
	ContextKeyCredential = "credential"
)

// RequireCredential reads the bearer token from the Authorization header and
// rejects expired tokens before any call reaches the exam service.
func RequireCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := credential.FromHeader(c.GetHeader("Authorization"))
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		inspect(c, token)
	}
}

// RequireWSCredential validates a token from the query param ?token=...
// Used for WebSocket upgrade requests, which cannot carry headers from browsers.
func RequireWSCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		inspect(c, token)
	}
}

// GetCredential retrieves the inspected credential from the Gin context.
func GetCredential(c *gin.Context) *credential.Info {
	val, exists := c.Get(ContextKeyCredential)
	if !exists {
		return nil
	}
	info, ok := val.(*credential.Info)
	if !ok {
		return nil
	}
	return info
}

func inspect(c *gin.Context, token string) {
	info, err := credential.Inspect(token, time.Now())
	switch {
	case errors.Is(err, credential.ErrExpired):
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
		return
	case err != nil:
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	c.Set(ContextKeyCredential, info)
	c.Next()
}
