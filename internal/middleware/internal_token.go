package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/motorlist/pkg/crypto"
	"github.com/charlesng35/motorlist/pkg/errors"
	"github.com/charlesng35/motorlist/pkg/response"
)

// InternalTokenHeader carries the shared secret used by scheduled jobs.
const InternalTokenHeader = "X-Internal-Token"

// InternalToken restricts a route group to callers presenting the internal token.
// An empty configured token rejects every request.
func InternalToken(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		presented := strings.TrimSpace(c.GetHeader(InternalTokenHeader))
		if token == "" || presented == "" || !crypto.EqualConstantTime(presented, token) {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
