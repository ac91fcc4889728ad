package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HeaderUserEmail carries the signed-in user's email
const HeaderUserEmail = "X-User-Email"

// IdentitySink receives identity changes
type IdentitySink interface {
	UserKey() string
	SetUser(ctx context.Context, email string) error
}

// Identity propagates the X-User-Email header into the session store.
// Requests without the header leave the current identity alone.
func Identity(sink IdentitySink, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.TrimSpace(c.GetHeader(HeaderUserEmail))
		if email != "" && email != sink.UserKey() {
			// A failed history fetch keeps the new identity; the handler still runs.
			if err := sink.SetUser(c.Request.Context(), email); err != nil {
				logger.Warn("History fetch after identity change failed",
					zap.String("email", email),
					zap.Error(err),
				)
			}
		}
		c.Next()
	}
}
