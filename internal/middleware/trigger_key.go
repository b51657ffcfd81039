package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/inbox-rules-api/pkg/errors"
	"github.com/noah-isme/inbox-rules-api/pkg/response"
)

// TriggerKeyHeader carries the shared key for machine-triggered runs.
const TriggerKeyHeader = "X-Trigger-Key"

// TriggerKey admits requests whose X-Trigger-Key matches key. An empty key
// disables the guarded routes entirely.
func TriggerKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		given := []byte(c.GetHeader(TriggerKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid trigger key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
