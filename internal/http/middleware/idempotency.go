// Package middleware – idempotency keys
//
// The manual trigger endpoints send a message to the principal, so an
// operator retrying a timed-out request must not greet them twice. The
// caller supplies an Idempotency-Key; this middleware only validates it and
// hands it to the handler, which claims it as a trigger run in the store.
//
// Conventions:
//   - The header is optional. Without it each request runs.
//   - A malformed key is rejected with 400 and code "bad_idempotency_key"
//     before the handler runs.
//   - Handlers read the key with GetIdempotencyKey, never from the header
//     directly, so only validated keys reach the store.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets an operator retry a manual trigger without running
// it twice. The handler claims the key; a second request with the same key is
// answered as a duplicate.
const HeaderIdempotencyKey = "Idempotency-Key"

const ctxKeyIdemKey = "idem.key"

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures IdempotencyValidator.
//
// Fields:
//   - MaxLen: longest accepted key. Trigger runs are stored with the key as
//     their period, so the cap keeps rows small.
//   - Pattern: allowed characters. The default admits UUIDs, ULIDs and
//     dotted or colon-separated names.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// GetIdempotencyKey returns the key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyValidator checks the Idempotency-Key header when present and
// stashes it for the handler. A missing header is a no-op; a malformed one is
// rejected with 400 before the handler runs.
func IdempotencyValidator(opts IdempotencyOptions) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)
		c.Next()
	}
}
