package proxy

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// sessionKey extracts the session id from the request cookie. Values that
// are not UUIDs are ignored so clients cannot pick arbitrary keys.
func sessionKey(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c == nil {
		return ""
	}
	v := strings.TrimSpace(c.Value)
	if _, err := uuid.Parse(v); err != nil {
		return ""
	}
	return v
}
