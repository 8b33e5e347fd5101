package proxy

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"respbg/srcset"
)

const sessionCookieName = "respbg_session"

// session carries the loaded-image registry shared by every request with the
// same cookie, so later pages reuse images the client already holds.
type session struct {
	id       string
	loaded   *srcset.LoadedRegistry
	lastSeen time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	onExpire func(id string)
	sessions map[string]*session
}

func newSessionStore(ttl time.Duration, now func() time.Time, onExpire func(string)) *sessionStore {
	if now == nil {
		now = time.Now
	}
	return &sessionStore{ttl: ttl, now: now, onExpire: onExpire, sessions: make(map[string]*session)}
}

// Get returns the session named by the request cookie, starting a new one
// (and setting the cookie on w) when it is missing, unknown or expired.
func (s *sessionStore) Get(w http.ResponseWriter, r *http.Request) *session {
	sess, cookie := s.open(r)
	if cookie != nil && w != nil {
		http.SetCookie(w, cookie)
	}
	return sess
}

// open is Get for callers that deliver the cookie themselves. The cookie is
// nil when the request already carried a live session.
func (s *sessionStore) open(r *http.Request) (*session, *http.Cookie) {
	now := s.now()
	id := sessionKey(r)

	s.mu.Lock()
	expired := s.pruneLocked(now)
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{id: uuid.NewString(), loaded: srcset.NewLoadedRegistry()}
		s.sessions[sess.id] = sess
	}
	sess.lastSeen = now
	s.mu.Unlock()

	if s.onExpire != nil {
		for _, e := range expired {
			s.onExpire(e)
		}
	}
	if ok {
		return sess, nil
	}
	return sess, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *sessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) pruneLocked(now time.Time) []string {
	if s.ttl <= 0 {
		return nil
	}
	var expired []string
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.ttl {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired
}
