package session

import (
	"errors"
	"sync"
)

var ErrMissingToken = errors.New("session token is required")

// User is the authenticated account. Obtaining the token is the caller's job.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Session holds the current user, if any. Safe for concurrent use.
type Session struct {
	mu   sync.RWMutex
	user *User
}

func New() *Session {
	return &Session{}
}

func (s *Session) Login(user User) error {
	if user.Token == "" {
		return ErrMissingToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
	return nil
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// Token returns the bearer token, or "" when nobody is logged in.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.Token
}

func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}
