// Package token persists the access/refresh token pair and derived role, and
// exposes the authenticated state as a push stream with replay.
package token

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iot-monitor/dashboard/internal/models"
)

// Storage keys, matching what the browser build persisted.
const (
	KeyAccessToken       = "access_token"
	KeyRefreshToken      = "refresh_token"
	KeyUserRole          = "user_role"
	KeyPreferredLanguage = "preferred-language"
)

// Store is a file-backed key/value store for credentials and preferences.
// All values are plain strings, written wholesale on every mutation.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]string

	authed  bool
	subs    map[int]chan bool
	nextSub int

	now func() time.Time
}

// NewStore loads the preference file (missing file means empty store) and
// initializes the authenticated state from the persisted access token.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		values: make(map[string]string),
		subs:   make(map[int]chan bool),
		now:    time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.authed = Valid(s.values[KeyAccessToken], s.now())
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening preference file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		s.values[key] = value
	}
	return scanner.Err()
}

// persist writes the whole store back to disk. Caller holds the lock.
func (s *Store) persist() {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(s.values[k])
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(s.path, []byte(sb.String()), 0600); err != nil {
		fmt.Printf("[TokenStore] Failed to persist preferences: %v\n", err)
	}
}

// AccessToken returns the persisted access token, or "".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[KeyAccessToken]
}

// RefreshToken returns the persisted refresh token, or "".
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[KeyRefreshToken]
}

// SetTokens persists both tokens, re-derives the role and flips the
// authenticated stream to true.
func (s *Store) SetTokens(access, refresh string) {
	s.mu.Lock()
	s.values[KeyAccessToken] = access
	s.values[KeyRefreshToken] = refresh
	if role := s.roleLocked(); role != "" {
		s.values[KeyUserRole] = string(role)
	}
	s.persist()
	s.setAuthedLocked(true)
	s.mu.Unlock()
}

// SetAccessToken replaces only the access token, retaining the refresh token.
func (s *Store) SetAccessToken(access string) {
	s.mu.Lock()
	s.values[KeyAccessToken] = access
	if role := s.roleLocked(); role != "" {
		s.values[KeyUserRole] = string(role)
	}
	s.persist()
	s.setAuthedLocked(true)
	s.mu.Unlock()
}

// SetRole persists an explicitly provided role (e.g. from the login response body).
func (s *Store) SetRole(role models.Role) {
	if !models.ValidRole(role) {
		return
	}
	s.mu.Lock()
	s.values[KeyUserRole] = string(role)
	s.persist()
	s.mu.Unlock()
}

// Clear removes tokens and role, keeps the language preference and flips the
// authenticated stream to false.
func (s *Store) Clear() {
	s.mu.Lock()
	delete(s.values, KeyAccessToken)
	delete(s.values, KeyRefreshToken)
	delete(s.values, KeyUserRole)
	s.persist()
	s.setAuthedLocked(false)
	s.mu.Unlock()
}

// Role returns the role claim of the current access token, falling back to the
// persisted role when the claim is absent or the token is undecodable.
func (s *Store) Role() models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roleLocked()
}

func (s *Store) roleLocked() models.Role {
	if claims, err := DecodeClaims(s.values[KeyAccessToken]); err == nil {
		if role := models.Role(claims.Role); models.ValidRole(role) {
			return role
		}
	}
	if stored := models.Role(s.values[KeyUserRole]); models.ValidRole(stored) {
		return stored
	}
	return ""
}

// Language returns the persisted language preference, or "".
func (s *Store) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[KeyPreferredLanguage]
}

// SetLanguage persists the language preference. Survives Clear.
func (s *Store) SetLanguage(lang string) {
	s.mu.Lock()
	s.values[KeyPreferredLanguage] = lang
	s.persist()
	s.mu.Unlock()
}

// IsAuthenticated is a synchronous read of the cached authenticated state.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authed
}

// Subscribe returns a channel that immediately delivers the current
// authenticated state, then every subsequent change. The returned cancel
// function must be called to release the subscription.
func (s *Store) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan bool, 8)
	ch <- s.authed
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// setAuthedLocked flips state and notifies subscribers on change only, so a
// login flips the stream exactly once. Caller holds the lock.
func (s *Store) setAuthedLocked(authed bool) {
	if s.authed == authed {
		return
	}
	s.authed = authed
	for _, ch := range s.subs {
		select {
		case ch <- authed:
		default:
			// Slow subscriber; drop rather than block the UI thread.
		}
	}
}
