package aquicore

import (
	"sync"

	"golang.org/x/oauth2"
)

// TokenPair is the access/refresh token pair held by a Client.
// An empty field means the token is absent.
type TokenPair struct {
	AccessToken  string `json:"authToken"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// OAuth2Token converts the pair to the golang.org/x/oauth2 representation.
// The Aquicore API does not report expiry, so Expiry is left zero.
func (p TokenPair) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
	}
}

// TokenPairFromOAuth2 is the inverse of TokenPair.OAuth2Token.
func TokenPairFromOAuth2(tok *oauth2.Token) TokenPair {
	if tok == nil {
		return TokenPair{}
	}

	return TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
}

// TokenObserver is notified whenever a grant changes the stored tokens, so
// the host can persist them (session, file, database).
type TokenObserver interface {
	OnTokensChanged(TokenPair)
}

// TokenObserverFunc adapts a plain function to TokenObserver.
type TokenObserverFunc func(TokenPair)

// OnTokensChanged calls f(pair).
func (f TokenObserverFunc) OnTokensChanged(pair TokenPair) {
	f(pair)
}

// TokenStore holds the current token pair. All methods are safe for
// concurrent use; the observer is invoked outside the lock.
type TokenStore struct {
	mu       sync.Mutex
	pair     TokenPair
	observer TokenObserver
}

// NewTokenStore creates a store seeded with initial (not reported to the
// observer). observer may be nil.
func NewTokenStore(initial TokenPair, observer TokenObserver) *TokenStore {
	return &TokenStore{pair: initial, observer: observer}
}

// Update merges the non-empty fields of partial. If the stored pair changed,
// the observer receives the full new pair. Reports whether anything changed.
func (s *TokenStore) Update(partial TokenPair) bool {
	s.mu.Lock()
	changed := s.merge(partial)
	pair := s.pair
	observer := s.observer
	s.mu.Unlock()

	if changed && observer != nil {
		observer.OnTokensChanged(pair)
	}

	return changed
}

// SetFromExternal merges like Update but never notifies. Used to restore
// tokens the host persisted earlier.
func (s *TokenStore) SetFromExternal(partial TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.merge(partial)
}

// Clear drops both tokens without notifying.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = TokenPair{}
}

// Snapshot returns a copy of the current pair.
func (s *TokenStore) Snapshot() TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pair
}

// AccessToken returns the current access token or "".
func (s *TokenStore) AccessToken() string {
	return s.Snapshot().AccessToken
}

// RefreshToken returns the current refresh token or "".
func (s *TokenStore) RefreshToken() string {
	return s.Snapshot().RefreshToken
}

// merge must be called with mu held.
func (s *TokenStore) merge(partial TokenPair) bool {
	changed := false

	if partial.AccessToken != "" && partial.AccessToken != s.pair.AccessToken {
		s.pair.AccessToken = partial.AccessToken
		changed = true
	}

	if partial.RefreshToken != "" && partial.RefreshToken != s.pair.RefreshToken {
		s.pair.RefreshToken = partial.RefreshToken
		changed = true
	}

	return changed
}
