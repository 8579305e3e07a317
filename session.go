package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/aquicore-go/internal/config"
	"github.com/tonimelisma/aquicore-go/internal/tokendb"
	"github.com/tonimelisma/aquicore-go/internal/tokenfile"
	"github.com/tonimelisma/aquicore-go/pkg/aquicore"
)

var errNotLoggedIn = errors.New("not logged in; run 'aquicore login' first")

// storedTokens is what a backend holds for one profile.
type storedTokens struct {
	Pair     aquicore.TokenPair
	Username string
	SavedAt  time.Time
}

// tokenBackend persists the token pair of one profile.
type tokenBackend interface {
	Load(ctx context.Context) (storedTokens, bool, error)
	Save(ctx context.Context, pair aquicore.TokenPair) error
	Delete(ctx context.Context) error
	Location() string
	Close() error
}

// openTokenBackend opens the store selected by the profile's token_store.
func openTokenBackend(ctx context.Context, rp *config.ResolvedProfile, logger *slog.Logger) (tokenBackend, error) {
	if rp.TokenPath == "" {
		return nil, errors.New("cannot determine token storage path (no home directory?)")
	}

	switch rp.TokenStore {
	case config.TokenStoreSQLite:
		store, err := tokendb.Open(ctx, rp.TokenPath, logger)
		if err != nil {
			return nil, err
		}

		return &dbBackend{store: store, profile: rp.Name, username: rp.Username, path: rp.TokenPath}, nil
	case config.TokenStoreFile, "":
		return &fileBackend{path: rp.TokenPath, username: rp.Username, nowFunc: time.Now}, nil
	default:
		return nil, fmt.Errorf("unknown token store %q", rp.TokenStore)
	}
}

type fileBackend struct {
	path     string
	username string
	nowFunc  func() time.Time
}

func (b *fileBackend) Load(_ context.Context) (storedTokens, bool, error) {
	pair, meta, err := tokenfile.Load(b.path)
	if err != nil {
		return storedTokens{}, false, err
	}

	if pair == (aquicore.TokenPair{}) {
		return storedTokens{}, false, nil
	}

	st := storedTokens{Pair: pair, Username: meta[tokenfile.MetaUsername]}
	if ts, parseErr := time.Parse(time.RFC3339, meta[tokenfile.MetaSavedAt]); parseErr == nil {
		st.SavedAt = ts
	}

	return st, true, nil
}

func (b *fileBackend) Save(_ context.Context, pair aquicore.TokenPair) error {
	return tokenfile.Save(b.path, pair, map[string]string{
		tokenfile.MetaUsername: b.username,
		tokenfile.MetaSavedAt:  b.nowFunc().UTC().Format(time.RFC3339),
	})
}

func (b *fileBackend) Delete(_ context.Context) error { return tokenfile.Delete(b.path) }
func (b *fileBackend) Location() string               { return "file " + b.path }
func (b *fileBackend) Close() error                   { return nil }

type dbBackend struct {
	store    *tokendb.Store
	profile  string
	username string
	path     string
}

func (b *dbBackend) Load(ctx context.Context) (storedTokens, bool, error) {
	rec, found, err := b.store.Load(ctx, b.profile)
	if err != nil || !found {
		return storedTokens{}, false, err
	}

	return storedTokens{Pair: rec.Tokens, Username: rec.Username, SavedAt: rec.UpdatedAt}, true, nil
}

func (b *dbBackend) Save(ctx context.Context, pair aquicore.TokenPair) error {
	return b.store.Save(ctx, b.profile, b.username, pair)
}

func (b *dbBackend) Delete(ctx context.Context) error { return b.store.Delete(ctx, b.profile) }
func (b *dbBackend) Location() string                 { return fmt.Sprintf("sqlite %s (profile %s)", b.path, b.profile) }
func (b *dbBackend) Close() error                     { return b.store.Close() }

// persistObserver writes every token change to the backend. Persistence
// failures are logged; the in-memory tokens stay valid for this run.
type persistObserver struct {
	backend tokenBackend
	logger  *slog.Logger
}

func (o *persistObserver) OnTokensChanged(pair aquicore.TokenPair) {
	if err := o.backend.Save(context.Background(), pair); err != nil {
		o.logger.Warn("failed to persist tokens",
			slog.String("store", o.backend.Location()),
			slog.String("error", err.Error()),
		)

		return
	}

	o.logger.Debug("tokens persisted", slog.String("store", o.backend.Location()))
}

// session bundles a client with the backend its tokens persist to.
type session struct {
	client  *aquicore.Client
	backend tokenBackend
}

func (s *session) Close() error {
	return s.backend.Close()
}

// sessionOptions tune newSession.
type sessionOptions struct {
	// Restore seeds the client with tokens saved by an earlier login, unless
	// the environment supplied tokens of its own.
	Restore bool
	// Code is an authorization code for Client.ExchangeCode.
	Code string
}

// newSession builds a client for the resolved profile whose token changes
// persist to the profile's backend.
func newSession(ctx context.Context, cc *CLIContext, opts sessionOptions) (*session, error) {
	backend, err := openTokenBackend(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	clientCfg := cc.Cfg.ClientConfig(&persistObserver{backend: backend, logger: cc.Logger}, cc.Logger)
	clientCfg.Code = opts.Code
	client := aquicore.NewClient(clientCfg)

	envTokens := cc.Cfg.AccessToken != "" || cc.Cfg.RefreshToken != ""
	if opts.Restore && !envTokens {
		st, found, loadErr := backend.Load(ctx)
		if loadErr != nil {
			backend.Close()
			return nil, fmt.Errorf("loading stored tokens: %w", loadErr)
		}

		if found {
			client.SetTokensFromStore(st.Pair)
			cc.Logger.Debug("restored stored tokens", slog.String("store", backend.Location()))
		}
	}

	return &session{client: client, backend: backend}, nil
}

// newAuthorizedSession is newSession plus a check that some credential path
// exists, so commands fail with a login hint instead of an SDK error.
func newAuthorizedSession(ctx context.Context, cc *CLIContext) (*session, error) {
	s, err := newSession(ctx, cc, sessionOptions{Restore: true})
	if err != nil {
		return nil, err
	}

	tokens := s.client.Tokens()
	hasPassword := cc.Cfg.Username != "" && cc.Cfg.Password != ""

	switch {
	case tokens.AccessToken != "" || hasPassword:
	case tokens.RefreshToken != "":
		// Only a refresh token survived; trade it before the first call.
		if _, err := s.client.Refresh(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("refreshing stored session: %w", err)
		}
	default:
		s.Close()
		return nil, errNotLoggedIn
	}

	return s, nil
}
