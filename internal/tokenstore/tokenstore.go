// Package tokenstore caches the access/refresh token pair in one of two
// storage lifetimes: session-scoped or persistent.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/AnnaKryuchkova/product-console/internal/errs"
	"github.com/AnnaKryuchkova/product-console/internal/model"
	"github.com/AnnaKryuchkova/product-console/internal/storage"
)

// Key is the single storage key the token pair lives under.
const Key = "auth_tokens"

// Loaded is the result of Load. Tokens is nil when nothing usable is stored.
type Loaded struct {
	Tokens     *model.TokenPair
	Persistent bool
}

// Store keeps at most one copy of the token pair across its two backends.
type Store struct {
	session    storage.Backend
	persistent storage.Backend
	log        *zap.Logger
}

// New constructs a Store over a session-scoped and a persistent backend.
func New(session, persistent storage.Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{session: session, persistent: persistent, log: log}
}

// Save writes the pair to the backend selected by persistent and removes any
// stale copy from the other one.
func (s *Store) Save(ctx context.Context, tokens model.TokenPair, persistent bool) error {
	b, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	target, other := s.session, s.persistent
	if persistent {
		target, other = s.persistent, s.session
	}
	if err := target.Set(ctx, Key, b); err != nil {
		return err
	}
	return other.Delete(ctx, Key)
}

// Load prefers the session backend, then the persistent one. Read and parse
// failures are logged and reported as "nothing stored".
func (s *Store) Load(ctx context.Context) Loaded {
	if t, ok := s.read(ctx, s.session, "session"); ok {
		return Loaded{Tokens: t, Persistent: false}
	}
	if t, ok := s.read(ctx, s.persistent, "persistent"); ok {
		return Loaded{Tokens: t, Persistent: true}
	}
	return Loaded{}
}

func (s *Store) read(ctx context.Context, b storage.Backend, lifetime string) (*model.TokenPair, bool) {
	raw, err := b.Get(ctx, Key)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			s.log.Debug("token store read failed", zap.String("lifetime", lifetime), zap.Error(err))
		}
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}
	var t model.TokenPair
	if err := json.Unmarshal(raw, &t); err != nil {
		s.log.Debug("token store value unparsable", zap.String("lifetime", lifetime), zap.Error(err))
		return nil, false
	}
	// a stored null or {} holds nothing usable
	if t.AccessToken == "" {
		return nil, false
	}
	return &t, true
}

// Clear removes the pair from both backends, attempting both even if one fails.
func (s *Store) Clear(ctx context.Context) error {
	return errors.Join(
		s.session.Delete(ctx, Key),
		s.persistent.Delete(ctx, Key),
	)
}
