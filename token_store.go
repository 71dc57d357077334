package activation

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// TokenStore owns the activation key lifecycle: issue a key for a
// pending account, look it up, and retire it by consuming or purging.
//
// Check and Consume treat malformed, unknown, and expired keys as
// ordinary negative results (IsInvalidActivationKey) rather than
// faults. Generate treats a double issue as a contract violation.
type TokenStore interface {
	Generate(ctx context.Context, user *User) (*ActivationToken, error)
	GenerateTx(ctx context.Context, tx bun.IDB, user *User) (*ActivationToken, error)

	Check(ctx context.Context, key string) (*User, error)

	Consume(ctx context.Context, key string) (*User, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, key string) (*User, error)

	PurgeExpired(ctx context.Context) (int, error)
}

type tokenStore struct {
	repo           RepositoryManager
	activationDays int
	logger         Logger
	activity       ActivitySink
}

// NewTokenStore creates a token store with the default 30 day window.
func NewTokenStore(repo RepositoryManager) *tokenStore {
	return &tokenStore{
		repo:           repo,
		activationDays: DefaultActivationDays,
		logger:         defLogger{},
		activity:       noopActivitySink{},
	}
}

// WithActivationDays overrides the expiry window.
func (s *tokenStore) WithActivationDays(days int) *tokenStore {
	if days > 0 {
		s.activationDays = days
	}
	return s
}

// WithLogger overrides the logger used by the store.
func (s *tokenStore) WithLogger(logger Logger) *tokenStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink sets the sink used to emit purge events.
func (s *tokenStore) WithActivitySink(sink ActivitySink) *tokenStore {
	s.activity = normalizeActivitySink(sink)
	return s
}

var _ TokenStore = (*tokenStore)(nil)

func (s *tokenStore) Generate(ctx context.Context, user *User) (*ActivationToken, error) {
	return s.generate(ctx, user, func(ctx context.Context, record *ActivationToken) (*ActivationToken, error) {
		return s.repo.ActivationTokens().Issue(ctx, record)
	})
}

func (s *tokenStore) GenerateTx(ctx context.Context, tx bun.IDB, user *User) (*ActivationToken, error) {
	return s.generate(ctx, user, func(ctx context.Context, record *ActivationToken) (*ActivationToken, error) {
		return s.repo.ActivationTokens().IssueTx(ctx, tx, record)
	})
}

func (s *tokenStore) generate(ctx context.Context, user *User, issue func(context.Context, *ActivationToken) (*ActivationToken, error)) (*ActivationToken, error) {
	key, err := GenerateActivationKey(user.Username)
	if err != nil {
		return nil, err
	}

	record := &ActivationToken{
		UserID: &user.ID,
		Token:  key,
	}

	token, err := issue(ctx, record)
	if err != nil {
		if IsDuplicateTokenError(err) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist activation token")
	}

	return token, nil
}

func (s *tokenStore) Check(ctx context.Context, key string) (*User, error) {
	key = NormalizeActivationKey(key)
	if !IsWellFormedActivationKey(key) {
		return nil, ErrTokenMalformed
	}

	token, err := s.repo.ActivationTokens().GetByKey(ctx, key)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up activation token")
	}

	if token.Expired(s.activationDays) {
		return nil, ErrTokenExpired
	}

	if token.User == nil {
		return nil, ErrTokenNotFound
	}

	return token.User, nil
}

func (s *tokenStore) Consume(ctx context.Context, key string) (*User, error) {
	var user *User

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = s.ConsumeTx(ctx, tx, key)
		return err
	})

	if err != nil {
		return nil, err
	}

	return user, nil
}

// ConsumeTx validates the key, activates the owning account, and
// deletes the token so it cannot be replayed. The delete is a
// compare-and-delete: of N concurrent attempts exactly one sees the
// row, the rest observe not found. An expired or already-active
// outcome aborts the surrounding transaction, which also undoes the
// delete and leaves the row for the purge sweep.
func (s *tokenStore) ConsumeTx(ctx context.Context, tx bun.IDB, key string) (*User, error) {
	key = NormalizeActivationKey(key)
	if !IsWellFormedActivationKey(key) {
		return nil, ErrTokenMalformed
	}

	token, err := s.repo.ActivationTokens().ConsumeByKeyTx(ctx, tx, key)
	if err != nil {
		if IsInvalidActivationKey(err) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume activation token")
	}

	if token.Expired(s.activationDays) {
		return nil, ErrTokenExpired
	}

	if token.UserID == nil {
		return nil, ErrTokenNotFound
	}

	user, err := s.repo.Users().ActivateTx(ctx, tx, *token.UserID)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
	}

	return user, nil
}

func (s *tokenStore) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := PurgeCutoff(s.activationDays)

	count, err := s.repo.ActivationTokens().PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge expired activation tokens")
	}

	if count > 0 {
		s.recordPurge(ctx, count, cutoff)
	}

	return count, nil
}

func (s *tokenStore) recordPurge(ctx context.Context, count int, cutoff time.Time) {
	event := ActivityEvent{
		EventType: ActivityEventTokensPurged,
		Actor: ActorRef{
			Type: "system",
		},
		Metadata: map[string]any{
			"count":  count,
			"cutoff": cutoff,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(s.activity).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink error during token purge: %v", err)
	}
}
