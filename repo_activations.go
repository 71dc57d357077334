package activation

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeActivationTokenSQL is the compare-and-delete primitive behind
// consume: concurrent attempts on the same key serialize at the store,
// exactly one caller gets the row back.
var ConsumeActivationTokenSQL = `DELETE FROM "activation_tokens" AS "act"
WHERE
	"act"."token" = ?
RETURNING *;`

type ActivationTokens interface {
	repository.Repository[*ActivationToken]

	GetByKey(ctx context.Context, key string) (*ActivationToken, error)
	GetByKeyTx(ctx context.Context, tx bun.IDB, key string) (*ActivationToken, error)

	Issue(ctx context.Context, record *ActivationToken) (*ActivationToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, record *ActivationToken) (*ActivationToken, error)

	ConsumeByKey(ctx context.Context, key string) (*ActivationToken, error)
	ConsumeByKeyTx(ctx context.Context, tx bun.IDB, key string) (*ActivationToken, error)

	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

type activationTokens struct {
	repository.Repository[*ActivationToken]
	db *bun.DB
}

var (
	_ ActivationTokens                        = (*activationTokens)(nil)
	_ repository.Repository[*ActivationToken] = (*activationTokens)(nil)
)

func NewActivationTokensRepository(db *bun.DB) ActivationTokens {
	handlers := repository.ModelHandlers[*ActivationToken]{
		NewRecord: func() *ActivationToken {
			return &ActivationToken{}
		},
		GetID: func(record *ActivationToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ActivationToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}

	return &activationTokens{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (a *activationTokens) GetByKey(ctx context.Context, key string) (*ActivationToken, error) {
	return a.GetByKeyTx(ctx, a.db, key)
}

func (a *activationTokens) GetByKeyTx(ctx context.Context, tx bun.IDB, key string) (*ActivationToken, error) {
	record := &ActivationToken{}

	err := tx.NewSelect().
		Model(record).
		Relation("User").
		Where("?TableAlias.token = ?", key).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token": key,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *activationTokens) Issue(ctx context.Context, record *ActivationToken) (*ActivationToken, error) {
	return a.IssueTx(ctx, a.db, record)
}

// IssueTx persists a token, enforcing the one live token per account
// policy before the insert. The unique user_id column backstops the
// same invariant at the storage layer.
func (a *activationTokens) IssueTx(ctx context.Context, tx bun.IDB, record *ActivationToken) (*ActivationToken, error) {
	if record.UserID != nil {
		exists, err := tx.NewSelect().
			Model((*ActivationToken)(nil)).
			Where("?TableAlias.user_id = ?", record.UserID.String()).
			Exists(ctx)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateToken
		}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *activationTokens) ConsumeByKey(ctx context.Context, key string) (*ActivationToken, error) {
	return a.ConsumeByKeyTx(ctx, a.db, key)
}

func (a *activationTokens) ConsumeByKeyTx(ctx context.Context, tx bun.IDB, key string) (*ActivationToken, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConsumeActivationTokenSQL, key)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrTokenNotFound
	}

	return res[0], nil
}

func (a *activationTokens) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := a.db.NewDelete().
		Model((*ActivationToken)(nil)).
		Where("?TableAlias.created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(count), nil
}
