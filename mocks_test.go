package activation_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	activation "github.com/goliatone/go-activation"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// MockRepositoryManager implements activation.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
	args := m.Called(ctx, opts, fn)
	return args.Error(0)
}

func (m *MockRepositoryManager) Users() activation.Users {
	args := m.Called()
	return args.Get(0).(activation.Users)
}

func (m *MockRepositoryManager) ActivationTokens() activation.ActivationTokens {
	args := m.Called()
	return args.Get(0).(activation.ActivationTokens)
}

// MockUsers stubs the handful of methods the flow exercises; the
// embedded interface covers the rest of the repository surface.
type MockUsers struct {
	mock.Mock
	activation.Users
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *activation.User, criteria ...repository.InsertCriteria) (*activation.User, error) {
	args := m.Called(ctx, tx, record)
	var user *activation.User
	if v := args.Get(0); v != nil {
		user = v.(*activation.User)
	}
	return user, args.Error(1)
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*activation.User, error) {
	args := m.Called(ctx, identifier)
	var user *activation.User
	if v := args.Get(0); v != nil {
		user = v.(*activation.User)
	}
	return user, args.Error(1)
}

func (m *MockUsers) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*activation.User, error) {
	args := m.Called(ctx, tx, identifier)
	var user *activation.User
	if v := args.Get(0); v != nil {
		user = v.(*activation.User)
	}
	return user, args.Error(1)
}

func (m *MockUsers) ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*activation.User, error) {
	args := m.Called(ctx, tx, id)
	var user *activation.User
	if v := args.Get(0); v != nil {
		user = v.(*activation.User)
	}
	return user, args.Error(1)
}

func (m *MockUsers) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

// MockActivationTokens stubs the token repository
type MockActivationTokens struct {
	mock.Mock
	activation.ActivationTokens
}

func (m *MockActivationTokens) GetByKey(ctx context.Context, key string) (*activation.ActivationToken, error) {
	args := m.Called(ctx, key)
	var token *activation.ActivationToken
	if v := args.Get(0); v != nil {
		token = v.(*activation.ActivationToken)
	}
	return token, args.Error(1)
}

func (m *MockActivationTokens) Issue(ctx context.Context, record *activation.ActivationToken) (*activation.ActivationToken, error) {
	args := m.Called(ctx, record)
	var token *activation.ActivationToken
	if v := args.Get(0); v != nil {
		token = v.(*activation.ActivationToken)
	}
	return token, args.Error(1)
}

func (m *MockActivationTokens) IssueTx(ctx context.Context, tx bun.IDB, record *activation.ActivationToken) (*activation.ActivationToken, error) {
	args := m.Called(ctx, tx, record)
	var token *activation.ActivationToken
	if v := args.Get(0); v != nil {
		token = v.(*activation.ActivationToken)
	}
	return token, args.Error(1)
}

func (m *MockActivationTokens) ConsumeByKeyTx(ctx context.Context, tx bun.IDB, key string) (*activation.ActivationToken, error) {
	args := m.Called(ctx, tx, key)
	var token *activation.ActivationToken
	if v := args.Get(0); v != nil {
		token = v.(*activation.ActivationToken)
	}
	return token, args.Error(1)
}

func (m *MockActivationTokens) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

// MockTokenStore implements activation.TokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Generate(ctx context.Context, user *activation.User) (*activation.ActivationToken, error) {
	args := m.Called(ctx, user)
	var token *activation.ActivationToken
	if v := args.Get(0); v != nil {
		token = v.(*activation.ActivationToken)
	}
	return token, args.Error(1)
}

func (m *MockTokenStore) GenerateTx(ctx context.Context, tx bun.IDB, user *activation.User) (*activation.ActivationToken, error) {
	args := m.Called(ctx, tx, user)
	var token *activation.ActivationToken
	if v := args.Get(0); v != nil {
		token = v.(*activation.ActivationToken)
	}
	return token, args.Error(1)
}

func (m *MockTokenStore) Check(ctx context.Context, key string) (*activation.User, error) {
	args := m.Called(ctx, key)
	var user *activation.User
	if v := args.Get(0); v != nil {
		user = v.(*activation.User)
	}
	return user, args.Error(1)
}

func (m *MockTokenStore) Consume(ctx context.Context, key string) (*activation.User, error) {
	args := m.Called(ctx, key)
	var user *activation.User
	if v := args.Get(0); v != nil {
		user = v.(*activation.User)
	}
	return user, args.Error(1)
}

func (m *MockTokenStore) ConsumeTx(ctx context.Context, tx bun.IDB, key string) (*activation.User, error) {
	args := m.Called(ctx, tx, key)
	var user *activation.User
	if v := args.Get(0); v != nil {
		user = v.(*activation.User)
	}
	return user, args.Error(1)
}

func (m *MockTokenStore) PurgeExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockActivitySink implements activation.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event activation.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// ---------------------------------------------------------------------
// In-memory fakes. The mutex around the token map is what makes the
// fake honest for the concurrency tests: compare-and-delete either
// sees the row or it does not, same as the SQL DELETE ... RETURNING.
// ---------------------------------------------------------------------

type memStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*activation.User
	tokens map[string]*activation.ActivationToken
}

type fakeRepo struct {
	store  *memStore
	users  *fakeUsers
	tokens *fakeTokens
}

func newFakeRepo() *fakeRepo {
	store := &memStore{
		users:  map[uuid.UUID]*activation.User{},
		tokens: map[string]*activation.ActivationToken{},
	}
	return &fakeRepo{
		store:  store,
		users:  &fakeUsers{store: store},
		tokens: &fakeTokens{store: store},
	}
}

func (f *fakeRepo) Validate() error { return nil }
func (f *fakeRepo) MustValidate()   {}

func (f *fakeRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, fn func(context.Context, bun.Tx) error) error {
	var tx bun.Tx
	return fn(ctx, tx)
}

func (f *fakeRepo) Users() activation.Users                       { return f.users }
func (f *fakeRepo) ActivationTokens() activation.ActivationTokens { return f.tokens }

func (f *fakeRepo) userCount() int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return len(f.store.users)
}

func (f *fakeRepo) tokenCount() int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return len(f.store.tokens)
}

func (f *fakeRepo) userByID(id uuid.UUID) *activation.User {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if u, ok := f.store.users[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

type fakeUsers struct {
	activation.Users
	store *memStore
}

func (f *fakeUsers) Create(ctx context.Context, record *activation.User, criteria ...repository.InsertCriteria) (*activation.User, error) {
	return f.CreateTx(ctx, nil, record, criteria...)
}

func (f *fakeUsers) CreateTx(_ context.Context, _ bun.IDB, record *activation.User, _ ...repository.InsertCriteria) (*activation.User, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	for _, u := range f.store.users {
		if u.Username == record.Username || u.Email == record.Email {
			return nil, fmt.Errorf("unique constraint violation: %s", record.Username)
		}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.PasswordHash == "" {
		record.PasswordHash = activation.UnusablePasswordHash()
	}
	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}

	cp := *record
	f.store.users[record.ID] = &cp

	out := cp
	return &out, nil
}

func (f *fakeUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*activation.User, error) {
	return f.GetByIdentifierTx(ctx, nil, identifier, criteria...)
}

func (f *fakeUsers) GetByIdentifierTx(_ context.Context, _ bun.IDB, identifier string, _ ...repository.SelectCriteria) (*activation.User, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	for _, u := range f.store.users {
		if u.ID.String() == identifier || u.Username == identifier || u.Email == identifier {
			cp := *u
			return &cp, nil
		}
	}

	return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
		"identifier": identifier,
	})
}

func (f *fakeUsers) Activate(ctx context.Context, id uuid.UUID) (*activation.User, error) {
	return f.ActivateTx(ctx, nil, id)
}

func (f *fakeUsers) ActivateTx(_ context.Context, _ bun.IDB, id uuid.UUID) (*activation.User, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	u, ok := f.store.users[id]
	if !ok || u.Active {
		return nil, activation.ErrAccountAlreadyActive
	}

	u.Active = true
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return f.SetPasswordTx(ctx, nil, id, passwordHash)
}

func (f *fakeUsers) SetPasswordTx(_ context.Context, _ bun.IDB, id uuid.UUID, passwordHash string) error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	u, ok := f.store.users[id]
	if !ok {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"id": id.String(),
		})
	}

	u.PasswordHash = passwordHash
	return nil
}

type fakeTokens struct {
	activation.ActivationTokens
	store *memStore
}

func (f *fakeTokens) Issue(ctx context.Context, record *activation.ActivationToken) (*activation.ActivationToken, error) {
	return f.IssueTx(ctx, nil, record)
}

func (f *fakeTokens) IssueTx(_ context.Context, _ bun.IDB, record *activation.ActivationToken) (*activation.ActivationToken, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	if record.UserID != nil {
		for _, t := range f.store.tokens {
			if t.UserID != nil && *t.UserID == *record.UserID {
				return nil, activation.ErrDuplicateToken
			}
		}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}

	cp := *record
	f.store.tokens[record.Token] = &cp

	out := cp
	return &out, nil
}

func (f *fakeTokens) GetByKey(ctx context.Context, key string) (*activation.ActivationToken, error) {
	return f.GetByKeyTx(ctx, nil, key)
}

func (f *fakeTokens) GetByKeyTx(_ context.Context, _ bun.IDB, key string) (*activation.ActivationToken, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	t, ok := f.store.tokens[key]
	if !ok {
		return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
			"token": key,
		})
	}

	cp := *t
	if t.UserID != nil {
		if u, ok := f.store.users[*t.UserID]; ok {
			ucp := *u
			cp.User = &ucp
		}
	}

	return &cp, nil
}

func (f *fakeTokens) ConsumeByKey(ctx context.Context, key string) (*activation.ActivationToken, error) {
	return f.ConsumeByKeyTx(ctx, nil, key)
}

func (f *fakeTokens) ConsumeByKeyTx(_ context.Context, _ bun.IDB, key string) (*activation.ActivationToken, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	t, ok := f.store.tokens[key]
	if !ok {
		return nil, activation.ErrTokenNotFound
	}

	delete(f.store.tokens, key)

	cp := *t
	return &cp, nil
}

func (f *fakeTokens) PurgeOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	count := 0
	for key, t := range f.store.tokens {
		if t.CreatedAt != nil && t.CreatedAt.Before(cutoff) {
			delete(f.store.tokens, key)
			count++
		}
	}

	return count, nil
}

// seedPendingUser stores an inactive account with a live token, the
// state an account is in between creation and activation.
func seedPendingUser(repo *fakeRepo, username, email string) (*activation.User, *activation.ActivationToken, error) {
	user, err := repo.Users().Create(context.Background(), &activation.User{
		Username: username,
		Email:    email,
	})
	if err != nil {
		return nil, nil, err
	}

	key, err := activation.GenerateActivationKey(username)
	if err != nil {
		return nil, nil, err
	}

	token, err := repo.ActivationTokens().Issue(context.Background(), &activation.ActivationToken{
		UserID: &user.ID,
		Token:  key,
	})
	if err != nil {
		return nil, nil, err
	}

	return user, token, nil
}

// stubRenderer does naive placeholder substitution so mail tests can
// assert on content without a template engine in the loop.
type stubRenderer struct{}

func (stubRenderer) RenderString(tpl string, data any, _ ...io.Writer) (string, error) {
	out := tpl
	if m, ok := data.(map[string]any); ok {
		for k, v := range m {
			out = strings.ReplaceAll(out, "{{ "+k+" }}", fmt.Sprintf("%v", v))
		}
	}
	return out, nil
}

type capturingMailer struct {
	mu   sync.Mutex
	sent []activation.MailMessage
}

func (m *capturingMailer) Send(_ context.Context, msg activation.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *capturingMailer) messages() []activation.MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]activation.MailMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
