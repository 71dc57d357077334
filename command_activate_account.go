package activation

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ActivateAccountMessage finalizes an activation: the presented key
// plus the password the user chose.
type ActivateAccountMessage struct {
	Key             string `json:"key" form:"key"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
	OnResponse      func(resp *ActivateAccountResponse)
}

func (e ActivateAccountMessage) Type() string { return "user.activation.finalize" }

// Validate will run validation rules. A password mismatch is a user
// correctable error and must fail here, before anything is touched.
func (e ActivateAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Key,
			validation.Required,
		),
		validation.Field(
			&e.Password,
			validation.Required,
		),
		validation.Field(
			&e.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(e.Password)),
		),
	)
}

// ActivateAccountResponse reports the activated account and, when an
// authenticator is configured, a session token for the fresh login.
type ActivateAccountResponse struct {
	User    *User
	Session string
}

type ActivateAccountHandler struct {
	repo     RepositoryManager
	tokens   TokenStore
	auther   Authenticator
	activity ActivitySink
	logger   Logger
}

// NewActivateAccountHandler creates a handler with sane defaults.
func NewActivateAccountHandler(repo RepositoryManager, tokens TokenStore) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		repo:     repo,
		tokens:   tokens,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithAuthenticator makes a successful activation log the user in.
func (h *ActivateAccountHandler) WithAuthenticator(auther Authenticator) *ActivateAccountHandler {
	h.auther = auther
	return h
}

// WithActivitySink sets the sink used to emit activation events.
func (h *ActivateAccountHandler) WithActivitySink(sink ActivitySink) *ActivateAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	resp := &ActivateAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid activation payload")
	}

	// consume and password set are one transaction: no password
	// without a consumed key, no consumed key without a password
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.tokens.ConsumeTx(ctx, tx, event.Key)
		if err != nil {
			return err
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid new password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		if err := h.repo.Users().SetPasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set account password")
		}

		user.PasswordHash = hash
		resp.User = user
		return nil
	})

	if err != nil {
		h.recordFailure(ctx, event.Key, err)
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account activation transaction failed")
	}

	if h.auther != nil {
		session, err := h.auther.Login(ctx, resp.User.Username, event.Password)
		if err != nil {
			// the account is active and the password set, a login
			// failure here only costs the user a manual sign in
			h.logger.Warn("post-activation login failed: %v", err)
		} else {
			resp.Session = session
		}
	}

	h.recordActivity(ctx, resp.User)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *ActivateAccountHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventAccountActivated,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during account activation: %v", err)
	}
}

func (h *ActivateAccountHandler) recordFailure(ctx context.Context, key string, cause error) {
	if !IsInvalidActivationKey(cause) {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventActivationFailure,
		Actor: ActorRef{
			Type: "unknown",
		},
		Metadata: map[string]any{
			"key_length": len(key),
			"error":      cause.Error(),
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during activation failure: %v", err)
	}
}
