package activation

import (
	"context"
	"errors"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

var usernamePattern = regexp.MustCompile(`^\w+$`)

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// CreateAccountMessage carries the account creation input. Leave
// Password empty to create a pending account with an activation token;
// provide one to create the account immediately active.
type CreateAccountMessage struct {
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
	Notify          bool   `json:"notify" form:"notify"`
	OnResponse      func(resp *CreateAccountResponse)
}

func (e CreateAccountMessage) Type() string { return "user.account.create" }

// Validate will run validation rules
func (e CreateAccountMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(
			&e.Username,
			validation.Required,
			validation.Length(1, 30),
			validation.Match(usernamePattern),
		),
		validation.Field(
			&e.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&e.ConfirmPassword,
			validation.By(ValidateStringEquals(e.Password)),
		),
	)
}

// CreateAccountResponse reports the created account and, for the
// pending path, the issued token.
type CreateAccountResponse struct {
	User     *User
	Token    *ActivationToken
	Notified bool
}

type CreateAccountHandler struct {
	repo     RepositoryManager
	tokens   TokenStore
	mailer   *ActivationMailer
	activity ActivitySink
	logger   Logger
}

// NewCreateAccountHandler creates a handler with sane defaults.
func NewCreateAccountHandler(repo RepositoryManager, tokens TokenStore, mailer *ActivationMailer) *CreateAccountHandler {
	return &CreateAccountHandler{
		repo:     repo,
		tokens:   tokens,
		mailer:   mailer,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit account events.
func (h *CreateAccountHandler) WithActivitySink(sink ActivitySink) *CreateAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *CreateAccountHandler) WithLogger(logger Logger) *CreateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *CreateAccountHandler) Execute(ctx context.Context, event CreateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateAccountHandler) execute(ctx context.Context, event CreateAccountMessage) error {
	resp := &CreateAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account creation payload")
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.ensureAvailable(ctx, tx, event.Username); err != nil {
			return err
		}
		if err := h.ensureAvailable(ctx, tx, event.Email); err != nil {
			return err
		}

		user := &User{
			Username: event.Username,
			Email:    event.Email,
		}

		if event.Password == "" {
			// invite path: pending account, unusable credential,
			// activation token proves control of the mailbox
			user.PasswordHash = UnusablePasswordHash()
			user.Active = false
		} else {
			hash, err := HashPassword(event.Password)
			if err != nil {
				var richErr *goerrors.Error
				if goerrors.As(err, &richErr) {
					return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
			}
			user.PasswordHash = hash
			user.Active = true
		}

		created, err := h.repo.Users().CreateTx(ctx, tx, user)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}
		resp.User = created

		if event.Password == "" {
			token, err := h.tokens.GenerateTx(ctx, tx, created)
			if err != nil {
				var richErr *goerrors.Error
				if goerrors.As(err, &richErr) {
					return richErr
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue activation token")
			}
			resp.Token = token
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account creation transaction failed")
	}

	if event.Notify {
		h.notify(ctx, resp, event.Password)
	}

	h.recordActivity(ctx, resp.User)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *CreateAccountHandler) ensureAvailable(ctx context.Context, tx bun.IDB, identifier string) error {
	_, err := h.repo.Users().GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		return goerrors.New("an account with that username or email already exists", goerrors.CategoryConflict).
			WithMetadata(map[string]any{"identifier": identifier})
	}

	if repository.IsRecordNotFound(err) {
		return nil
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check account availability")
}

// notify dispatches the appropriate notice after the transaction has
// committed. Delivery failures are logged, they do not undo creation.
func (h *CreateAccountHandler) notify(ctx context.Context, resp *CreateAccountResponse, password string) {
	if h.mailer == nil || resp.User == nil {
		return
	}

	var err error
	if resp.Token != nil {
		err = h.mailer.MailActivationLink(ctx, resp.User, resp.Token)
	} else {
		err = h.mailer.MailCredentials(ctx, resp.User, password)
	}

	if err != nil {
		h.logger.Error("failed to send account notification: %v", err)
		return
	}

	resp.Notified = true
}

func (h *CreateAccountHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventAccountCreated,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID: user.ID.String(),
		Metadata: map[string]any{
			"active": user.Active,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during account creation: %v", err)
	}
}
