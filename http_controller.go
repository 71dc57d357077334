package activation

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// SessionCookieName is the cookie carrying the post-activation session.
var SessionCookieName = "session"

// RegisterActivationRoutes mounts the account creation and activation
// endpoints on the given router.
func RegisterActivationRoutes[T any](app router.Router[T], opts ...ActivationControllerOption) {

	controller := NewActivationController(opts...)

	app.
		Get(controller.Routes.Create, controller.CreateShow).
		SetName("account-create.get")

	app.
		Post(controller.Routes.Create, controller.CreatePost).
		SetName("account-create.post")

	app.
		Get(controller.Routes.Activate+"/:key", controller.ActivateShow).
		SetName("activate.get")

	app.
		Post(controller.Routes.Activate+"/:key", controller.ActivateExecute).
		SetName("activate.post")
}

type ActivationControllerRoutes struct {
	Create   string
	Activate string
}

type ActivationControllerViews struct {
	Create   string
	Activate string
}

type ActivationController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Tokens       TokenStore
	Mailer       *ActivationMailer
	Auther       Authenticator
	Activity     ActivitySink
	Routes       *ActivationControllerRoutes
	Views        *ActivationControllerViews
	ErrorHandler router.ErrorHandler
}

type ActivationControllerOption func(*ActivationController) *ActivationController

func NewActivationController(opts ...ActivationControllerOption) *ActivationController {
	c := &ActivationController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &ActivationControllerRoutes{
			Create:   "/accounts",
			Activate: "/activate",
		},
		Views: &ActivationControllerViews{
			Create:   "account_create",
			Activate: "activate",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in activation controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenStore in activation controller...")
	}

	return c
}

func (a *ActivationController) CreateShow(ctx router.Context) error {
	return ctx.Render(a.Views.Create, router.ViewContext{
		"errors": nil,
		"record": CreateAccountMessage{Notify: true},
	})
}

// AccountCreatePayload is the form payload
type AccountCreatePayload struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	Notify          bool   `form:"notify" json:"notify"`
}

func (a *ActivationController) CreatePost(ctx router.Context) error {
	errors := map[string]string{}
	payload := new(AccountCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errors["form"] = "Failed to parse form"
		a.Logger.Error("create account parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Create, router.ViewContext{
			"errors": errors,
			"record": payload,
		})
	}

	req := CreateAccountMessage{
		Username:        payload.Username,
		Email:           payload.Email,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		Notify:          payload.Notify,
	}

	if err := req.Validate(); err != nil {
		a.Logger.Error("create account validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Create, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	createAccount := NewCreateAccountHandler(a.Repo, a.Tokens, a.Mailer).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := createAccount.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("create account error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating account",
		}).Render(a.Views.Create, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account created",
	}).Redirect("/", fiber.StatusSeeOther)
}

// ActivateShow renders the set-password prompt when the key maps to a
// pending account, or the invalid-link notice otherwise. Read only.
func (a *ActivationController) ActivateShow(ctx router.Context) error {
	key := NormalizeActivationKey(ctx.Param("key", ""))

	var resp *ActivationRequestResponse
	input := ActivationRequestMessage{
		Key: key,
		OnResponse: func(r *ActivationRequestResponse) {
			resp = r
		},
	}

	check := NewActivationRequestHandler(a.Tokens).WithLogger(a.Logger)

	if err := check.Execute(ctx.Context(), input); err != nil {
		a.Logger.Error("activation request error: %v", err)
		return a.ErrorHandler(ctx, err)
	}

	var account *User
	if resp.Found {
		account = resp.User
	}

	return ctx.Render(a.Views.Activate, router.ViewContext{
		"errors":  nil,
		"account": account,
		"found":   resp.Found,
		"key":     key,
	})
}

// SetPasswordPayload holds the chosen password for activation
type SetPasswordPayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (a *ActivationController) ActivateExecute(ctx router.Context) error {
	key := NormalizeActivationKey(ctx.Param("key", ""))

	errors := map[string]string{}
	payload := new(SetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		errors["form"] = "Failed to parse form"
		a.Logger.Error("activate account parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Activate, router.ViewContext{
			"errors": errors,
			"key":    key,
		})
	}

	var res *ActivateAccountResponse

	input := ActivateAccountMessage{
		Key:             key,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse: func(r *ActivateAccountResponse) {
			res = r
		},
	}

	if err := input.Validate(); err != nil {
		a.Logger.Error("activate account validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Activate, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
			"found":      true,
			"key":        key,
		})
	}

	activate := NewActivateAccountHandler(a.Repo, a.Tokens).
		WithAuthenticator(a.Auther).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := activate.Execute(ctx.Context(), input); err != nil {
		// malformed, unknown, and expired keys all collapse into one
		// message so the response never confirms which keys exist
		if IsInvalidActivationKey(err) {
			errors["activation"] = InvalidActivationKeyMessage
		} else {
			errors["activation"] = err.Error()
		}
		a.Logger.Error("activate account error: %v", err)
		return ctx.Render(a.Views.Activate, router.ViewContext{
			"errors": errors,
			"found":  false,
			"key":    key,
		})
	}

	if res != nil && res.Session != "" {
		ctx.Cookie(&router.Cookie{
			Name:     SessionCookieName,
			Value:    res.Session,
			Expires:  time.Now().Add(time.Hour * 24),
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Lax",
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your password has been set. You are now logged in.",
	}).Redirect("/", fiber.StatusSeeOther)
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map for templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
