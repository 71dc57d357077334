package activation

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ActivationRequestMessage asks whether a presented key maps to a
// pending account. Read only, the key is not consumed.
type ActivationRequestMessage struct {
	Key        string `json:"key"`
	OnResponse func(resp *ActivationRequestResponse)
}

func (e ActivationRequestMessage) Type() string { return "user.activation.request" }

// ActivationRequestResponse exposes the lookup outcome so callers can
// render a password prompt or an invalid-link notice. Malformed,
// unknown, and expired keys all surface as Found=false; the reason is
// only kept in logs.
type ActivationRequestResponse struct {
	Found bool
	User  *User
}

type ActivationRequestHandler struct {
	tokens TokenStore
	logger Logger
}

// NewActivationRequestHandler creates a handler with sane defaults.
func NewActivationRequestHandler(tokens TokenStore) *ActivationRequestHandler {
	return &ActivationRequestHandler{
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ActivationRequestHandler) WithLogger(logger Logger) *ActivationRequestHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivationRequestHandler) Execute(ctx context.Context, event ActivationRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivationRequestHandler) execute(ctx context.Context, event ActivationRequestMessage) error {
	resp := &ActivationRequestResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.tokens.Check(ctx, event.Key)
	if err != nil {
		// an invalid key is part of the expected flow, not an
		// application error
		if !IsInvalidActivationKey(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check activation key")
		}
		h.logger.Debug("activation key rejected: %v", err)
	} else {
		resp.Found = true
		resp.User = user
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
