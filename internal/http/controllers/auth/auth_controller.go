// Package auth expone signup, signin, refresh y signout sobre el proveedor
// de identidad.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/sentinel/internal/domain/repository"
	"github.com/dropDatabas3/sentinel/internal/guard"
	"github.com/dropDatabas3/sentinel/internal/http/dto"
	httperrors "github.com/dropDatabas3/sentinel/internal/http/errors"
	"github.com/dropDatabas3/sentinel/internal/http/helpers"
	"github.com/dropDatabas3/sentinel/internal/identity"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// Accounts es el lado de credenciales del proveedor.
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (*repository.Session, error)
	SignIn(ctx context.Context, email, password string) (*repository.Session, error)
	Refresh(ctx context.Context) (*repository.Session, error)
}

// Gate es la parte del guard que usa este controller.
type Gate interface {
	SignOut(ctx context.Context) (guard.State, error)
	AwaitSettled(ctx context.Context) (guard.State, error)
}

// settleTimeout cuánto esperamos a que el guard clasifique la sesión nueva.
const settleTimeout = 3 * time.Second

type Controller struct {
	accounts Accounts
	gate     Gate
}

func NewController(accounts Accounts, gate Gate) *Controller {
	return &Controller{accounts: accounts, gate: gate}
}

// SignUp maneja POST /v1/auth/signup.
func (c *Controller) SignUp(w http.ResponseWriter, r *http.Request) {
	c.exchange(w, r, "AuthController.SignUp", http.StatusCreated, c.accounts.SignUp)
}

// SignIn maneja POST /v1/auth/signin.
func (c *Controller) SignIn(w http.ResponseWriter, r *http.Request) {
	c.exchange(w, r, "AuthController.SignIn", http.StatusOK, c.accounts.SignIn)
}

type exchangeFunc func(ctx context.Context, email, password string) (*repository.Session, error)

func (c *Controller) exchange(w http.ResponseWriter, r *http.Request, op string, status int, fn exchangeFunc) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op(op))

	var req dto.CredentialsRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httperrors.WriteError(w, r, httperrors.ErrBadRequest.WithDetail("email and password are required"))
		return
	}

	sess, err := fn(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			httperrors.WriteError(w, r, httperrors.ErrInvalidCredentials)
			return
		}
		log.Debug("credential exchange rejected", logger.Err(err))
		httperrors.WriteError(w, r, err)
		return
	}
	c.respond(w, r, status, sess)
}

// Refresh maneja POST /v1/auth/refresh: extiende la sesión vigente.
func (c *Controller) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := c.accounts.Refresh(r.Context())
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	c.respond(w, r, http.StatusOK, sess)
}

// respond espera a que el guard clasifique la sesión y la devuelve junto
// con la pantalla.
func (c *Controller) respond(w http.ResponseWriter, r *http.Request, status int, sess *repository.Session) {
	ctx := r.Context()
	wctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	st, err := c.gate.AwaitSettled(wctx)
	if err != nil {
		logger.From(ctx).Warn("screen not settled yet", logger.Layer("controller"), logger.Err(err))
	}

	helpers.WriteJSON(w, status, dto.SessionResponse{
		SubjectID: sess.SubjectID,
		Email:     sess.Email,
		ExpiresAt: sess.ExpiresAt.UTC(),
		Screen:    st.Screen.String(),
	})
}

// SignOut maneja POST /v1/auth/signout.
func (c *Controller) SignOut(w http.ResponseWriter, r *http.Request) {
	st, err := c.gate.SignOut(r.Context())
	if err != nil {
		httperrors.WriteError(w, r, httperrors.ErrBadGateway.WithDetail("sign out failed").WithCause(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, helpers.ScreenResponse(st))
}
