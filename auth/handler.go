package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/workdesk/cognito"
	"github.com/upb/workdesk/config"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/services"
	"github.com/upb/workdesk/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenExchanger runs the OAuth2 authorization code flow
type TokenExchanger interface {
	AuthCodeURL(state, verifier string) string
	ExchangeCode(ctx context.Context, code, verifier string) (idToken string, err error)
}

// TokenValidator validates JWT tokens and returns parsed claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*cognito.ParsedClaims, error)
}

// SessionStore issues and ends sessions
type SessionStore interface {
	Create(ctx context.Context, identity access.Identity, label string) (*access.Session, error)
	Destroy(ctx context.Context, id uuid.UUID) error
}

// Handler handles OAuth2 authentication flows (login, callback, logout).
type Handler struct {
	cfg       config.CognitoConfig
	exchanger TokenExchanger
	validator TokenValidator
	sessions  SessionStore
	cookies   *Cookies
	logger    *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(cfg config.CognitoConfig, exchanger TokenExchanger, validator TokenValidator, sessions SessionStore, cookies *Cookies, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		exchanger: exchanger,
		validator: validator,
		sessions:  sessions,
		cookies:   cookies,
		logger:    logger,
	}
}

// HandleLogin redirects to the Cognito hosted UI. An optional return_to
// path is restored after the callback.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	st := loginState{
		State:    state,
		Verifier: oauth2.GenerateVerifier(),
		ReturnTo: sanitizeReturnTo(r.URL.Query().Get("return_to")),
	}
	if err := h.cookies.writeLoginState(w, st); err != nil {
		h.logger.Error("failed to write state cookie", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.Redirect(w, r, h.exchanger.AuthCodeURL(st.State, st.Verifier), http.StatusFound)
}

// HandleCallback exchanges the authorization code, validates the ID token,
// opens a session and sets the session cookie
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if idpErr := query.Get("error"); idpErr != "" {
		h.logger.Warn("identity provider returned an error",
			zap.String("error", idpErr),
			zap.String("description", query.Get("error_description")))
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	st, ok := h.cookies.readLoginState(r)
	h.cookies.clearLoginState(w)
	if !ok || st.State != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}

	ctx := r.Context()
	idToken, err := h.exchanger.ExchangeCode(ctx, code, st.Verifier)
	if err != nil {
		h.logger.Warn("token exchange failed", zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	claims, err := h.validator.ValidateToken(ctx, idToken)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Invalid token")
		return
	}

	sess, err := h.sessions.Create(ctx, claims.Identity(), claims.RoleLabel)
	if err != nil {
		if services.IsForbiddenError(err) {
			_ = utils.WriteForbidden(w, "Your account does not have a recognised role")
			return
		}
		h.logger.Error("failed to create session", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to complete login")
		return
	}

	if err := h.cookies.WriteSession(w, sess.ID); err != nil {
		h.logger.Error("failed to write session cookie", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to complete login")
		return
	}

	http.Redirect(w, r, h.frontEnd(st.ReturnTo), http.StatusFound)
}

// HandleLogout ends the session, clears the cookie and redirects to the
// Cognito logout endpoint
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.cookies.ReadSession(r); ok {
		if err := h.sessions.Destroy(r.Context(), id); err != nil && !errors.Is(err, services.ErrNoSession) {
			h.logger.Warn("failed to destroy session", zap.Error(err))
		}
	}
	h.cookies.ClearSession(w)

	if h.cfg.Domain == "" {
		http.Redirect(w, r, h.frontEnd(""), http.StatusFound)
		return
	}
	http.Redirect(w, r, buildLogoutURL(h.cfg.Domain, h.cfg.ClientID, h.frontEnd("")), http.StatusFound)
}

func (h *Handler) frontEnd(path string) string {
	base := strings.TrimSuffix(h.cfg.FrontEndURL, "/")
	if path == "" {
		path = "/"
	}
	return base + path
}

// sanitizeReturnTo keeps only same-site absolute paths
func sanitizeReturnTo(path string) string {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "\\") {
		return ""
	}
	return path
}

func buildLogoutURL(domain, clientID, logoutURI string) string {
	base := strings.TrimSuffix(domain, "/") + "/logout"
	params := url.Values{
		"client_id":  {clientID},
		"logout_uri": {logoutURI},
	}
	return base + "?" + params.Encode()
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
