package authapi

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"burrow/cmd/identity"
	"burrow/cmd/internal/auth/credential"
	"burrow/cmd/internal/auth/gate"
	"burrow/cmd/internal/auth/passkey"
)

// Handler wires HTTP auth endpoints to the credential and passkey services.
type Handler struct {
	log *slog.Logger
	cfg Config

	credentials *credential.Service
	passkeys    *passkey.Service
	gate        *gate.Gate
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, credentials *credential.Service, passkeys *passkey.Service, g *gate.Gate) (*Handler, error) {
	if credentials == nil || passkeys == nil || g == nil {
		return nil, errors.New("authapi: nil service dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:         log,
		cfg:         cfg,
		credentials: credentials,
		passkeys:    passkeys,
		gate:        g,
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	optional := h.gate.Require(gate.TierOptional)
	required := h.gate.Require(gate.TierRequired)
	adminOnly := h.gate.RequireGroups("admin")

	mux.HandleFunc("/api/auth/signup", h.handleSignUp)
	mux.HandleFunc("/api/auth/signin", h.handleSignIn)
	mux.HandleFunc("/api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/api/auth/signout", h.handleSignOut)
	mux.Handle("/api/auth/status", optional(http.HandlerFunc(h.handleStatus)))
	mux.Handle("/api/auth/verify-admin", required(adminOnly(http.HandlerFunc(h.handleVerifyAdmin))))
	mux.Handle("/api/auth/passkey/register/options", required(http.HandlerFunc(h.handlePasskeyRegisterOptions)))
	mux.Handle("/api/auth/passkey/register/verify", required(http.HandlerFunc(h.handlePasskeyRegisterVerify)))
	mux.HandleFunc("/api/auth/passkey/login/options", h.handlePasskeyLoginOptions)
	mux.HandleFunc("/api/auth/passkey/login/verify", h.handlePasskeyLoginVerify)
}

// ---- handlers ----

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signUpRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email, username and password are required")
		return
	}

	now := time.Now().UTC()
	issued, err := h.credentials.SignUp(r.Context(), now, credential.SignUpInput{
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		Avatar:     req.Avatar,
		GroupName:  req.Group,
		DeviceInfo: deviceInfo(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrAlreadyRegistered):
			writeError(w, http.StatusConflict, "already_registered", "email or username already registered")
		case errors.Is(err, credential.ErrUnknownGroup):
			writeError(w, http.StatusBadRequest, "unknown_group", "unknown user group")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid input")
		default:
			h.log.Error("auth.signup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.setAuthCookies(w, issued)
	writeJSON(w, http.StatusCreated, toAuthResponse(issued))
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signInRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := time.Now().UTC()
	issued, err := h.credentials.SignIn(r.Context(), now, req.Login, req.Password, deviceInfo(r))
	if err != nil {
		if errors.Is(err, credential.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.signin.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.setAuthCookies(w, issued)
	writeJSON(w, http.StatusOK, toAuthResponse(issued))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	// Cookie is the primary carriage; the body is the fallback for
	// non-browser clients.
	refreshToken, _ := h.refreshTokenFromCookie(r)
	if refreshToken == "" {
		refreshToken = strings.TrimSpace(req.RefreshToken)
	}
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh token is required")
		return
	}

	now := time.Now().UTC()
	issued, err := h.credentials.Refresh(r.Context(), now, refreshToken, deviceInfo(r))
	if err != nil {
		if errors.Is(err, credential.ErrInvalidRefreshToken) {
			h.clearAuthCookies(w)
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token not active")
			return
		}
		h.log.Error("auth.refresh.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.setAuthCookies(w, issued)
	writeJSON(w, http.StatusOK, toAuthResponse(issued))
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signOutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
	}

	refreshToken, _ := h.refreshTokenFromCookie(r)
	if refreshToken == "" {
		refreshToken = strings.TrimSpace(req.RefreshToken)
	}

	// Revoking an unknown or absent token is still a successful sign-out.
	if err := h.credentials.SignOut(r.Context(), refreshToken); err != nil {
		h.log.Error("auth.signout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{UserID: "0"}
	if id, ok := gate.IdentityFrom(r.Context()); ok {
		resp.UserID = id.UserID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleVerifyAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, verifyAdminResponse{UserID: id.UserID, UserGroup: id.UserGroup})
}

func (h *Handler) handlePasskeyRegisterOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	options, err := h.passkeys.BeginRegistration(r.Context(), id.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unknown_user", "user no longer exists")
			return
		}
		h.log.Error("auth.passkey.register.options.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, options)
}

func (h *Handler) handlePasskeyRegisterVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := gate.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	defer func() { _ = body.Close() }()

	response, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid attestation response")
		return
	}

	now := time.Now().UTC()
	record, err := h.passkeys.FinishRegistration(r.Context(), id.UserID, response, now)
	if err != nil {
		switch {
		case errors.Is(err, passkey.ErrNoPendingChallenge):
			writeError(w, http.StatusBadRequest, "no_pending_challenge", "no registration ceremony in progress")
		case errors.Is(err, passkey.ErrCeremonyFailed):
			writeError(w, http.StatusBadRequest, "ceremony_failed", "attestation verification failed")
		case identity.IsNotFound(err):
			writeError(w, http.StatusUnauthorized, "unknown_user", "user no longer exists")
		default:
			h.log.Error("auth.passkey.register.verify.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toAuthenticatorResponse(record))
}

func (h *Handler) handlePasskeyLoginOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req passkeyLoginOptionsRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Login) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "login is required")
		return
	}

	options, err := h.passkeys.BeginLogin(r.Context(), req.Login)
	if err != nil {
		// Unknown users and users without passkeys read the same to avoid
		// account enumeration.
		if identity.IsNotFound(err) || errors.Is(err, passkey.ErrUnknownCredential) {
			writeError(w, http.StatusBadRequest, "unknown_credential", "no passkey registered for this login")
			return
		}
		h.log.Error("auth.passkey.login.options.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, options)
}

func (h *Handler) handlePasskeyLoginVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req passkeyLoginVerifyRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Login) == "" || len(req.Response) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "login and response are required")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid assertion response")
		return
	}

	user, err := h.passkeys.FinishLogin(r.Context(), req.Login, response)
	if err != nil {
		switch {
		case errors.Is(err, passkey.ErrNoPendingChallenge):
			writeError(w, http.StatusBadRequest, "no_pending_challenge", "no login ceremony in progress")
		case identity.IsNotFound(err), errors.Is(err, passkey.ErrUnknownCredential), errors.Is(err, passkey.ErrCeremonyFailed):
			writeError(w, http.StatusUnauthorized, "ceremony_failed", "assertion verification failed")
		default:
			h.log.Error("auth.passkey.login.verify.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	now := time.Now().UTC()
	issued, err := h.credentials.IssueTokenPair(r.Context(), now, user, deviceInfo(r))
	if err != nil {
		h.log.Error("auth.passkey.login.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.setAuthCookies(w, issued)
	writeJSON(w, http.StatusOK, toAuthResponse(issued))
}

// ---- helpers ----

func deviceInfo(r *http.Request) *string {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return nil
	}
	if len(ua) > 512 {
		ua = ua[:512]
	}
	return &ua
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Avatar:    u.Avatar,
		Group:     u.GroupName,
		CreatedAt: u.CreatedAt,
	}
}

func toAuthResponse(issued credential.Issued) authResponse {
	return authResponse{
		User: toUserResponse(issued.User),
		Session: sessionResponse{
			AccessToken:      issued.AccessToken,
			AccessExpiresAt:  issued.AccessExp,
			RefreshToken:     issued.RefreshToken,
			RefreshExpiresAt: issued.RefreshExp,
		},
	}
}

func toAuthenticatorResponse(a identity.Authenticator) authenticatorResponse {
	transports := a.Transports
	if transports == nil {
		transports = []string{}
	}
	return authenticatorResponse{
		CredentialID: a.CredentialID,
		DeviceType:   a.DeviceType,
		BackedUp:     a.BackedUp,
		Transports:   transports,
		CreatedAt:    a.CreatedAt,
	}
}
