package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	praxis "github.com/praxis-id/praxis"
)

// Handler is the HTTP front of the engine.
type Handler struct {
	svc Service
	cfg Config
}

func NewHandler(svc Service, cfg Config) *Handler {
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = time.Minute
	}
	return &Handler{svc: svc, cfg: cfg}
}

// Router mounts every endpoint of the credential API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.login)
	r.Post("/2fa/verify", h.verify2FA)
	r.Post("/refresh", h.refresh)
	r.Post("/logout", h.logout)
	r.Post("/forgot-password", h.forgotPassword)
	r.Post("/reset-password", h.resetPassword)

	r.Post("/webauthn/authentication/begin", h.webauthnLoginBegin)
	r.Post("/webauthn/authentication/finish", h.webauthnLoginFinish)

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)

		r.Post("/2fa/disable", h.disable2FA)
		r.Post("/2fa/enroll/begin", h.totpEnrollBegin)
		r.Post("/2fa/enroll/confirm", h.totpEnrollConfirm)

		r.Post("/backup-codes/generate", h.backupCodesGenerate)
		r.Get("/backup-codes/remaining", h.backupCodesRemaining)

		r.Post("/webauthn/registration/begin", h.webauthnRegisterBegin)
		r.Post("/webauthn/registration/finish", h.webauthnRegisterFinish)
		r.Get("/webauthn/credentials", h.webauthnCredentials)
		r.Patch("/webauthn/credentials/{id}", h.webauthnRename)
		r.Delete("/webauthn/credentials/{id}", h.webauthnRemove)

		r.Get("/session/list", h.sessionList)
		r.Delete("/session/{id}", h.sessionRevoke)
		r.Get("/session/history", h.sessionHistory)
	})

	return r
}

type userKey struct{}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// requireUser authenticates the request from the access-token cookie,
// falling back to an Authorization bearer header for non-browser
// clients.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := cookieValue(r, accessCookie)
		if token == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		userID, _, err := h.svc.VerifyAccessToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

func deviceInfo(r *http.Request) praxis.DeviceInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return praxis.DeviceInfo{
		IP:          ip,
		UserAgent:   r.UserAgent(),
		Fingerprint: r.Header.Get("X-Device-Fingerprint"),
	}
}

// decode reads a bounded JSON body. An empty body decodes to the zero
// request, which the engine's own validation rejects where it matters.
func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	err := dec.Decode(into)
	return err == nil || errors.Is(err, io.EOF)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SecondFactorRequired bool      `json:"second_factor_required,omitempty"`
	ChallengeID          string    `json:"challenge_id,omitempty"`
	AccessExpiresAt      time.Time `json:"access_expires_at,omitempty"`

	// Present only when a backup code finished the login.
	BackupCodesRemaining *int `json:"backup_codes_remaining,omitempty"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password, deviceInfo(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.SecondFactor {
		writeJSON(w, http.StatusUnauthorized, loginResponse{
			SecondFactorRequired: true,
			ChallengeID:          result.ChallengeID,
		})
		return
	}

	h.setSessionCookies(w, result.Tokens)
	writeJSON(w, http.StatusOK, loginResponse{AccessExpiresAt: result.Tokens.AccessExpiresAt})
}

type verify2FARequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

func (h *Handler) verify2FA(w http.ResponseWriter, r *http.Request) {
	var req verify2FARequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}

	result, err := h.svc.ConfirmLogin2FA(r.Context(), req.ChallengeID, req.Code, deviceInfo(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessExpiresAt:      result.Tokens.AccessExpiresAt,
		BackupCodesRemaining: result.BackupCodesRemaining,
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) disable2FA(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}
	if err := h.svc.Disable2FA(r.Context(), userFrom(r.Context()), req.Code); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type totpEnrollResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURI string `json:"otpauth_uri"`
}

func (h *Handler) totpEnrollBegin(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.svc.BeginTOTPEnrollment(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totpEnrollResponse{
		Secret:     enrollment.SecretBase32,
		OTPAuthURI: enrollment.OTPAuthURI,
	})
}

type backupCodesResponse struct {
	Codes []string `json:"codes"`
}

func (h *Handler) totpEnrollConfirm(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}
	codes, err := h.svc.ConfirmTOTPEnrollment(r.Context(), userFrom(r.Context()), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backupCodesResponse{Codes: codes})
}

func (h *Handler) backupCodesGenerate(w http.ResponseWriter, r *http.Request) {
	codes, err := h.svc.RegenerateBackupCodes(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backupCodesResponse{Codes: codes})
}

func (h *Handler) backupCodesRemaining(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RemainingBackupCodes(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": n})
}

type webauthnBeginRequest struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type webauthnBeginResponse struct {
	CeremonyID string `json:"ceremony_id"`
	Options    any    `json:"options"`
}

func (h *Handler) webauthnRegisterBegin(w http.ResponseWriter, r *http.Request) {
	var req webauthnBeginRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}
	ceremonyID, options, err := h.svc.BeginWebAuthnRegistration(r.Context(), userFrom(r.Context()), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webauthnBeginResponse{CeremonyID: ceremonyID, Options: options})
}

type webauthnFinishRequest struct {
	CeremonyID string          `json:"ceremony_id"`
	Response   json.RawMessage `json:"response"`
}

func (h *Handler) webauthnRegisterFinish(w http.ResponseWriter, r *http.Request) {
	var req webauthnFinishRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}
	info, err := h.svc.FinishWebAuthnRegistration(r.Context(), userFrom(r.Context()), req.CeremonyID, strings.NewReader(string(req.Response)))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) webauthnLoginBegin(w http.ResponseWriter, r *http.Request) {
	var req webauthnBeginRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}

	var (
		ceremonyID string
		options    any
		err        error
	)
	if req.Email == "" {
		ceremonyID, options, err = h.svc.BeginDiscoverableWebAuthnLogin(r.Context())
	} else {
		ceremonyID, options, err = h.svc.BeginWebAuthnLogin(r.Context(), req.Email)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webauthnBeginResponse{CeremonyID: ceremonyID, Options: options})
}

func (h *Handler) webauthnLoginFinish(w http.ResponseWriter, r *http.Request) {
	var req webauthnFinishRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}
	result, err := h.svc.FinishWebAuthnLogin(r.Context(), req.CeremonyID, strings.NewReader(string(req.Response)), deviceInfo(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setSessionCookies(w, result.Tokens)
	writeJSON(w, http.StatusOK, loginResponse{AccessExpiresAt: result.Tokens.AccessExpiresAt})
}

func (h *Handler) webauthnCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.svc.ListWebAuthnCredentials(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) webauthnRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}
	err := h.svc.RenameWebAuthnCredential(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) webauthnRemove(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveWebAuthnCredential(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, refreshCookie)
	if token == "" {
		h.writeError(w, praxis.ErrRefreshInvalid)
		return
	}

	pair, err := h.svc.Refresh(r.Context(), token, deviceInfo(r))
	if err != nil {
		// A reuse detection or invalid token ends the browser session.
		h.clearSessionCookies(w)
		h.writeError(w, err)
		return
	}

	h.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, loginResponse{AccessExpiresAt: pair.AccessExpiresAt})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token := cookieValue(r, refreshCookie); token != "" {
		if err := h.svc.Logout(r.Context(), token); err != nil {
			h.writeError(w, err)
			return
		}
	}
	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) sessionList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.Sessions(r.Context(), userFrom(r.Context()), cookieValue(r, refreshCookie))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) sessionRevoke(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RevokeSession(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) sessionHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.svc.LoginHistory(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email, deviceInfo(r).IP); err != nil {
		h.writeError(w, err)
		return
	}
	// Constant response whether or not the account exists.
	writeJSON(w, http.StatusAccepted, nil)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		h.writeError(w, praxis.ErrInvalidInput)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword, deviceInfo(r).IP); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
