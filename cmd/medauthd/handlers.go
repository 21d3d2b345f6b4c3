package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/medauth/medauth"
	"github.com/medauth/medauth/metrics/export/prometheus"
	"github.com/medauth/medauth/middleware"
)

type api struct {
	engine *medauth.Engine
	logger *slog.Logger
}

func newRouter(engine *medauth.Engine, logger *slog.Logger) http.Handler {
	a := &api{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", a.health)
	r.Method(http.MethodGet, "/metrics", prometheus.NewPrometheusExporter(engine).Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/verify-otp", a.verifyOTP)
		r.Post("/resend-otp", a.resendOTP)
		r.Post("/login", a.login)
		r.Post("/forgot-password", a.forgotPassword)
		r.Post("/reset-password", a.resetPassword)
		r.Get("/validate-token", a.validateToken)
		r.Post("/logout", a.logout)
		r.Post("/logout-all", a.logoutAll)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))
			r.Get("/sessions", a.sessions)
		})
	})

	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Role     string `json:"role"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`

	IsPregnant     *bool  `json:"is_pregnant"`
	Specialization string `json:"specialization"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	input := medauth.RegisterInput{
		Role:     medauth.Role(req.Role),
		Email:    req.Email,
		Username: req.Username,
		FullName: req.FullName,
		Mobile:   req.Mobile,
		Password: req.Password,
	}
	if req.IsPregnant != nil {
		input.Patient = &medauth.PatientProfile{IsPregnant: *req.IsPregnant}
	}
	if req.Specialization != "" {
		input.Doctor = &medauth.DoctorProfile{Specialization: req.Specialization}
	}

	res, err := a.engine.Register(requestContext(r), input)
	if err != nil {
		a.writeError(w, err)
		return
	}

	body := map[string]any{
		"public_id":  res.PublicID,
		"email":      res.Email,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
	}
	if res.MailError != nil {
		body["warning"] = "verification code could not be delivered, request a resend"
	}
	writeJSON(w, http.StatusCreated, body)
}

type otpRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (a *api) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := a.engine.VerifyEmail(requestContext(r), req.Email, req.Code)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"public_id": res.Account.PublicID,
		"role":      string(res.Account.Role),
		"email":     res.Account.Email,
	})
}

func (a *api) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := a.engine.ResendOTP(requestContext(r), req.Email); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := a.engine.Login(requestContext(r), req.Identifier, req.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      res.Token,
		"expires_at": res.ExpiresAt.Format(time.RFC3339),
		"public_id":  res.Account.PublicID,
		"role":       string(res.Account.Role),
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (a *api) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := a.engine.ForgotPassword(requestContext(r), req.Email); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "if the email has an account, a code was sent",
	})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := a.engine.ResetPassword(requestContext(r), req.Email, req.Code, req.NewPassword); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (a *api) validateToken(w http.ResponseWriter, r *http.Request) {
	info, err := a.engine.ValidateToken(requestContext(r), bearerToken(r))
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"public_id":  info.PublicID,
		"role":       string(info.Role),
		"session_id": info.SessionID,
		"expires_at": info.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Logout(requestContext(r), bearerToken(r)); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (a *api) logoutAll(w http.ResponseWriter, r *http.Request) {
	revoked, err := a.engine.LogoutAll(requestContext(r), bearerToken(r))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "logged out",
		"revoked": revoked,
	})
}

func (a *api) sessions(w http.ResponseWriter, r *http.Request) {
	info, ok := middleware.TokenInfoFromContext(r.Context())
	if !ok {
		a.writeError(w, medauth.ErrTokenInvalid)
		return
	}

	ids, err := a.engine.ActiveSessions(requestContext(r), info.PublicID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func requestContext(r *http.Request) context.Context {
	return middleware.WithRequestMetadata(r.Context(), r)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps engine sentinels onto HTTP statuses. Store failures log
// the cause and answer with a generic 503 so internals never leak.
func (a *api) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, medauth.ErrValidation):
		status, message = http.StatusBadRequest, "invalid input"
	case errors.Is(err, medauth.ErrPasswordPolicy):
		status, message = http.StatusBadRequest, "password does not meet policy"
	case errors.Is(err, medauth.ErrUserExists):
		status, message = http.StatusConflict, "user already exists"
	case errors.Is(err, medauth.ErrAlreadyVerified):
		status, message = http.StatusConflict, "account already verified"
	case errors.Is(err, medauth.ErrUserNotFound):
		status, message = http.StatusNotFound, "user not found"
	case errors.Is(err, medauth.ErrAuthenticationFailed):
		status, message = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, medauth.ErrOTPNotFound):
		status, message = http.StatusBadRequest, "no code issued"
	case errors.Is(err, medauth.ErrOTPExpired):
		status, message = http.StatusBadRequest, "code expired"
	case errors.Is(err, medauth.ErrOTPMismatch):
		status, message = http.StatusBadRequest, "wrong code"
	case errors.Is(err, medauth.ErrOTPAttemptsExceeded):
		status, message = http.StatusBadRequest, "too many wrong codes, request a new one"
	case errors.Is(err, medauth.ErrRegistrationExpired):
		status, message = http.StatusGone, "registration expired, register again"
	case errors.Is(err, medauth.ErrTokenExpired):
		status, message = http.StatusUnauthorized, "token expired"
	case errors.Is(err, medauth.ErrTokenInvalid):
		status, message = http.StatusUnauthorized, "token invalid"
	case errors.Is(err, medauth.ErrSessionRevoked):
		status, message = http.StatusUnauthorized, "session revoked"
	case errors.Is(err, medauth.ErrLoginRateLimited), errors.Is(err, medauth.ErrOTPRateLimited):
		status, message = http.StatusTooManyRequests, "too many attempts, slow down"
	case errors.Is(err, medauth.ErrEmailDeliveryFailed):
		status, message = http.StatusBadGateway, "code could not be delivered"
	case errors.Is(err, medauth.ErrStoreUnavailable):
		status, message = http.StatusServiceUnavailable, "temporarily unavailable"
		a.logger.Error("store failure", slog.String("error", err.Error()))
	default:
		a.logger.Error("unhandled engine error", slog.String("error", err.Error()))
	}

	writeJSON(w, status, map[string]string{"error": message})
}
