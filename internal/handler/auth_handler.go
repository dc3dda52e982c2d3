package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scholara/account-service/internal/middleware"
	"github.com/scholara/account-service/internal/service"
)

// AuthHandler is the HTTP boundary of the registration pipeline. It decodes
// and validates request bodies, delegates to the AuthService, and maps
// domain errors to status codes; no business logic lives here.
type AuthHandler struct {
	svc      service.AuthService
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewAuthHandler constructs a new handler, given an AuthService.
func NewAuthHandler(svc service.AuthService, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register mounts the auth routes. requireAuth guards the profile endpoint.
func (h *AuthHandler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/otp", h.RequestCode)
		r.Post("/verify-otp", h.VerifyCode)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Post("/setup-admin", h.SetupAdmin)
		r.With(requireAuth).Get("/me", h.Me)
	})
}

type requestCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyCodeRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=30"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	OTP        string `json:"otp" validate:"required,len=6,numeric"`
	ReferralID string `json:"referralId"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type setupAdminRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=30"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	SecretKey string `json:"secretKey" validate:"required"`
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Missing or invalid fields"})
		return false
	}
	return true
}

// RequestCode handles POST /api/auth/otp. The code travels out-of-band; it
// is never part of the response payload.
func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.RequestCode(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Verification code sent",
	})
}

// VerifyCode handles POST /api/auth/verify-otp.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyCode(r.Context(), service.VerifyInput{
		Email:      req.Email,
		Code:       req.OTP,
		Username:   req.Username,
		Password:   req.Password,
		ReferralID: req.ReferralID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   res.Token,
		"user":    res.User,
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": res.Token,
		"user":  res.User,
	})
}

// Logout is stateless; the client discards its token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// Me handles GET /api/auth/me for an authenticated identity.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "Unauthenticated"})
		return
	}
	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SetupAdmin handles the one-time admin bootstrap.
func (h *AuthHandler) SetupAdmin(w http.ResponseWriter, r *http.Request) {
	var req setupAdminRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.svc.SetupAdmin(r.Context(), service.AdminSetupInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		SecretKey: req.SecretKey,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Initial admin account created successfully",
		"user":    user,
	})
}
