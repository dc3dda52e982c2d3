package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/scholara/account-service/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the JSON error envelope. Expired distinguishes an expired
// code from a mistyped one so the client can offer "resend" vs "retype".
type errorBody struct {
	Message string `json:"message"`
	Expired bool   `json:"expired,omitempty"`
}

// writeError translates domain errors into the status codes of the public
// contract. Anything unrecognized is a 500 with a generic message; the
// details go to the log only.
func writeError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrNoPendingCode):
		writeJSON(w, http.StatusNotFound, errorBody{Message: "No pending registration found for this email"})
	case errors.Is(err, apperr.ErrAlreadyVerified):
		writeJSON(w, http.StatusConflict, errorBody{Message: "Account already registered"})
	case errors.Is(err, apperr.ErrCodeExpired):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Verification code has expired", Expired: true})
	case errors.Is(err, apperr.ErrCodeInvalid):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Invalid verification code"})
	case errors.Is(err, apperr.ErrUsernameTaken):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "Username already taken"})
	case errors.Is(err, apperr.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "Invalid email or password"})
	case errors.Is(err, apperr.ErrNotVerified):
		writeJSON(w, http.StatusForbidden, errorBody{Message: "Account is not verified"})
	case errors.Is(err, apperr.ErrCooldown):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Message: "A code was sent recently, please wait before retrying"})
	case errors.Is(err, apperr.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Message: err.Error()})
	default:
		logger.Errorw("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "Server error"})
	}
}
