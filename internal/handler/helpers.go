package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/middleware"
	"github.com/campaign/internal/service"
	"github.com/campaign/internal/session"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON читает тело не больше maxBodyBytes; пустое тело — не ошибка.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func pathInt64(r *http.Request, key string) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return n, err == nil && n > 0
}

// writeServiceError переводит ошибки сервиса в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var ext *session.ExternalServiceError
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		middleware.WriteAuthError(w, err)
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, service.ErrUserDisabled):
		writeError(w, http.StatusForbidden, "user_disabled")
	case errors.Is(err, service.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrMembershipNotFound):
		writeError(w, http.StatusForbidden, "membership_not_found")
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found")
	case errors.As(err, &ext):
		logger.Errorf("%s: %v", op, err)
		middleware.WriteAuthError(w, err)
	default:
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
