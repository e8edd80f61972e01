package http

import (
	"context"
	"errors"
	"net/http"

	"finassist/internal/core"
	applog "finassist/internal/log"
)

type userAnomaliesResponse struct {
	UserID    string         `json:"userId"`
	Anomalies []core.Anomaly `json:"anomalies"`
}

type checkResponse struct {
	Determination *core.CheckResult `json:"determination"`
}

func (s *Server) handleUserAnomalies(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	anomalies, err := s.svc.DetectAnomaliesForUser(ctx, userID)
	if err != nil {
		s.writeServiceError(w, r, "User detection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, userAnomaliesResponse{UserID: userID, Anomalies: anomalies})
}

func (s *Server) handleCategoryAnomalies(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	categoryID := r.PathValue("categoryID")
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	result, err := s.svc.DetectAnomaliesForCategory(ctx, userID, categoryID)
	if err != nil {
		s.writeServiceError(w, r, "Category detection failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckTransaction(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var tx core.Transaction
	if err := decodeJSON(w, r, &tx); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if tx.CategoryID == "" {
		writeError(w, http.StatusBadRequest, "categoryId is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	result, err := s.svc.CheckTransactionForAnomaly(ctx, userID, tx)
	if err != nil {
		s.writeServiceError(w, r, "Transaction check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Determination: result})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), msg, applog.FieldError, err, applog.FieldPath, r.URL.Path)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "detection timed out")
	case errors.Is(err, core.ErrEmptyCategory):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
