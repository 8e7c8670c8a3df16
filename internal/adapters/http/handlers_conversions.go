package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/allumi/attribution-service/internal/application"
)

func (h *Handler) recordConversion(w http.ResponseWriter, r *http.Request) {
	var req application.RecordConversionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if req.Signals.IPAddress == "" {
		req.Signals.IPAddress = readIP(r)
	}

	res, err := h.service.RecordConversion(r.Context(), req, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		writeMappedError(r.Context(), w, "record_conversion", err)
		return
	}

	statusCode := http.StatusCreated
	if res.Duplicate {
		statusCode = http.StatusOK
	}
	writeSuccess(w, statusCode, res)
}

func (h *Handler) getConversion(w http.ResponseWriter, r *http.Request) {
	conversionID := chi.URLParam(r, "conversion_id")
	view, err := h.service.GetConversion(r.Context(), conversionID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_conversion", err)
		return
	}
	writeSuccess(w, http.StatusOK, view)
}

func (h *Handler) reconcileConversion(w http.ResponseWriter, r *http.Request) {
	conversionID := chi.URLParam(r, "conversion_id")

	caller := "unknown"
	if claims, ok := claimsFromContext(r.Context()); ok {
		caller = claims.Subject
	}
	httpLogger().InfoContext(r.Context(), "reconciliation requested",
		"operation", "reconcile_conversion",
		"conversion_id", conversionID,
		"caller", caller,
		"request_id", requestIDFromContext(r.Context()),
	)

	res, err := h.service.Reconcile(r.Context(), conversionID)
	if err != nil {
		writeMappedError(r.Context(), w, "reconcile_conversion", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
