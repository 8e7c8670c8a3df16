package http

import (
	"net/http"

	"github.com/allumi/attribution-service/internal/application"
)

func (h *Handler) recordTouchpoint(w http.ResponseWriter, r *http.Request) {
	var req application.RecordTouchpointRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	// Header-derived signals come from the live request unless the caller is
	// a server-side relay that forwarded the visitor's originals.
	if req.Headers.ForwardedFor == "" {
		req.Headers.ForwardedFor = readIP(r)
	}
	if req.Headers.UserAgent == "" {
		req.Headers.UserAgent = r.UserAgent()
	}
	if req.Headers.AcceptLanguage == "" {
		req.Headers.AcceptLanguage = r.Header.Get("Accept-Language")
	}
	if req.Headers.AcceptEncoding == "" {
		req.Headers.AcceptEncoding = r.Header.Get("Accept-Encoding")
	}
	if req.Headers.Accept == "" {
		req.Headers.Accept = r.Header.Get("Accept")
	}

	res, err := h.service.RecordTouchpoint(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "record_touchpoint", err)
		return
	}

	writeSuccess(w, http.StatusCreated, res)
}
