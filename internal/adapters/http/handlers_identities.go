package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allumi/attribution-service/internal/application"
)

func (h *Handler) listIdentityTouchpoints(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "identity_id")
	accountID := r.URL.Query().Get("account_id")

	journey, err := h.service.ListJourney(r.Context(), accountID, identityID)
	if err != nil {
		writeMappedError(r.Context(), w, "list_identity_touchpoints", err)
		return
	}
	if limit := parseIntDefault(r.URL.Query().Get("limit"), 0); limit > 0 && len(journey) > limit {
		journey = journey[:limit]
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"identity_id": identityID,
		"touchpoints": journey,
	})
}

func (h *Handler) importIdentities(w http.ResponseWriter, r *http.Request) {
	var req application.ImportIdentitiesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.ImportIdentities(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "import_identities", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
