package http

import (
	"net/http"
	"time"

	"github.com/allumi/attribution-service/internal/application"
	"github.com/allumi/attribution-service/internal/domain"
)

func (h *Handler) channelReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()

	query := application.ChannelReportQuery{
		AccountID: q.Get("account_id"),
		Model:     q.Get("model"),
		Since:     parseTimeDefault(q.Get("since"), now.AddDate(0, 0, -30)),
		Until:     parseTimeDefault(q.Get("until"), now),
	}
	if query.Model == "" {
		query.Model = domain.ModelLastTouch
	}

	rows, err := h.service.ChannelReport(r.Context(), query)
	if err != nil {
		writeMappedError(r.Context(), w, "channel_report", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"model":    query.Model,
		"since":    query.Since,
		"until":    query.Until,
		"channels": rows,
	})
}
