package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/divyansh2401/email-intel/internal/store"
)

// EmailsHandler handles registry query endpoints.
type EmailsHandler struct {
	Registry *store.Registry
}

type emailItem struct {
	Email       string `json:"email"`
	FirstSeenAt string `json:"first_seen_at"`
	LastSeenAt  string `json:"last_seen_at"`
	SeenCount   int64  `json:"seen_count"`
}

// List handles GET /api/emails — case-insensitive substring search over
// canonical tokens, most-recently-seen first.
func (h *EmailsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	q := r.URL.Query().Get("q")

	entries, total, err := h.Registry.Search(r.Context(), q, limit, offset)
	if err != nil {
		slog.Error("emails list", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	items := make([]emailItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, emailItem{
			Email:       e.Email,
			FirstSeenAt: e.FirstSeenAt.UTC().Format(time.RFC3339),
			LastSeenAt:  e.LastSeenAt.UTC().Format(time.RFC3339),
			SeenCount:   e.SeenCount,
		})
	}
	writeJSON(w, http.StatusOK, ListResponse[emailItem]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
