// AngelaMos | 2026
// handler.go

package notification

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/", h.List)
		r.Put("/{id}/read", h.MarkRead)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit")) //nolint:errcheck // zero falls back to default

	items, err := h.service.List(r.Context(), middleware.GetAccountID(r.Context()), unreadOnly, limit)
	if err != nil {
		core.HandleServiceError(w, err, "notification")
		return
	}
	if items == nil {
		items = []Notification{}
	}

	core.OK(w, items)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.MarkRead(r.Context(), middleware.GetAccountID(r.Context()), id); err != nil {
		core.HandleServiceError(w, err, "notification")
		return
	}

	core.NoContent(w)
}
