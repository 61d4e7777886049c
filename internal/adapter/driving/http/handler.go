package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hdboard/signaling/internal/adapter/gateway/ws"
	"github.com/hdboard/signaling/internal/core/service"
)

type Handler struct {
	Registry *service.Registry
	Relay    *service.Relay
	Fanout   *service.Fanout
	Hub      *ws.Hub
}

func NewHandler(registry *service.Registry, relay *service.Relay, fanout *service.Fanout, hub *ws.Hub) *Handler {
	return &Handler{
		Registry: registry,
		Relay:    relay,
		Fanout:   fanout,
		Hub:      hub,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/ws", h.ServeWS)

	return r
}
