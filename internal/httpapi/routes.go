package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pointquest/pointquest-server/internal/reconnect"
	"github.com/pointquest/pointquest-server/internal/registry"
	"github.com/pointquest/pointquest-server/internal/ws"
)

func SetupRoutes(reg *registry.Registry, tokens *reconnect.Manager, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(reg, log))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(reg, tokens, log))
	return r
}
