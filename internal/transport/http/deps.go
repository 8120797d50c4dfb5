package http

import (
	"log/slog"
	"net/http"

	"github.com/go-events-sync/internal/transport/http/handler"
	"github.com/go-events-sync/internal/transport/http/middleware"
)

// Deps holds everything the router needs. Hub, Assets and Verifier may be
// nil, which leaves the matching routes unmounted.
type Deps struct {
	Events   handler.EventService
	Assets   handler.AssetStore
	Hub      http.Handler
	Verifier middleware.TokenVerifier
	Logger   *slog.Logger
}
