package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

// ServerOptions configures NewServer
type ServerOptions struct {
	Logger         *slog.Logger
	MaxUploadBytes int64 // zero disables the body limit
	Environment    string
}

// NewServer assembles the full HTTP handler: middleware, health check and the
// item routes under DefaultBasePath. Unmatched routes and methods get 405.
func NewServer(service simpleinventory.Service, opts ServerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	if opts.MaxUploadBytes > 0 {
		r.Use(RequestSizeLimitMiddleware(opts.MaxUploadBytes))
	}

	r.NotFound(MethodNotAllowed)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{
			"status":      "healthy",
			"environment": opts.Environment,
		})
	})

	items := NewItemsHandler(service, logger, DefaultBasePath)
	r.Mount(DefaultBasePath, items.Routes())

	return r
}
