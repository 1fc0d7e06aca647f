package server

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/buzzzzx/shanbor/internal/config"
)

// New creates the HTTP server listening on cfg.HTTPPort with the configured timeouts.
// Headers share the read timeout.
func New(cfg *config.Server, router *ginext.Engine) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
