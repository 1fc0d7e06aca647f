package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/buzzzzx/shanbor/internal/api/handlers/image"
)

// Setup builds the HTTP routes.
//
// The source url travels percent-encoded in a single path segment, so routing
// runs on the raw path and parameters are left escaped for the handler.
func Setup(h *image.Handler) *ginext.Engine {
	r := ginext.New()

	r.UseRawPath = true
	r.UnescapePathValues = false

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.GET("/image/:spec/:url", h.Get) // rendering image by spec token and source url
	r.GET("/healthz", h.Healthz)

	return r
}
