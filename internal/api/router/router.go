package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/thumbnailer/internal/api/handlers/thumbnail"
	"github.com/aliskhannn/thumbnailer/internal/api/middleware"
)

func Setup(h *thumbnail.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.GET("/render", h.Render)         // synchronous render through the cache
	api.POST("/thumbnails", h.Enqueue)   // queue a render task
	api.GET("/thumbnails/:id", h.Get)    // render task status
	api.DELETE("/cache", h.Invalidate)   // drop every cached thumbnail of a source
	api.GET("/operations", h.Operations) // registered operation names

	return r
}
