package thumbnail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/api/respond"
	"github.com/aliskhannn/thumbnailer/internal/bitmap"
	"github.com/aliskhannn/thumbnailer/internal/geometry"
	"github.com/aliskhannn/thumbnailer/internal/model"
	thumbrepo "github.com/aliskhannn/thumbnailer/internal/repository/thumbnail"
	thumbsvc "github.com/aliskhannn/thumbnailer/internal/service/thumbnail"
	"github.com/aliskhannn/thumbnailer/internal/thumb"
)

// service defines the thumbnail operations used by the HTTP layer.
type service interface {
	Render(ctx context.Context, req thumbsvc.RenderRequest) (*thumb.Rendered, error)
	Enqueue(ctx context.Context, task model.Task) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (model.Thumbnail, error)
	Invalidate(ctx context.Context, source string) (thumbsvc.Invalidation, error)
	Catalog() thumbsvc.Catalog
}

// Handler provides HTTP handlers for thumbnail endpoints.
type Handler struct {
	service      service
	cacheSeconds int
	background   color.NRGBA
}

// NewHandler creates a new Handler. cacheSeconds is the max-age of rendered
// images (0 disables client caching); background fills padded resizes when
// the request does not name a colour.
func NewHandler(s service, cacheSeconds int, background color.NRGBA) *Handler {
	return &Handler{service: s, cacheSeconds: cacheSeconds, background: background}
}

// EnqueueRequest is the body of POST /api/thumbnails.
type EnqueueRequest struct {
	Source     string            `json:"source"`
	Operations []model.Operation `json:"operations"`
	Format     string            `json:"format"`
	Output     string            `json:"output"`
	Publish    bool              `json:"publish"`
}

// Render serves a thumbnail synchronously.
//
// The pipeline is either given as JSON in "ops" ([{"name":"resize","args":[200,150]}])
// or built from the shorthand parameters w, h, mode, pad, bg, fit=cover, gravity and q.
func (h *Handler) Render(c *ginext.Context) {
	source := c.Query("source")
	if source == "" {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("source is required"))
		return
	}

	format := bitmap.Unknown
	if f := c.Query("format"); f != "" {
		var err error
		if format, err = bitmap.ParseFormat(f); err != nil {
			respond.Fail(c, http.StatusBadRequest, err)
			return
		}
	}

	ops, err := h.operations(c)
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("bad render parameters")
		respond.Fail(c, http.StatusBadRequest, err)
		return
	}

	out, err := h.service.Render(c.Request.Context(), thumbsvc.RenderRequest{
		Source:      source,
		Operations:  ops,
		Format:      format,
		IgnoreCache: truthy(c.Query("nocache")),
	})
	if err != nil {
		h.fail(c, "failed to render thumbnail", err)
		return
	}

	h.cacheHeaders(c, out)
	respond.Image(c, http.StatusOK, out.Format.MimeType(), out.Data)
}

// Enqueue queues a render task and returns its id.
func (h *Handler) Enqueue(c *ginext.Context) {
	var req EnqueueRequest

	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		zlog.Logger.Err(err).Msg("failed to decode render task")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	id, err := h.service.Enqueue(c.Request.Context(), model.Task{
		Source:     req.Source,
		Operations: req.Operations,
		Format:     req.Format,
		Output:     req.Output,
		Publish:    req.Publish,
	})
	if err != nil {
		h.fail(c, "failed to enqueue render task", err)
		return
	}

	respond.Accepted(c, map[string]interface{}{
		"id":     id,
		"status": model.StatusPending,
	})
}

// Get returns the status of a render task.
func (h *Handler) Get(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	rec, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "failed to get render task", err)
		return
	}

	respond.OK(c, rec)
}

// Invalidate removes every cached thumbnail of the source.
func (h *Handler) Invalidate(c *ginext.Context) {
	inv, err := h.service.Invalidate(c.Request.Context(), c.Query("source"))
	if err != nil {
		h.fail(c, "failed to invalidate thumbnails", err)
		return
	}

	respond.OK(c, inv)
}

// Operations lists the operation names and filters a pipeline may use.
func (h *Handler) Operations(c *ginext.Context) {
	respond.OK(c, h.service.Catalog())
}

func (h *Handler) cacheHeaders(c *ginext.Context, out *thumb.Rendered) {
	state := "MISS"
	if out.FromCache {
		state = "HIT"
	}
	c.Header("X-Thumb-Cache", state)
	c.Header("ETag", `"`+out.Key+`"`)

	if h.cacheSeconds <= 0 {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		return
	}

	c.Header("Cache-Control", "public, max-age="+strconv.Itoa(h.cacheSeconds))
	c.Header("Expires", time.Now().Add(time.Duration(h.cacheSeconds)*time.Second).UTC().Format(http.TimeFormat))
}

// operations decodes the pipeline of a render request.
func (h *Handler) operations(c *ginext.Context) ([]model.Operation, error) {
	if raw := c.Query("ops"); raw != "" {
		var ops []model.Operation

		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&ops); err != nil {
			return nil, fmt.Errorf("invalid ops: %w", err)
		}

		return ops, nil
	}

	q, err := h.shorthand(c)
	if err != nil {
		return nil, err
	}

	ops := make([]model.Operation, 0, len(q))
	for _, op := range q {
		ops = append(ops, model.Operation{Name: op.Name, Args: op.Args})
	}

	return ops, nil
}

func (h *Handler) shorthand(c *ginext.Context) (thumb.Queue, error) {
	w, err := intParam(c, "w")
	if err != nil {
		return nil, err
	}
	height, err := intParam(c, "h")
	if err != nil {
		return nil, err
	}

	th := thumb.New(nil, thumb.Options{})

	switch {
	case w == 0 && height == 0:
	case c.Query("fit") == "cover":
		th.ZoomCrop(w, height, geometry.Gravity(strings.ToUpper(c.DefaultQuery("gravity", string(geometry.Center)))))
	default:
		mode, ok := geometry.ParseMode(c.Query("mode"))
		if !ok {
			return nil, fmt.Errorf("invalid mode %q", c.Query("mode"))
		}

		bg := h.background
		if s := c.Query("bg"); s != "" {
			if bg, err = bitmap.ParseHex(s); err != nil {
				return nil, err
			}
		}

		th.Resize(w, height, mode, truthy(c.Query("pad")), thumb.Background{R: int(bg.R), G: int(bg.G), B: int(bg.B)})
	}

	if c.Query("q") != "" {
		q, err := intParam(c, "q")
		if err != nil {
			return nil, err
		}
		th.Quality(q)
	}

	return th.Operations(), nil
}

func (h *Handler) fail(c *ginext.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zlog.Logger.Err(err).Msg(msg)
	} else {
		zlog.Logger.Warn().Err(err).Msg(msg)
	}

	respond.Fail(c, status, err)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, thumb.ErrNotFound), errors.Is(err, thumbrepo.ErrThumbnailNotFound):
		return http.StatusNotFound
	case errors.Is(err, thumb.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, thumb.ErrInvalidImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, thumbsvc.ErrInvalidTask),
		errors.Is(err, thumb.ErrInvalidArgument),
		errors.Is(err, thumb.ErrUnknownOperation),
		errors.Is(err, thumb.ErrUnserializable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func intParam(c *ginext.Context, name string) (int, error) {
	s := c.Query(name)
	if s == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}

	return n, nil
}

func truthy(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
