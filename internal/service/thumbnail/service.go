package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/singleflight"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/thumb"
)

// ErrInvalidTask is returned when a render request cannot be accepted.
var ErrInvalidTask = errors.New("invalid render task")

// fileStorage defines the local file access used for sources and cache entries.
type fileStorage interface {
	Exists(path string) (bool, error)
	Open(path string) (io.ReadCloser, error)
	ReadFile(path string) ([]byte, error)
	Save(path string, src io.Reader) error
	Copy(src, dst string) error
	RemoveGlob(pattern string) (int, error)
}

// objectStorage defines where processed thumbnails are published (e.g., MinIO).
type objectStorage interface {
	Publish(ctx context.Context, name string, data []byte, contentType string) (string, error)
	DeletePrefix(ctx context.Context, namePrefix string) (int, error)
}

// producer defines the interface for enqueueing tasks into a message broker (e.g., Kafka).
type producer interface {
	Produce(ctx context.Context, task model.Task) error
}

// repository defines the persistence of render jobs.
type repository interface {
	Create(ctx context.Context, t model.Thumbnail) error
	Get(ctx context.Context, id uuid.UUID) (model.Thumbnail, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, res model.Result) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Service provides business logic for thumbnail rendering.
// Synchronous renders go straight through the cache; asynchronous ones are
// recorded in the repository and handed to the queue.
type Service struct {
	files    fileStorage
	objects  objectStorage
	producer producer
	repo     repository
	opts     thumb.Options

	group singleflight.Group
}

// NewService creates a new Service. objects may be nil when publishing is
// disabled.
func NewService(files fileStorage, objects objectStorage, p producer, repo repository, opts thumb.Options) *Service {
	if opts.Registry == nil {
		opts.Registry = thumb.DefaultRegistry()
	}

	return &Service{
		files:    files,
		objects:  objects,
		producer: p,
		repo:     repo,
		opts:     opts,
	}
}

// RenderRequest describes a synchronous render.
type RenderRequest struct {
	Source      string
	Operations  []model.Operation
	Format      bitmap.Format
	IgnoreCache bool
}

// Render returns the encoded thumbnail, from the cache when possible.
// Identical concurrent requests share a single render.
func (s *Service) Render(ctx context.Context, req RenderRequest) (*thumb.Rendered, error) {
	th, err := s.build(req.Source, req.Operations)
	if err != nil {
		return nil, err
	}
	th.IgnoreCache(req.IgnoreCache)

	cacheFile, err := th.CacheFilename(req.Format)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s|%t", cacheFile, req.IgnoreCache)

	v, err, shared := s.group.Do(key, func() (any, error) {
		return th.Output(ctx, req.Format)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		zlog.Logger.Debug().Str("cache", cacheFile).Msg("render shared with a concurrent request")
	}

	return v.(*thumb.Rendered), nil
}

// Enqueue records a pending job and sends it to the queue.
func (s *Service) Enqueue(ctx context.Context, task model.Task) (uuid.UUID, error) {
	if _, err := s.build(task.Source, task.Operations); err != nil {
		return uuid.Nil, err
	}
	if _, err := parseFormat(task.Format); err != nil {
		return uuid.Nil, err
	}

	task.ID = uuid.New()

	rec := model.Thumbnail{
		ID:         task.ID,
		Source:     task.Source,
		Operations: task.Operations,
		Format:     task.Format,
		Output:     task.Output,
		Status:     model.StatusPending,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue: failed to save task: %w", err)
	}

	if err := s.producer.Produce(ctx, task); err != nil {
		if markErr := s.repo.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
			zlog.Logger.Error().Err(markErr).Str("id", task.ID.String()).Msg("failed to mark task as failed")
		}
		return uuid.Nil, fmt.Errorf("enqueue: failed to produce task: %w", err)
	}

	zlog.Logger.Info().Str("id", task.ID.String()).Str("source", task.Source).Msg("render task enqueued")

	return task.ID, nil
}

// ProcessTask renders a queued task into the cache, copies it to the
// requested output, publishes it when asked and records the outcome.
// Only permanent failures mark the job failed; others leave it pending
// for a retry.
func (s *Service) ProcessTask(ctx context.Context, task model.Task) (model.Result, error) {
	res, err := s.process(ctx, task)
	if err != nil {
		if !IsPermanent(err) {
			return model.Result{}, err
		}
		if markErr := s.repo.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
			zlog.Logger.Error().Err(markErr).Str("id", task.ID.String()).Msg("failed to mark task as failed")
		}
		return model.Result{}, err
	}

	if err := s.repo.MarkProcessed(ctx, task.ID, res); err != nil {
		return model.Result{}, fmt.Errorf("process: failed to update task: %w", err)
	}

	return res, nil
}

func (s *Service) process(ctx context.Context, task model.Task) (model.Result, error) {
	format, err := parseFormat(task.Format)
	if err != nil {
		return model.Result{}, err
	}

	th, err := s.build(task.Source, task.Operations)
	if err != nil {
		return model.Result{}, err
	}

	// Cache makes an explicit format the default for Save and Output below.
	if err := th.Cache(ctx, format); err != nil {
		return model.Result{}, fmt.Errorf("process: %w", err)
	}

	var res model.Result
	if res.CacheKey, err = th.Key(); err != nil {
		return model.Result{}, err
	}
	if res.CacheFile, err = th.CacheFilename(bitmap.Unknown); err != nil {
		return model.Result{}, err
	}

	if task.Output != "" {
		if res.Output, err = th.Save(ctx, task.Output); err != nil {
			return model.Result{}, fmt.Errorf("process: %w", err)
		}
	}

	if task.Publish && s.objects != nil {
		out, err := th.Output(ctx, bitmap.Unknown)
		if err != nil {
			return model.Result{}, fmt.Errorf("process: %w", err)
		}

		res.ObjectKey, err = s.objects.Publish(ctx, filepath.Base(res.CacheFile), out.Data, out.Format.MimeType())
		if err != nil {
			return model.Result{}, fmt.Errorf("process: %w", err)
		}
	}

	return res, nil
}

// Get returns a job record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Thumbnail, error) {
	return s.repo.Get(ctx, id)
}

// Catalog lists what a render request may use.
type Catalog struct {
	Operations []string `json:"operations"`
	Filters    []string `json:"filters"`
}

// Catalog returns the registered operation names and the pixel filters
// accepted by the filter operation.
func (s *Service) Catalog() Catalog {
	filters := bitmap.Filters()

	c := Catalog{
		Operations: s.opts.Registry.Names(),
		Filters:    make([]string, 0, len(filters)),
	}
	for _, f := range filters {
		c.Filters = append(c.Filters, string(f))
	}

	return c
}

// Invalidation reports what Invalidate removed.
type Invalidation struct {
	Files   int `json:"files"`
	Objects int `json:"objects"`
}

// Invalidate removes every cached and published thumbnail of source.
func (s *Service) Invalidate(ctx context.Context, source string) (Invalidation, error) {
	if source == "" {
		return Invalidation{}, fmt.Errorf("%w: source is required", ErrInvalidTask)
	}

	var inv Invalidation
	var err error

	inv.Files, err = thumb.New(s.files, s.opts).Load(source).CleanCached()
	if err != nil {
		return inv, fmt.Errorf("invalidate: %w", err)
	}

	if s.objects != nil {
		inv.Objects, err = s.objects.DeletePrefix(ctx, thumb.CachePrefix(source))
		if err != nil {
			return inv, fmt.Errorf("invalidate: %w", err)
		}
	}

	zlog.Logger.Info().
		Str("source", source).
		Int("files", inv.Files).
		Int("objects", inv.Objects).
		Msg("thumbnails invalidated")

	return inv, nil
}

// build turns transport operations into a Thumb. Names and arguments are
// checked against the registry so bad operations are rejected before any
// work is done.
func (s *Service) build(source string, ops []model.Operation) (*thumb.Thumb, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidTask)
	}

	th := thumb.New(s.files, s.opts).Load(source)

	for _, op := range ops {
		o := thumb.Operation{Name: op.Name, Args: op.Args}
		if err := s.opts.Registry.Validate(o); err != nil {
			return nil, err
		}
		th.Append(o)
	}

	if _, err := th.Key(); err != nil {
		return nil, err
	}

	return th, nil
}

// IsPermanent reports whether err can never be cured by retrying the
// same task.
func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrInvalidTask,
		thumb.ErrNotFound,
		thumb.ErrInvalidImage,
		thumb.ErrUnsupportedFormat,
		thumb.ErrUnknownOperation,
		thumb.ErrInvalidArgument,
		thumb.ErrUnserializable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func parseFormat(s string) (bitmap.Format, error) {
	if s == "" {
		return bitmap.Unknown, nil
	}

	return bitmap.ParseFormat(s)
}
