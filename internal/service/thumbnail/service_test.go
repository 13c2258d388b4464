package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/bitmap"
	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/storage/file"
	"github.com/aliskhannn/thumbnailer/internal/thumb"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

type fakeRepo struct {
	records map[uuid.UUID]model.Thumbnail
	results map[uuid.UUID]model.Result
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: make(map[uuid.UUID]model.Thumbnail),
		results: make(map[uuid.UUID]model.Result),
	}
}

func (r *fakeRepo) Create(_ context.Context, t model.Thumbnail) error {
	r.records[t.ID] = t
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (model.Thumbnail, error) {
	t, ok := r.records[id]
	if !ok {
		return model.Thumbnail{}, errors.New("not found")
	}
	return t, nil
}

func (r *fakeRepo) MarkProcessed(_ context.Context, id uuid.UUID, res model.Result) error {
	t := r.records[id]
	t.Status = model.StatusProcessed
	r.records[id] = t
	r.results[id] = res
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	t := r.records[id]
	t.Status = model.StatusFailed
	t.Error = reason
	r.records[id] = t
	return nil
}

type fakeProducer struct {
	tasks []model.Task
	err   error
}

func (p *fakeProducer) Produce(_ context.Context, task model.Task) error {
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

type fakeObjects struct {
	published  map[string]string // name -> content type
	prefixes   []string
	publishErr error
}

func (o *fakeObjects) Publish(_ context.Context, name string, _ []byte, contentType string) (string, error) {
	if o.publishErr != nil {
		return "", o.publishErr
	}
	if o.published == nil {
		o.published = make(map[string]string)
	}
	o.published[name] = contentType
	return "thumbs/" + name, nil
}

func (o *fakeObjects) DeletePrefix(_ context.Context, prefix string) (int, error) {
	o.prefixes = append(o.prefixes, prefix)
	return 3, nil
}

type fixture struct {
	files    *file.Storage
	repo     *fakeRepo
	producer *fakeProducer
	objects  *fakeObjects
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	files := file.NewStorage(afero.NewMemMapFs(), "")

	var buf bytes.Buffer
	if err := bitmap.Encode(&buf, imaging.New(40, 20, color.NRGBA{255, 0, 0, 255}), bitmap.PNG, 100); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := files.Save("images/src.png", &buf); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f := &fixture{
		files:    files,
		repo:     newFakeRepo(),
		producer: &fakeProducer{},
		objects:  &fakeObjects{},
	}
	f.svc = NewService(files, f.objects, f.producer, f.repo, thumb.Options{CacheDir: "cache"})

	return f
}

var halfSize = []model.Operation{{Name: thumb.OpResize, Args: []any{20.0, 0.0}}}

func TestRender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := RenderRequest{Source: "images/src.png", Operations: halfSize}

	first, err := f.svc.Render(ctx, req)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if first.FromCache || first.Format != bitmap.PNG {
		t.Errorf("first render: cache=%v format=%s", first.FromCache, first.Format)
	}

	second, err := f.svc.Render(ctx, req)
	if err != nil {
		t.Fatalf("second Render failed: %v", err)
	}
	if !second.FromCache {
		t.Error("second render should be served from the cache")
	}

	req.IgnoreCache = true
	third, err := f.svc.Render(ctx, req)
	if err != nil {
		t.Fatalf("Render ignoring cache failed: %v", err)
	}
	if third.FromCache {
		t.Error("IgnoreCache render came from the cache")
	}
}

func TestRenderRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     RenderRequest
		wantErr error
	}{
		{"no source", RenderRequest{Operations: halfSize}, ErrInvalidTask},
		{"unknown operation", RenderRequest{Source: "images/src.png", Operations: []model.Operation{{Name: "sparkle"}}}, thumb.ErrUnknownOperation},
		{"missing source", RenderRequest{Source: "images/nope.png", Operations: halfSize}, thumb.ErrNotFound},
		{"bad argument", RenderRequest{Source: "images/src.png", Operations: []model.Operation{{Name: thumb.OpResize, Args: []any{"wide"}}}}, thumb.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Render(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnqueue(t *testing.T) {
	f := newFixture(t)

	id, err := f.svc.Enqueue(context.Background(), model.Task{Source: "images/src.png", Operations: halfSize, Format: "jpeg"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	rec, ok := f.repo.records[id]
	if !ok || rec.Status != model.StatusPending {
		t.Fatalf("record: %+v", rec)
	}
	if len(f.producer.tasks) != 1 || f.producer.tasks[0].ID != id {
		t.Errorf("produced: %+v", f.producer.tasks)
	}
}

func TestEnqueueValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Enqueue(ctx, model.Task{Source: "images/src.png", Format: "bmp"}); !errors.Is(err, bitmap.ErrUnsupportedFormat) {
		t.Errorf("bad format: got %v", err)
	}
	if _, err := f.svc.Enqueue(ctx, model.Task{Source: "images/src.png", Operations: []model.Operation{{Name: "sparkle"}}}); !errors.Is(err, thumb.ErrUnknownOperation) {
		t.Errorf("unknown operation: got %v", err)
	}

	badArgs := []struct {
		name string
		op   model.Operation
	}{
		{"crop arity", model.Operation{Name: thumb.OpCrop, Args: []any{1.0}}},
		{"resize types", model.Operation{Name: thumb.OpResize, Args: []any{"wide", "tall"}}},
		{"quality range", model.Operation{Name: thumb.OpQuality, Args: []any{500.0}}},
		{"unknown filter", model.Operation{Name: thumb.OpFilter, Args: []any{"sparkle"}}},
		{"filter arity", model.Operation{Name: thumb.OpFilter, Args: []any{"brightness"}}},
		{"merge range", model.Operation{Name: thumb.OpMerge, Args: []any{"mark.png", 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, 150.0}}},
	}
	for _, tt := range badArgs {
		t.Run(tt.name, func(t *testing.T) {
			task := model.Task{Source: "images/src.png", Operations: []model.Operation{tt.op}}
			if _, err := f.svc.Enqueue(ctx, task); !errors.Is(err, thumb.ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}

	if len(f.repo.records) != 0 || len(f.producer.tasks) != 0 {
		t.Error("rejected tasks must not be stored or produced")
	}
}

func TestEnqueueProduceFailure(t *testing.T) {
	f := newFixture(t)
	f.producer.err = errors.New("broker down")

	if _, err := f.svc.Enqueue(context.Background(), model.Task{Source: "images/src.png"}); err == nil {
		t.Fatal("expected an error")
	}

	for _, rec := range f.repo.records {
		if rec.Status != model.StatusFailed || !strings.Contains(rec.Error, "broker down") {
			t.Errorf("record: %+v", rec)
		}
	}
}

func TestProcessTask(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.repo.records[id] = model.Thumbnail{ID: id, Status: model.StatusPending}

	task := model.Task{
		ID:         id,
		Source:     "images/src.png",
		Operations: halfSize,
		Format:     "jpg",
		Output:     "public/src_small.jpg",
		Publish:    true,
	}

	res, err := f.svc.ProcessTask(context.Background(), task)
	if err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	if f.repo.records[id].Status != model.StatusProcessed {
		t.Errorf("status: %s", f.repo.records[id].Status)
	}
	if !strings.HasSuffix(res.CacheFile, ".jpg") || !strings.HasPrefix(res.CacheFile, "cache/"+thumb.CachePrefix("images/src.png")) {
		t.Errorf("cache file: %s", res.CacheFile)
	}

	data, err := f.files.ReadFile("public/src_small.jpg")
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	img, format, err := bitmap.Decode(bytes.NewReader(data))
	if err != nil || format != bitmap.JPEG || img.Bounds().Dx() != 20 {
		t.Errorf("output: %v %s %v", err, format, img)
	}

	if len(f.objects.published) != 1 || !strings.HasPrefix(res.ObjectKey, "thumbs/thumbcache_") {
		t.Errorf("published: %v key=%s", f.objects.published, res.ObjectKey)
	}
	for _, ct := range f.objects.published {
		if ct != "image/jpeg" {
			t.Errorf("content type: %s", ct)
		}
	}
}

func TestProcessTaskFailure(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.repo.records[id] = model.Thumbnail{ID: id, Status: model.StatusPending}

	_, err := f.svc.ProcessTask(context.Background(), model.Task{ID: id, Source: "images/nope.png"})
	if !errors.Is(err, thumb.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	if rec := f.repo.records[id]; rec.Status != model.StatusFailed || rec.Error == "" {
		t.Errorf("record: %+v", rec)
	}
}

func TestProcessTaskTransientFailureStaysPending(t *testing.T) {
	f := newFixture(t)
	f.objects.publishErr = errors.New("connection refused")
	id := uuid.New()
	f.repo.records[id] = model.Thumbnail{ID: id, Status: model.StatusPending}

	_, err := f.svc.ProcessTask(context.Background(), model.Task{ID: id, Source: "images/src.png", Operations: halfSize, Publish: true})
	if err == nil || IsPermanent(err) {
		t.Fatalf("got %v, want a transient error", err)
	}

	if rec := f.repo.records[id]; rec.Status != model.StatusPending {
		t.Errorf("transient failure changed the record: %+v", rec)
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("process: %w", thumb.ErrNotFound), true},
		{fmt.Errorf("%w: resize: %w", thumb.ErrPluginFailed, thumb.ErrInvalidArgument), true},
		{bitmap.ErrUnsupportedFormat, true},
		{ErrInvalidTask, true},
		{fmt.Errorf("process: %w", thumb.ErrIO), false},
		{errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		if got := IsPermanent(tt.err); got != tt.want {
			t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCatalog(t *testing.T) {
	c := newFixture(t).svc.Catalog()

	if len(c.Operations) != 9 || c.Operations[0] != thumb.OpCallback {
		t.Errorf("operations: %v", c.Operations)
	}
	if len(c.Filters) != 12 {
		t.Errorf("filters: %v", c.Filters)
	}
}

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, format := range []bitmap.Format{bitmap.PNG, bitmap.JPEG} {
		if _, err := f.svc.Render(ctx, RenderRequest{Source: "images/src.png", Operations: halfSize, Format: format}); err != nil {
			t.Fatalf("Render failed: %v", err)
		}
	}

	inv, err := f.svc.Invalidate(ctx, "images/src.png")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if inv.Files != 2 || inv.Objects != 3 {
		t.Errorf("got %+v", inv)
	}
	if len(f.objects.prefixes) != 1 || f.objects.prefixes[0] != thumb.CachePrefix("images/src.png") {
		t.Errorf("object prefixes: %v", f.objects.prefixes)
	}

	if _, err := f.svc.Invalidate(ctx, ""); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("empty source: got %v", err)
	}
}
