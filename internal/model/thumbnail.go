package model

import (
	"time"

	"github.com/google/uuid"
)

// Thumbnail statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Operation is a single pipeline step as it travels over HTTP and Kafka.
type Operation struct {
	Name string `json:"name"` // "resize", "crop", "filter", ...
	Args []any  `json:"args"` // positional arguments of the operation
}

// Thumbnail is the record of an asynchronous render job.
type Thumbnail struct {
	ID         uuid.UUID   `json:"id"`
	Source     string      `json:"source"`
	Operations []Operation `json:"operations"`
	Format     string      `json:"format"`
	Output     string      `json:"output,omitempty"`
	CacheKey   string      `json:"cache_key,omitempty"`
	CacheFile  string      `json:"cache_file,omitempty"`
	ObjectKey  string      `json:"object_key,omitempty"`
	Status     string      `json:"status"` // pending / processed / failed
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
