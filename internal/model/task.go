package model

import "github.com/google/uuid"

// Task represents a render job that will be sent to the queue.
type Task struct {
	ID         uuid.UUID   `json:"id"`
	Source     string      `json:"source"`
	Operations []Operation `json:"operations"`
	Format     string      `json:"format"`           // jpeg, png, gif or empty for the source format
	Output     string      `json:"output,omitempty"` // destination path; empty keeps the result in the cache only
	Publish    bool        `json:"publish"`          // upload the result to object storage
}

// Result is what a processed task produced.
type Result struct {
	CacheKey  string `json:"cache_key"`
	CacheFile string `json:"cache_file"`
	Output    string `json:"output,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
}
