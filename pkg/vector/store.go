// Package vector persists chunk rows with embeddings and serves filtered
// cosine-similarity search. Two adapters are provided: a remote qdrant
// collection and an embedded chromem store for local mode and tests.
package vector

import (
	"context"
	"fmt"

	"github.com/docfoundry/docfoundry/pkg/chunker"
)

// Filter narrows a search or delete to rows matching every set predicate.
type Filter struct {
	Release string `json:"release,omitempty"`
	DocType string `json:"docType,omitempty"`
	Service string `json:"service,omitempty"`
	File    string `json:"file,omitempty"`
}

// Empty reports whether no predicate is set.
func (f *Filter) Empty() bool {
	return f == nil || (f.Release == "" && f.DocType == "" && f.Service == "" && f.File == "")
}

// Hit is a row returned by Search. The totalChunks field is not persisted
// and comes back as 0.
type Hit struct {
	Chunk chunker.Chunk `json:"chunk"`
	Score float32       `json:"score"`
}

// Store is the abstract collection contract: upsert, filtered search,
// filtered delete, and row count.
type Store interface {
	Connect(ctx context.Context) error
	Upsert(ctx context.Context, chunks []chunker.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Hit, error)
	Delete(ctx context.Context, filter *Filter) error
	Count(ctx context.Context) (uint64, error)
	Close() error
}

// StoreError wraps a failed store operation.
type StoreError struct {
	Store     string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Store, e.Operation, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *StoreError) Unwrap() error { return e.Err }

// maxContentLength bounds the persisted content field; longer content is
// truncated on upsert.
const maxContentLength = 65535

// ErrFilterRequired is returned by Delete when no predicate is set:
// an unfiltered delete would drop the whole collection.
var ErrFilterRequired = fmt.Errorf("delete requires at least one filter predicate")
