package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("accumulates request counters per operation", func(t *testing.T) {
		m := NewNoop()
		m.RecordRequest(ctx, "search_docs", 10*time.Millisecond, nil)
		m.RecordRequest(ctx, "search_docs", 30*time.Millisecond, nil)
		m.RecordRequest(ctx, "answer_question", 20*time.Millisecond, assert.AnError)

		snap := m.Snapshot()
		assert.Equal(t, int64(3), snap.Requests)
		assert.Equal(t, int64(1), snap.Errors)
		assert.Equal(t, int64(2), snap.Operations["search_docs"])
		assert.Equal(t, int64(1), snap.Operations["answer_question"])
		assert.InDelta(t, 20.0, snap.AvgLatencyMs, 0.5)
	})

	t.Run("nil metrics are safe", func(t *testing.T) {
		var m *Metrics
		m.RecordRequest(ctx, "x", time.Millisecond, nil)
		m.RecordEmbeddingTokens(ctx, 5)
		snap := m.Snapshot()
		assert.Equal(t, int64(0), snap.Requests)
		assert.NotNil(t, snap.Operations)
	})
}
