package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	got, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", got)
}

func TestTraceID_AbsentReturnsFalse(t *testing.T) {
	_, ok := TraceID(context.Background())
	assert.False(t, ok)
}

func TestRunID_RoundTrip(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-42")
	got, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-42", got)
}

func TestRunID_AbsentReturnsFalse(t *testing.T) {
	_, ok := RunID(context.Background())
	assert.False(t, ok)
}
