package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWorkerSpan_ReturnsUsableSpan(t *testing.T) {
	ctx, span := StartWorkerSpan(context.Background(), 7, "PROBING")
	require.NotNil(t, span)
	require.NotNil(t, ctx)

	span.End()
}

func TestRecordStateTransition_DoesNotPanic(t *testing.T) {
	_, span := StartWorkerSpan(context.Background(), 1, "NAVIGATING")
	defer span.End()

	assert.NotPanics(t, func() {
		RecordStateTransition(span, "NAVIGATING", "PROBING")
	})
}
