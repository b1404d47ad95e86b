package types

// ============================================================================
// Completion handle tests
// ============================================================================

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteDeliversValue(t *testing.T) {
	fut := NewFuture()
	go fut.Complete(42)

	v, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, fut.Resolved())
}

func TestFailDeliversError(t *testing.T) {
	fut := NewFuture()
	want := errors.New("boom")
	fut.Fail(want)

	_, err := fut.Wait(context.Background())
	assert.ErrorIs(t, err, want)
}

func TestFirstResolutionWins(t *testing.T) {
	fut := NewFuture()
	fut.Complete("first")
	fut.Fail(errors.New("late"))
	fut.Complete("also late")

	v, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestWaitHonorsContext(t *testing.T) {
	fut := NewFuture()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := fut.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Producer can still complete a future the consumer abandoned.
	fut.Complete("late but fine")
}

func TestDoneChannel(t *testing.T) {
	fut := NewFuture()

	select {
	case <-fut.Done():
		t.Fatal("done before resolution")
	default:
	}

	fut.Complete(nil)
	select {
	case <-fut.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after resolution")
	}
}

func TestDecoderRegistryUnknownType(t *testing.T) {
	reg := DecoderRegistry{}
	_, err := reg.Decode("ghost", nil)

	var unknownErr *UnknownTypeError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "ghost", unknownErr.TypeKey)
}
