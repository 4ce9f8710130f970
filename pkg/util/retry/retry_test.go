package retry

import (
	"context"
	"errors"
	"testing"

	"regionchat_server/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRetriesTransientOnly(t *testing.T) {
	calls := 0
	v, err := Read(context.Background(), 3, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errorx.New(errorx.CodeDBError, "timeout")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestReadStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := Read(context.Background(), 5, func(ctx context.Context) (string, error) {
		calls++
		return "", errorx.ErrNotFound
	})
	assert.ErrorIs(t, err, errorx.ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestReadExhausts(t *testing.T) {
	calls := 0
	_, err := Read(context.Background(), 2, func(ctx context.Context) (string, error) {
		calls++
		return "", errorx.New(errorx.CodeDBError, "down")
	})
	require.Error(t, err)
	assert.True(t, errorx.IsTransient(err))
	assert.Equal(t, 2, calls)
}

func TestBoundedStopsOnConflict(t *testing.T) {
	calls := 0
	out := Bounded(context.Background(), 5, func(ctx context.Context, attempt int) Outcome[string] {
		calls++
		return Conflict[string](errorx.ErrRequestSent)
	})
	assert.Equal(t, KindConflict, out.Kind)
	assert.Equal(t, 1, calls)
	_, err := out.Unwrap()
	assert.ErrorIs(t, err, errorx.ErrRequestSent)
}

func TestBoundedAgainIsBounded(t *testing.T) {
	var attempts []int
	out := Bounded(context.Background(), 3, func(ctx context.Context, attempt int) Outcome[string] {
		attempts = append(attempts, attempt)
		return Again[string](errors.New("raced"))
	})
	assert.Equal(t, []int{0, 1, 2}, attempts)
	assert.Equal(t, KindTransient, out.Kind)
	assert.ErrorIs(t, out.Err, errorx.ErrServerBusy)
}

func TestBoundedSucceedsAfterRace(t *testing.T) {
	out := Bounded(context.Background(), 3, func(ctx context.Context, attempt int) Outcome[int] {
		if attempt == 0 {
			return Again[int](errors.New("raced"))
		}
		return Ok(attempt)
	})
	v, err := out.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestBoundedHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := Bounded(ctx, 10, func(ctx context.Context, attempt int) Outcome[int] {
		cancel()
		return Again[int](errors.New("raced"))
	})
	assert.Equal(t, KindTransient, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)
}
