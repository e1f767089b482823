package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGo_ReturnsError(t *testing.T) {
	want := errors.New("boom")
	h := Go(context.Background(), func(context.Context) error { return want })

	require.ErrorIs(t, h.Wait(context.Background()), want)
	require.ErrorIs(t, h.Err(), want)
}

func TestGo_Cancel(t *testing.T) {
	started := make(chan struct{})
	h := Go(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	h.Cancel()
	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop after Cancel")
	}
	require.ErrorIs(t, h.Err(), context.Canceled)
}

func TestNilHandle(t *testing.T) {
	var h *Handle
	h.Cancel()
	require.NoError(t, h.Err())
	require.NoError(t, h.Wait(context.Background()))
}
