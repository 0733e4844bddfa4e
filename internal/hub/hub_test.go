package hub

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/dice"
	"github.com/DoyleJ11/darkmoon-dice/internal/lobby"
	"github.com/DoyleJ11/darkmoon-dice/internal/metrics"
	"github.com/DoyleJ11/darkmoon-dice/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewUnregistered()
	h := NewHub(context.Background(), lobby.Options{Roller: dice.NewRoller(1), Metrics: m})
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	return h, m
}

func TestHub_Ensure_SamePointerForNormalizedCode(t *testing.T) {
	h, m := newTestHub(t)
	ctx := context.Background()

	lb1, err := h.Ensure(ctx, "zed123")
	require.NoError(t, err)
	lb2, err := h.Ensure(ctx, "  ZED123 ")
	require.NoError(t, err)

	assert.Same(t, lb1, lb2)
	assert.Equal(t, "ZED123", lb1.Code())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rooms))
}

func TestHub_Create_Get(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	_, err := h.Get(ctx, "ABCDEF")
	assert.ErrorIs(t, err, ErrRoomMissing)

	lb, err := h.Create(ctx, "ABCDEF")
	require.NoError(t, err)

	_, err = h.Create(ctx, "abcdef")
	assert.ErrorIs(t, err, ErrCodeInUse)

	got, err := h.Get(ctx, "abcdef")
	require.NoError(t, err)
	assert.Same(t, lb, got)

	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHub_EmptyCode(t *testing.T) {
	h, _ := newTestHub(t)
	_, err := h.Ensure(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyCode)
}

func TestHub_RoomsAreIsolated(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	a, err := h.Ensure(ctx, "AAAAAA")
	require.NoError(t, err)
	b, err := h.Ensure(ctx, "BBBBBB")
	require.NoError(t, err)

	outA := make(chan types.ServerMessage, 8)
	outB := make(chan types.ServerMessage, 8)
	a.Inbox() <- lobby.Join{ClientID: "c1", PlayerName: "Nova", Outbox: outA}
	b.Inbox() <- lobby.Join{ClientID: "c2", PlayerName: "Rook", Outbox: outB}

	reply := make(chan lobby.View, 1)
	a.Inbox() <- lobby.GetState{Reply: reply}
	v := <-reply
	assert.Equal(t, 1, v.Stats.Players)
	assert.Equal(t, 1, v.Stats.FeedLength)
}

func TestHub_ShutdownStopsLobbies(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	lb, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	out := make(chan types.ServerMessage, 8)
	lb.Inbox() <- lobby.Join{ClientID: "c1", PlayerName: "Nova", Outbox: out}

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(sctx))

	select {
	case <-lb.Done():
	default:
		t.Fatalf("lobby still running after hub shutdown")
	}

	_, err = h.Ensure(ctx, "OTHER1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, h.Shutdown(ctx))
}
