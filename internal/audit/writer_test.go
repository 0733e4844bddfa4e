package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/dice"
	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	recs []RollAudit
}

func (m *memStore) Save(_ context.Context, rec RollAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memStore) snapshot() []RollAudit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RollAudit(nil), m.recs...)
}

func revealedEntry(id string) engine.FeedEntry {
	return engine.FeedEntry{
		ID:         id,
		Type:       engine.EntryRollRevealed,
		PlayerName: "Nova",
		Section:    engine.SectionTask,
		Revealed: []engine.RevealedDie{
			{Color: dice.Black, Value: 4},
			{Color: dice.Blue, Value: -1},
		},
		At: time.UnixMilli(1700000000000),
	}
}

func TestNewRecord(t *testing.T) {
	rec, err := newRecord("ABC123", revealedEntry("e1"))
	require.NoError(t, err)

	assert.Equal(t, "e1", rec.EntryID)
	assert.Equal(t, "ABC123", rec.RoomCode)
	assert.Equal(t, "ROLL_REVEALED", rec.EntryType)
	assert.Equal(t, "task", rec.Section)
	assert.JSONEq(t, `[{"color":"black","value":4},{"color":"blue","value":-1}]`, string(rec.Revealed))
	assert.Equal(t, int64(1700000000000), rec.OccurredAt.UnixMilli())
}

func TestNewRecord_LockedHasNoDice(t *testing.T) {
	rec, err := newRecord("ABC123", engine.FeedEntry{
		ID: "e2", Type: engine.EntryRollLocked, PlayerName: "Nova",
		Section: engine.SectionCorp, DiceCount: 3,
	})
	require.NoError(t, err)
	assert.Nil(t, rec.Revealed)
	assert.Equal(t, 3, rec.DiceCount)
}

func TestWriter_SkipsNonRollEntries(t *testing.T) {
	w := newWriter(&memStore{}, 4, nil)
	w.Record("ABC123", engine.FeedEntry{ID: "j", Type: engine.EntryJoined})
	w.Record("ABC123", engine.FeedEntry{ID: "r", Type: engine.EntryReset})
	assert.Len(t, w.queue, 0)
}

func TestWriter_DropsWhenFull(t *testing.T) {
	w := newWriter(&memStore{}, 1, nil)
	w.Record("ABC123", revealedEntry("a"))
	w.Record("ABC123", revealedEntry("b"))
	require.Len(t, w.queue, 1)
	assert.Equal(t, "a", (<-w.queue).EntryID)
}

func TestWriter_RunSavesAndFlushes(t *testing.T) {
	st := &memStore{}
	w := newWriter(st, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.Record("ABC123", revealedEntry("a"))
	assert.Eventually(t, func() bool { return len(st.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	w.Record("ABC123", revealedEntry("b"))
	w.flush()

	recs := st.snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[1].EntryID)
}
