package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/dice"
	"github.com/DoyleJ11/darkmoon-dice/internal/hub"
	"github.com/DoyleJ11/darkmoon-dice/internal/lobby"
	"github.com/DoyleJ11/darkmoon-dice/internal/metrics"
	"github.com/DoyleJ11/darkmoon-dice/pkg/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firstFace struct{}

func (firstFace) Roll(c dice.Color) int {
	f, _ := dice.Faces(c)
	return f[0]
}

func newTestServer(t *testing.T, opts Options) string {
	t.Helper()
	h := hub.NewHub(context.Background(), lobby.Options{Roller: firstFace{}})
	srv := httptest.NewServer(Handler(h, opts))
	t.Cleanup(func() {
		srv.Close()
		_ = h.Shutdown(context.Background())
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, msgType string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": msgType, "data": data}))
}

func read(t *testing.T, c *websocket.Conn) types.ClientMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg types.ClientMessage
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	return msg
}

func readAs[T any](t *testing.T, c *websocket.Conn, msgType string) T {
	t.Helper()
	msg := read(t, c)
	require.Equal(t, msgType, msg.Type, "payload: %s", msg.Data)
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

func joinRoom(t *testing.T, c *websocket.Conn, code, name string) types.RoomJoined {
	t.Helper()
	send(t, c, types.JoinRoomType, types.JoinRoom{RoomCode: code, PlayerName: name})
	joined := readAs[types.RoomJoined](t, c, types.RoomJoinedType)
	entry := readAs[types.FeedEntry](t, c, types.FeedEntryType)
	require.Equal(t, "JOINED", entry.Type)
	return joined
}

func TestHandler_RequiresJoin(t *testing.T) {
	url := newTestServer(t, Options{})
	c := dial(t, url)

	send(t, c, types.RollRequestType, map[string]any{"section": "task"})
	assert.Equal(t, types.SectionError{Message: "Join a room first.", Section: "task"},
		readAs[types.SectionError](t, c, types.RollErrorType))

	send(t, c, types.RevealRequestType, map[string]any{"rollId": "x", "indices": []int{0}, "section": "corp"})
	assert.Equal(t, types.SectionError{Message: "Join a room first.", Section: "corp"},
		readAs[types.SectionError](t, c, types.RevealErrorType))

	send(t, c, types.JoinRoomType, map[string]any{"roomCode": "abc", "playerName": "   "})
	assert.Equal(t, "Room code and player name are required.",
		readAs[types.JoinError](t, c, types.JoinErrorType).Message)
}

func TestHandler_RollAndRevealRoundTrip(t *testing.T) {
	url := newTestServer(t, Options{})
	nova := dial(t, url)
	rook := dial(t, url)

	joined := joinRoom(t, nova, " abc123 ", "Nova")
	assert.Equal(t, "ABC123", joined.RoomCode)
	assert.Empty(t, joined.Feed)

	joined = joinRoom(t, rook, "ABC123", "Rook")
	require.Len(t, joined.Feed, 1)
	_ = readAs[types.FeedEntry](t, nova, types.FeedEntryType)

	send(t, nova, types.RollRequestType, map[string]any{
		"section":    "task",
		"diceCounts": map[string]any{"black": 1, "blue": "2"},
	})
	result := readAs[types.RollResult](t, nova, types.RollResultType)
	assert.Equal(t, []string{"black", "blue", "blue"}, result.DiceList)
	assert.Equal(t, []int{4, 5, 5}, result.Outcomes)
	assert.Equal(t, "ROLL_LOCKED", readAs[types.FeedEntry](t, nova, types.FeedEntryType).Type)

	// The other player only learns that a roll happened.
	msg := read(t, rook)
	require.Equal(t, types.FeedEntryType, msg.Type)
	assert.NotContains(t, string(msg.Data), "revealed")

	send(t, nova, types.RevealRequestType, map[string]any{"rollId": result.RollID, "indices": []any{2, 0, 2}})
	revealed := readAs[types.FeedEntry](t, nova, types.FeedEntryType)
	assert.Equal(t, []types.RevealedDie{{Color: "blue", Value: 5}, {Color: "black", Value: 4}}, revealed.Revealed)
	ack := readAs[types.RevealAck](t, nova, types.RevealAckType)
	assert.Equal(t, []int{2, 0}, ack.RevealedIndices)
	assert.Equal(t, revealed, readAs[types.FeedEntry](t, rook, types.FeedEntryType))
}

func TestHandler_MalformedInput(t *testing.T) {
	url := newTestServer(t, Options{})
	c := dial(t, url)
	joinRoom(t, c, "ABC123", "Nova")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, "Invalid message.", readAs[types.Error](t, c, types.ErrorType).Message)

	send(t, c, "shuffle", nil)
	assert.Equal(t, "Unknown message type.", readAs[types.Error](t, c, types.ErrorType).Message)

	send(t, c, types.RollRequestType, map[string]any{
		"section": "action", "actionType": "actions.loneWolf",
		"diceCounts": map[string]any{"black": "lots"},
	})
	assert.Equal(t, types.SectionError{Message: "Dice counts must be 0 or higher.", Section: "action"},
		readAs[types.SectionError](t, c, types.RollErrorType))

	send(t, c, types.RollRequestType, map[string]any{"section": "corp", "diceCount": true})
	assert.Equal(t, "Corp rolls must be 2 or 3 yellow dice.",
		readAs[types.SectionError](t, c, types.RollErrorType).Message)

	send(t, c, types.RevealRequestType, map[string]any{"rollId": "missing", "indices": "0", "section": "task"})
	assert.Equal(t, types.SectionError{Message: "Roll not found.", Section: "task"},
		readAs[types.SectionError](t, c, types.RevealErrorType))
}

func TestHandler_DisconnectAnnouncesLeave(t *testing.T) {
	url := newTestServer(t, Options{})
	nova := dial(t, url)
	rook := dial(t, url)
	joinRoom(t, nova, "ABC123", "Nova")
	joinRoom(t, rook, "ABC123", "Rook")
	_ = readAs[types.FeedEntry](t, nova, types.FeedEntryType)

	rook.Close(websocket.StatusNormalClosure, "")

	left := readAs[types.FeedEntry](t, nova, types.FeedEntryType)
	assert.Equal(t, "LEFT", left.Type)
	assert.Equal(t, "Rook", left.PlayerName)
}

func TestHandler_SwitchingRoomsLeavesTheFirst(t *testing.T) {
	url := newTestServer(t, Options{})
	nova := dial(t, url)
	rook := dial(t, url)
	joinRoom(t, nova, "AAAAAA", "Nova")
	joinRoom(t, rook, "AAAAAA", "Rook")
	_ = readAs[types.FeedEntry](t, nova, types.FeedEntryType)

	joined := joinRoom(t, rook, "BBBBBB", "Rook")
	assert.Equal(t, "BBBBBB", joined.RoomCode)

	left := readAs[types.FeedEntry](t, nova, types.FeedEntryType)
	assert.Equal(t, "LEFT", left.Type)
}

func TestHandler_RejoinSameRoomRenames(t *testing.T) {
	url := newTestServer(t, Options{})
	c := dial(t, url)
	joinRoom(t, c, "ABC123", "Nova")

	joined := joinRoom(t, c, "ABC123", "Nova Prime")
	assert.Equal(t, "Nova Prime", joined.PlayerName)
	require.Len(t, joined.Feed, 1)
	assert.Equal(t, "Nova", joined.Feed[0].PlayerName)
}

func TestHandler_RateLimit(t *testing.T) {
	m := metrics.NewUnregistered()
	url := newTestServer(t, Options{RatePerSecond: 0.001, RateBurst: 1, Metrics: m})
	c := dial(t, url)

	send(t, c, "ping", nil)
	assert.Equal(t, "Unknown message type.", readAs[types.Error](t, c, types.ErrorType).Message)

	send(t, c, "ping", nil)
	assert.Equal(t, "Too many messages, slow down.", readAs[types.Error](t, c, types.ErrorType).Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}

func TestHandler_HugeCountsAreRangeErrors(t *testing.T) {
	url := newTestServer(t, Options{})
	c := dial(t, url)
	joinRoom(t, c, "ABC123", "Nova")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText,
		[]byte(`{"type":"roll_request","data":{"section":"task","diceCounts":{"black":2147483647,"red":1e300}}}`)))
	assert.Equal(t, types.SectionError{Message: "Task rolls must use 1 to 6 dice total.", Section: "task"},
		readAs[types.SectionError](t, c, types.RollErrorType))

	send(t, c, types.RollRequestType, map[string]any{
		"section": "action", "actionType": "actions.repairShields",
		"diceCounts": map[string]any{"blue": "99999999999"},
	})
	assert.Equal(t, types.SectionError{Message: "Action rolls must use 1 to 3 dice total.", Section: "action"},
		readAs[types.SectionError](t, c, types.RollErrorType))

	// The room is still serving after both.
	send(t, c, types.RollRequestType, map[string]any{"section": "corp", "diceCount": 2})
	assert.Len(t, readAs[types.RollResult](t, c, types.RollResultType).DiceList, 2)
}

func TestHandler_JoinStringifiesFields(t *testing.T) {
	url := newTestServer(t, Options{})
	c := dial(t, url)

	send(t, c, types.JoinRoomType, map[string]any{"roomCode": 1234, "playerName": "Nova"})
	joined := readAs[types.RoomJoined](t, c, types.RoomJoinedType)
	assert.Equal(t, "1234", joined.RoomCode)
	assert.Equal(t, "Nova", joined.PlayerName)
	_ = readAs[types.FeedEntry](t, c, types.FeedEntryType)

	send(t, c, types.JoinRoomType, map[string]any{"roomCode": map[string]any{}, "playerName": "Nova"})
	assert.Equal(t, "Room code and player name are required.",
		readAs[types.JoinError](t, c, types.JoinErrorType).Message)
}
