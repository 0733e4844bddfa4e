package lobby

import (
	"context"

	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
	"github.com/DoyleJ11/darkmoon-dice/internal/metrics"
	"github.com/DoyleJ11/darkmoon-dice/pkg/types"
	"go.uber.org/zap"
)

type Msg interface{ isLobbyMsg() }

// Join registers Outbox as the client's delivery channel and adds the player
// to the room. The lobby owns Outbox from here on and closes it on Leave,
// when the client falls behind, or at shutdown.
type Join struct {
	ClientID   string
	PlayerName string
	Outbox     chan types.ServerMessage
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type View struct {
	Code       string
	NumClients int
	Stats      engine.Stats
}

// Recorder receives every feed entry the room appends.
type Recorder interface {
	Record(roomCode string, e engine.FeedEntry)
}

type Options struct {
	Rules   engine.Rules
	Roller  engine.DieRoller
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
	Audit   Recorder
}

type Lobby struct {
	code    string
	inbox   chan Msg
	state   *engine.State
	clients map[string]chan types.ServerMessage
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	audit   Recorder
}

func NewLobby(parent context.Context, code string, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}

	l := &Lobby{
		code:    code,
		inbox:   make(chan Msg, 64),
		state:   engine.NewState(code, opts.Rules, opts.Roller),
		clients: make(map[string]chan types.ServerMessage),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  opts.Logger.With("room", code),
		metrics: opts.Metrics,
		audit:   opts.Audit,
	}

	go l.loop()
	return l
}

func (l *Lobby) Code() string { return l.code }

// Inbox exposes the inbox so tests or the ws layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Send delivers msg unless ctx ends or the lobby has already stopped.
func (l *Lobby) Send(ctx context.Context, msg Msg) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	case <-l.ctx.Done():
		return false
	}
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}
				out, _ := engine.Apply(l.state, engine.Command{Type: engine.CmdLeave, ConnID: msg.ClientID})
				l.publish(out.Entries)

			case FromClient:
				msg.Cmd.ConnID = msg.ClientID
				l.handleCommand(msg.Cmd)

			case GetState:
				msg.Reply <- View{
					Code:       l.code,
					NumClients: len(l.clients),
					Stats:      l.state.Stats(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handleJoin(msg Join) {
	out, err := engine.Apply(l.state, engine.Command{
		Type:       engine.CmdJoin,
		ConnID:     msg.ClientID,
		PlayerName: msg.PlayerName,
	})
	if err != nil {
		l.reject(engine.CmdJoin, err)
		select {
		case msg.Outbox <- types.ServerMessage{Type: types.JoinErrorType, Data: types.JoinError{Message: UserMessage(err)}}:
		default:
		}
		if l.clients[msg.ClientID] != msg.Outbox {
			close(msg.Outbox)
		}
		return
	}

	if prev, ok := l.clients[msg.ClientID]; ok && prev != msg.Outbox {
		close(prev)
	}
	l.clients[msg.ClientID] = msg.Outbox
	l.logger.Infow("player joined", "client", msg.ClientID, "player", l.state.Players[msg.ClientID])

	l.unicast(msg.ClientID, types.ServerMessage{Type: types.RoomJoinedType, Data: types.RoomJoined{
		RoomCode:   l.code,
		PlayerName: l.state.Players[msg.ClientID],
		Feed:       wireFeed(out.Feed),
	}})
	l.publish(out.Entries)
}

func (l *Lobby) handleCommand(cmd engine.Command) {
	out, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.reject(cmd.Type, err)
		switch cmd.Type {
		case engine.CmdRoll:
			l.unicast(cmd.ConnID, errorReply(types.RollErrorType, err))
		case engine.CmdReveal:
			l.unicast(cmd.ConnID, errorReply(types.RevealErrorType, err))
		}
		// Rejected resets get no reply.
		return
	}

	switch cmd.Type {
	case engine.CmdRoll:
		l.metrics.Rolls.WithLabelValues(string(out.Roll.Section)).Inc()
		l.unicast(cmd.ConnID, types.ServerMessage{Type: types.RollResultType, Data: rollResult(out.Roll)})
		l.publish(out.Entries)

	case engine.CmdReveal:
		l.metrics.Reveals.WithLabelValues(string(out.Ack.Section)).Inc()
		l.publish(out.Entries)
		l.unicast(cmd.ConnID, types.ServerMessage{Type: types.RevealAckType, Data: types.RevealAck{
			RollID:          out.Ack.RollID,
			Section:         string(out.Ack.Section),
			RevealedIndices: out.Ack.Indices,
		}})

	default:
		l.publish(out.Entries)
	}
}

func (l *Lobby) reject(cmd engine.CommandType, err error) {
	l.metrics.Rejected.WithLabelValues(string(cmd), rejectionKind(err)).Inc()
	l.logger.Debugw("command rejected", "command", cmd, "error", err)
}

// unicast sends to one client. A client whose outbox is full is dropped.
func (l *Lobby) unicast(id string, msg types.ServerMessage) {
	if _, ok := l.clients[id]; !ok {
		return
	}
	if !l.trySend(id, msg) {
		l.publish(l.drop(id))
	}
}

// publish records entries and fans them out to every client. Dropping a
// slow client yields a LEFT entry, which is queued behind the current ones.
func (l *Lobby) publish(entries []engine.FeedEntry) {
	queue := append([]engine.FeedEntry(nil), entries...)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		l.metrics.FeedEntries.WithLabelValues(string(e.Type)).Inc()
		if l.audit != nil {
			l.audit.Record(l.code, e)
		}

		msg := types.ServerMessage{Type: types.FeedEntryType, Data: wireEntry(e)}
		for id := range l.clients {
			if !l.trySend(id, msg) {
				queue = append(queue, l.drop(id)...)
			}
		}
	}
}

func (l *Lobby) trySend(id string, msg types.ServerMessage) bool {
	select {
	case l.clients[id] <- msg:
		return true
	default:
		return false
	}
}

func (l *Lobby) drop(id string) []engine.FeedEntry {
	close(l.clients[id])
	delete(l.clients, id)
	l.metrics.DroppedClients.Inc()
	l.logger.Warnw("dropping slow client", "client", id)

	out, _ := engine.Apply(l.state, engine.Command{Type: engine.CmdLeave, ConnID: id})
	return out.Entries
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // no more messages for this client
		delete(l.clients, id)
	}
	l.cancel()
}
