package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
	"github.com/DoyleJ11/darkmoon-dice/internal/lobby"
	"github.com/DoyleJ11/darkmoon-dice/internal/metrics"
)

var (
	ErrClosed      = errors.New("hub closed")
	ErrEmptyCode   = errors.New("room code is required")
	ErrCodeInUse   = errors.New("room code already in use")
	ErrRoomMissing = errors.New("room not found")
)

type HubMsg interface{ isHubMsg() }

// CreateLobby replies nil when Code is already taken.
type CreateLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type EnsureLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct {
	Reply chan []*lobby.Lobby
}

func (CreateLobby) isHubMsg()  {}
func (GetLobby) isHubMsg()     {}
func (EnsureLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

// Hub maps room codes to lobbies. Rooms live until the hub shuts down.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	opts    lobby.Options
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, opts lobby.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if h.lobbies[msg.Code] != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.open(msg.Code)

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case EnsureLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.open(msg.Code)

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				all := make([]*lobby.Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					all = append(all, lb)
				}
				clear(h.lobbies)
				// Lobbies run under h.ctx, so this stops them too.
				h.cancel()
				msg.Reply <- all
				return
			}
		}
	}
}

func (h *Hub) open(code string) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, code, h.opts)
	h.lobbies[code] = lb
	h.opts.Metrics.Rooms.Inc()
	if h.opts.Logger != nil {
		h.opts.Logger.Infow("room created", "room", code)
	}
	return lb
}

func (h *Hub) request(ctx context.Context, msg HubMsg) error {
	if h.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case h.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrClosed
	}
}

func await[T any](ctx, hubCtx context.Context, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-hubCtx.Done():
		return zero, ErrClosed
	}
}

func (h *Hub) lookup(ctx context.Context, raw string, build func(string, chan *lobby.Lobby) HubMsg) (*lobby.Lobby, error) {
	code := engine.NormalizeRoomCode(raw)
	if code == "" {
		return nil, ErrEmptyCode
	}
	reply := make(chan *lobby.Lobby, 1)
	if err := h.request(ctx, build(code, reply)); err != nil {
		return nil, err
	}
	return await(ctx, h.ctx, reply)
}

// Ensure returns the lobby for code, creating it on first use.
func (h *Hub) Ensure(ctx context.Context, code string) (*lobby.Lobby, error) {
	return h.lookup(ctx, code, func(c string, r chan *lobby.Lobby) HubMsg {
		return EnsureLobby{Code: c, Reply: r}
	})
}

func (h *Hub) Get(ctx context.Context, code string) (*lobby.Lobby, error) {
	lb, err := h.lookup(ctx, code, func(c string, r chan *lobby.Lobby) HubMsg {
		return GetLobby{Code: c, Reply: r}
	})
	if err == nil && lb == nil {
		return nil, ErrRoomMissing
	}
	return lb, err
}

// Create opens a new lobby and fails with ErrCodeInUse if code is taken.
func (h *Hub) Create(ctx context.Context, code string) (*lobby.Lobby, error) {
	lb, err := h.lookup(ctx, code, func(c string, r chan *lobby.Lobby) HubMsg {
		return CreateLobby{Code: c, Reply: r}
	})
	if err == nil && lb == nil {
		return nil, ErrCodeInUse
	}
	return lb, err
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.request(ctx, CountLobbies{Reply: reply}); err != nil {
		return 0, err
	}
	return await(ctx, h.ctx, reply)
}

// Shutdown stops every lobby and waits for them to exit or ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan []*lobby.Lobby, 1)
	if err := h.request(ctx, ShutdownHub{Reply: reply}); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}

	var all []*lobby.Lobby
	select {
	case all = <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, lb := range all {
		select {
		case <-lb.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
