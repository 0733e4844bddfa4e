package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
	"github.com/DoyleJ11/darkmoon-dice/internal/hub"
	"github.com/DoyleJ11/darkmoon-dice/internal/lobby"
	"github.com/DoyleJ11/darkmoon-dice/internal/metrics"
	"github.com/DoyleJ11/darkmoon-dice/internal/tracing"
	"github.com/DoyleJ11/darkmoon-dice/pkg/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	AllowedOrigins []string
	ClientBuffer   int
	RatePerSecond  float64
	RateBurst      int
	WriteTimeout   time.Duration
	Logger         *zap.SugaredLogger
	Metrics        *metrics.Metrics
}

func (o *Options) applyDefaults() {
	if o.ClientBuffer <= 0 {
		o.ClientBuffer = 32
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 20
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 40
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewUnregistered()
	}
}

// Session is everything the server knows about one connection. It is only
// touched by the connection's reader goroutine.
type Session struct {
	ConnID     string
	RoomCode   string
	PlayerName string

	connCtx context.Context
	conn    *websocket.Conn
	hub     *hub.Hub
	opts    Options
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  *zap.SugaredLogger
	room    *membership
}

// membership is one stay in one room. The lobby closes outbox; left tells
// the writer whether that close was asked for.
type membership struct {
	lobby  *lobby.Lobby
	outbox chan types.ServerMessage
	left   atomic.Bool
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	opts.applyDefaults()
	tracer := tracing.Tracer("github.com/DoyleJ11/darkmoon-dice/internal/ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.AllowedOrigins,
		})
		if err != nil {
			opts.Logger.Warnw("websocket accept failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		s := &Session{
			ConnID:  uuid.NewString(),
			conn:    conn,
			hub:     h,
			opts:    opts,
			limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst),
			tracer:  tracer,
		}
		s.logger = opts.Logger.With("conn", s.ConnID)

		opts.Metrics.ActiveConnections.Inc()
		defer opts.Metrics.ActiveConnections.Dec()
		s.logger.Infow("connection opened", "remote", r.RemoteAddr)

		err = s.serve(r.Context())
		s.leave()

		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			s.logger.Infow("connection closed")
		default:
			s.logger.Infow("connection closed", "error", err)
		}
	}
}

// serve reads frames until the connection fails or closes.
func (s *Session) serve(ctx context.Context) error {
	s.connCtx = ctx
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}

		if !s.limiter.Allow() {
			s.opts.Metrics.RateLimited.Inc()
			s.write(ctx, types.NewServerError("Too many messages, slow down."))
			continue
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil || cm.Type == "" {
			s.write(ctx, types.NewServerError("Invalid message."))
			continue
		}
		s.opts.Metrics.InboundMessages.WithLabelValues(metricLabel(cm.Type)).Inc()
		s.dispatch(ctx, cm)
	}
}

func metricLabel(t string) string {
	switch t {
	case types.JoinRoomType, types.RollRequestType, types.RevealRequestType, types.ResetSectionType:
		return t
	default:
		return "unknown"
	}
}

func (s *Session) dispatch(ctx context.Context, cm types.ClientMessage) {
	ctx, span := s.tracer.Start(ctx, "ws."+cm.Type, trace.WithAttributes(
		attribute.String("conn.id", s.ConnID),
		attribute.String("room.code", s.RoomCode),
	))
	defer span.End()

	switch cm.Type {
	case types.JoinRoomType:
		var req types.JoinRoom
		s.decode(cm, &req)
		if err := s.join(ctx, req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

	case types.RollRequestType:
		var req types.RollRequest
		s.decode(cm, &req)
		if s.room == nil {
			s.write(ctx, notJoined(types.RollErrorType, req.Section))
			return
		}
		s.forward(ctx, engine.Command{
			Type:       engine.CmdRoll,
			Section:    req.Section,
			ActionType: req.ActionType,
			DiceCounts: parseCounts(req.DiceCounts),
			DiceCount:  parseCount(req.DiceCount),
		})

	case types.RevealRequestType:
		var req types.RevealRequest
		s.decode(cm, &req)
		if s.room == nil {
			s.write(ctx, notJoined(types.RevealErrorType, req.Section))
			return
		}
		s.forward(ctx, engine.Command{
			Type:    engine.CmdReveal,
			RollID:  req.RollID,
			Section: req.Section,
			Indices: parseIndices(req.Indices),
		})

	case types.ResetSectionType:
		var req types.ResetSection
		s.decode(cm, &req)
		if s.room == nil {
			return
		}
		s.forward(ctx, engine.Command{Type: engine.CmdReset, Section: req.Section})

	default:
		s.write(ctx, types.NewServerError("Unknown message type."))
	}
}

// decode fills v from the frame payload. Fields of the wrong JSON type are
// left at their zero value and the engine rejects what is missing.
func (s *Session) decode(cm types.ClientMessage, v any) {
	if len(cm.Data) == 0 {
		return
	}
	if err := json.Unmarshal(cm.Data, v); err != nil {
		s.logger.Debugw("payload decode", "type", cm.Type, "error", err)
	}
}

var errHubClosed = errors.New("server is shutting down")

func (s *Session) join(ctx context.Context, req types.JoinRoom) error {
	code := engine.NormalizeRoomCode(looseString(req.RoomCode))
	name := strings.TrimSpace(looseString(req.PlayerName))
	if code == "" || name == "" {
		s.write(ctx, types.ServerMessage{Type: types.JoinErrorType, Data: types.JoinError{
			Message: lobby.UserMessage(engine.ErrMissingIdentity),
		}})
		return engine.ErrMissingIdentity
	}

	lb, err := s.hub.Ensure(ctx, code)
	if err != nil {
		s.write(ctx, types.ServerMessage{Type: types.JoinErrorType, Data: types.JoinError{Message: "Server is shutting down."}})
		return err
	}

	if s.room != nil {
		if s.room.lobby == lb {
			// Same room: the lobby swaps outboxes without a LEFT entry.
			s.room.left.Store(true)
		} else {
			s.leave()
		}
	}

	m := &membership{lobby: lb, outbox: make(chan types.ServerMessage, s.opts.ClientBuffer)}
	go s.pump(s.connCtx, m)
	if !lb.Send(ctx, lobby.Join{ClientID: s.ConnID, PlayerName: name, Outbox: m.outbox}) {
		m.left.Store(true)
		close(m.outbox)
		s.room = nil
		s.write(ctx, types.ServerMessage{Type: types.JoinErrorType, Data: types.JoinError{Message: "Server is shutting down."}})
		return errHubClosed
	}

	s.room = m
	s.RoomCode = code
	s.PlayerName = name
	s.logger.Infow("joined room", "room", code, "player", name)
	return nil
}

func (s *Session) forward(ctx context.Context, cmd engine.Command) {
	if !s.room.lobby.Send(ctx, lobby.FromClient{ClientID: s.ConnID, Cmd: cmd}) {
		s.logger.Debugw("room stopped, dropping command", "room", s.RoomCode, "command", cmd.Type)
	}
}

// leave hands the current membership back to its lobby.
func (s *Session) leave() {
	if s.room == nil {
		return
	}
	m := s.room
	s.room = nil
	m.left.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.lobby.Send(ctx, lobby.Leave{ClientID: s.ConnID})
	s.logger.Infow("left room", "room", s.RoomCode, "player", s.PlayerName)
	s.RoomCode, s.PlayerName = "", ""
}

// pump writes one membership's outbox to the socket. An outbox closed by the
// lobby without a leave means the client was dropped or the room stopped.
func (s *Session) pump(ctx context.Context, m *membership) {
	for msg := range m.outbox {
		s.write(ctx, msg)
	}
	if !m.left.Load() {
		s.conn.Close(websocket.StatusGoingAway, "room closed the connection")
	}
}

func (s *Session) write(ctx context.Context, msg types.ServerMessage) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, s.conn, msg); err != nil {
		s.logger.Debugw("write failed", "type", msg.Type, "error", err)
	}
}

func notJoined(msgType, section string) types.ServerMessage {
	return types.ServerMessage{Type: msgType, Data: types.SectionError{
		Message: lobby.UserMessage(engine.ErrNotJoined),
		Section: section,
	}}
}
