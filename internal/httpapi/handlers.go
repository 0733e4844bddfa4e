package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/DoyleJ11/darkmoon-dice/internal/hub"
	"github.com/DoyleJ11/darkmoon-dice/internal/lobby"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const codeAttempts = 16

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type roomCreated struct {
	RoomCode string `json:"roomCode"`
}

type roomStats struct {
	RoomCode      string `json:"roomCode"`
	Players       int    `json:"players"`
	FeedLength    int    `json:"feedLength"`
	PendingRolls  int    `json:"pendingRolls"`
	RetainedRolls int    `json:"retainedRolls"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// CreateRoom opens a room under a fresh code. Players can still create rooms
// just by joining an unused code.
func CreateRoom(h *hub.Hub, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < codeAttempts; i++ {
			code, err := GenerateCode()
			if err != nil {
				logger.Errorw("generate room code", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to generate code")
				return
			}

			_, err = h.Create(r.Context(), code)
			switch {
			case err == nil:
				writeJSON(w, http.StatusCreated, roomCreated{RoomCode: code})
				return
			case errors.Is(err, hub.ErrCodeInUse):
				logger.Debugw("collision on room code, regenerating", "room", code)
			default:
				writeError(w, http.StatusServiceUnavailable, "server is shutting down")
				return
			}
		}
		writeError(w, http.StatusInternalServerError, "failed to create room")
	}
}

func RoomStats(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := h.Get(r.Context(), chi.URLParam(r, "code"))
		switch {
		case errors.Is(err, hub.ErrRoomMissing), errors.Is(err, hub.ErrEmptyCode):
			writeError(w, http.StatusNotFound, "room not found")
			return
		case err != nil:
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}

		reply := make(chan lobby.View, 1)
		if !lb.Send(r.Context(), lobby.GetState{Reply: reply}) {
			writeError(w, http.StatusServiceUnavailable, "room stopped")
			return
		}
		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, roomStats{
				RoomCode:      v.Code,
				Players:       v.Stats.Players,
				FeedLength:    v.Stats.FeedLength,
				PendingRolls:  v.Stats.PendingRolls,
				RetainedRolls: v.Stats.RetainedRolls,
			})
		case <-lb.Done():
			writeError(w, http.StatusServiceUnavailable, "room stopped")
		case <-r.Context().Done():
		}
	}
}

func Banner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Dark Moon Dice server running"))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
