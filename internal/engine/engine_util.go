package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultFeedLimit     = 200
	DefaultRollRetention = 200
)

// Swapped in tests for stable ids and timestamps.
var (
	newID = uuid.NewString
	now   = time.Now
)

func NewState(code string, rules Rules, roller DieRoller) *State {
	if rules.FeedLimit <= 0 {
		rules.FeedLimit = DefaultFeedLimit
	}
	if rules.RollRetention <= 0 {
		rules.RollRetention = DefaultRollRetention
	}
	return &State{
		Code:    code,
		Players: map[string]string{},
		Feed:    make([]FeedEntry, 0, 16),
		Rolls:   map[string]*Roll{},
		Rules:   rules,
		pending: map[pendingKey]string{},
		evicted: map[string]retired{},
		roller:  roller,
	}
}

// NormalizeRoomCode trims and upper-cases a player supplied room code.
func NormalizeRoomCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

type Stats struct {
	Players       int
	FeedLength    int
	PendingRolls  int
	RetainedRolls int
}

func (s *State) Stats() Stats {
	return Stats{
		Players:       len(s.Players),
		FeedLength:    len(s.Feed),
		PendingRolls:  len(s.pending),
		RetainedRolls: len(s.Rolls),
	}
}

// PendingRoll returns the id of connID's open roll in section, if any.
func (s *State) PendingRoll(connID string, section Section) (string, bool) {
	id, ok := s.pending[pendingKey{connID: connID, section: section}]
	return id, ok
}

func ContainsEntry(entries []FeedEntry, t EntryType) bool {
	for _, e := range entries {
		if e.Type == t {
			return true
		}
	}
	return false
}
