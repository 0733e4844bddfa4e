package engine

import (
	"strings"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/dice"
)

type EntryType string

const (
	EntryJoined       EntryType = "JOINED"
	EntryLeft         EntryType = "LEFT"
	EntryReset        EntryType = "RESET"
	EntryRollLocked   EntryType = "ROLL_LOCKED"
	EntryRollRevealed EntryType = "ROLL_REVEALED"
)

type RevealedDie struct {
	Color dice.Color
	Value int
}

// FeedEntry is one room-visible event. Entries are never mutated once appended.
type FeedEntry struct {
	ID         string
	Type       EntryType
	PlayerName string
	Section    Section
	Action     string
	DiceCount  int
	Revealed   []RevealedDie
	At         time.Time
}

// Roll is one private dice draw. Dice and Outcomes never change after the
// roll is created; Revealed flags and Completed only move from false to true.
type Roll struct {
	ID         string
	OwnerID    string
	PlayerName string
	Section    Section
	ActionType string
	Dice       []dice.Color
	Outcomes   []int
	Revealed   []bool
	Completed  bool
	CreatedAt  time.Time
}

func (r *Roll) clone() *Roll {
	cp := *r
	cp.Dice = append([]dice.Color(nil), r.Dice...)
	cp.Outcomes = append([]int(nil), r.Outcomes...)
	cp.Revealed = append([]bool(nil), r.Revealed...)
	return &cp
}

type DieRoller interface {
	Roll(c dice.Color) int
}

type Rules struct {
	FeedLimit     int
	RollRetention int
}

// retired is what stays of a completed roll once retention evicts it, enough
// to keep rejecting reveals on it the same way.
type retired struct {
	ownerID string
	section Section
}

type pendingKey struct {
	connID  string
	section Section
}

// State is everything a single room owns. It is not safe for concurrent use;
// one lobby goroutine owns each State.
type State struct {
	Code    string
	Players map[string]string // connection id -> display name
	Feed    []FeedEntry
	Rolls   map[string]*Roll
	Rules   Rules

	pending   map[pendingKey]string
	completed []string
	evicted   map[string]retired
	roller    DieRoller
}

type CommandType string

const (
	CmdJoin   CommandType = "Join"
	CmdLeave  CommandType = "Leave"
	CmdRoll   CommandType = "Roll"
	CmdReveal CommandType = "Reveal"
	CmdReset  CommandType = "Reset"
)

type Command struct {
	Type       CommandType
	ConnID     string
	PlayerName string
	Section    string
	ActionType string
	DiceCounts DiceCounts
	DiceCount  int
	RollID     string
	Indices    []int
}

type RevealAck struct {
	RollID  string
	Section Section
	Indices []int
}

// Outcome is what a successful command produced. Feed is only set for joins
// and holds the history as it was before the JOINED entry. Roll is only set
// for rolls and must go to the caller alone. Entries have already been
// appended to the room feed and go to every member.
type Outcome struct {
	Feed    []FeedEntry
	Roll    *Roll
	Ack     *RevealAck
	Entries []FeedEntry
}

func Apply(s *State, cmd Command) (Outcome, error) {
	switch cmd.Type {
	case CmdJoin:
		return s.join(cmd)
	case CmdLeave:
		return s.leave(cmd), nil
	case CmdRoll:
		return s.requestRoll(cmd)
	case CmdReveal:
		return s.reveal(cmd)
	case CmdReset:
		return s.reset(cmd)
	default:
		return Outcome{}, ErrUnsupportedCommand
	}
}

func (s *State) join(cmd Command) (Outcome, error) {
	name := strings.TrimSpace(cmd.PlayerName)
	if name == "" || s.Code == "" {
		return Outcome{}, ErrMissingIdentity
	}

	s.Players[cmd.ConnID] = name
	history := append([]FeedEntry(nil), s.Feed...)

	entry := s.appendFeed(FeedEntry{Type: EntryJoined, PlayerName: name})
	return Outcome{Feed: history, Entries: []FeedEntry{entry}}, nil
}

func (s *State) leave(cmd Command) Outcome {
	name, ok := s.Players[cmd.ConnID]
	if !ok {
		return Outcome{}
	}
	delete(s.Players, cmd.ConnID)

	entry := s.appendFeed(FeedEntry{Type: EntryLeft, PlayerName: name})
	return Outcome{Entries: []FeedEntry{entry}}
}

func (s *State) reset(cmd Command) (Outcome, error) {
	name, ok := s.Players[cmd.ConnID]
	if !ok {
		return Outcome{}, sectionErr(Section(cmd.Section), ErrNotJoined)
	}
	section, err := ParseSection(cmd.Section)
	if err != nil {
		return Outcome{}, sectionErr(Section(cmd.Section), err)
	}

	// Pending rolls are left alone; reset only tells the room.
	entry := s.appendFeed(FeedEntry{Type: EntryReset, PlayerName: name, Section: section})
	return Outcome{Entries: []FeedEntry{entry}}, nil
}

func (s *State) requestRoll(cmd Command) (Outcome, error) {
	name, ok := s.Players[cmd.ConnID]
	if !ok {
		return Outcome{}, sectionErr(Section(cmd.Section), ErrNotJoined)
	}
	section, err := ParseSection(cmd.Section)
	if err != nil {
		return Outcome{}, sectionErr(Section(cmd.Section), err)
	}
	key := pendingKey{connID: cmd.ConnID, section: section}
	if _, busy := s.pending[key]; busy {
		return Outcome{}, sectionErr(section, ErrRollInProgress)
	}

	list, label, err := buildDice(section, cmd)
	if err != nil {
		return Outcome{}, sectionErr(section, err)
	}

	outcomes := make([]int, len(list))
	for i, color := range list {
		outcomes[i] = s.roller.Roll(color)
	}

	roll := &Roll{
		ID:         newID(),
		OwnerID:    cmd.ConnID,
		PlayerName: name,
		Section:    section,
		ActionType: label,
		Dice:       list,
		Outcomes:   outcomes,
		Revealed:   make([]bool, len(list)),
		CreatedAt:  now(),
	}
	s.Rolls[roll.ID] = roll
	s.pending[key] = roll.ID

	locked := FeedEntry{Type: EntryRollLocked, PlayerName: name, Section: section}
	switch section {
	case SectionAction:
		locked.Action = label
	case SectionCorp:
		locked.DiceCount = len(list)
	}
	entry := s.appendFeed(locked)

	return Outcome{Roll: roll.clone(), Entries: []FeedEntry{entry}}, nil
}

func (s *State) reveal(cmd Command) (Outcome, error) {
	name, ok := s.Players[cmd.ConnID]
	if !ok {
		return Outcome{}, sectionErr(Section(cmd.Section), ErrNotJoined)
	}
	roll, ok := s.Rolls[cmd.RollID]
	if !ok {
		gone, wasEvicted := s.evicted[cmd.RollID]
		switch {
		case !wasEvicted:
			return Outcome{}, sectionErr(Section(cmd.Section), ErrRollNotFound)
		case gone.ownerID != cmd.ConnID:
			return Outcome{}, sectionErr(gone.section, ErrNotOwner)
		default:
			return Outcome{}, sectionErr(gone.section, ErrAlreadyCompleted)
		}
	}
	if roll.OwnerID != cmd.ConnID {
		return Outcome{}, sectionErr(roll.Section, ErrNotOwner)
	}
	if roll.Completed {
		return Outcome{}, sectionErr(roll.Section, ErrAlreadyCompleted)
	}

	indices, err := selectIndices(cmd.Indices, len(roll.Dice))
	if err != nil {
		return Outcome{}, sectionErr(roll.Section, err)
	}
	if sectionRules[roll.Section].singleReveal && len(indices) != 1 {
		return Outcome{}, sectionErr(roll.Section, ErrSingleDieReveal)
	}

	revealed := make([]RevealedDie, 0, len(indices))
	for _, idx := range indices {
		roll.Revealed[idx] = true
		revealed = append(revealed, RevealedDie{Color: roll.Dice[idx], Value: roll.Outcomes[idx]})
	}
	// Any reveal ends the roll, even a partial one.
	roll.Completed = true
	s.retire(roll)

	entry := s.appendFeed(FeedEntry{
		Type:       EntryRollRevealed,
		PlayerName: name,
		Section:    roll.Section,
		Revealed:   revealed,
	})

	return Outcome{
		Ack:     &RevealAck{RollID: roll.ID, Section: roll.Section, Indices: indices},
		Entries: []FeedEntry{entry},
	}, nil
}

// selectIndices de-duplicates raw, keeping first-seen order, and rejects an
// empty selection or any index outside [0, n).
func selectIndices(raw []int, n int) ([]int, error) {
	seen := make(map[int]bool, len(raw))
	out := make([]int, 0, len(raw))
	for _, idx := range raw {
		if idx < 0 || idx >= n {
			return nil, ErrInvalidSelection
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	if len(out) == 0 {
		return nil, ErrInvalidSelection
	}
	return out, nil
}

// retire clears the pending slot for a completed roll and evicts the oldest
// completed rolls past the retention bound, keeping only their owner and
// section.
func (s *State) retire(roll *Roll) {
	key := pendingKey{connID: roll.OwnerID, section: roll.Section}
	if s.pending[key] == roll.ID {
		delete(s.pending, key)
	}

	s.completed = append(s.completed, roll.ID)
	for len(s.completed) > s.Rules.RollRetention {
		id := s.completed[0]
		if old, ok := s.Rolls[id]; ok {
			s.evicted[id] = retired{ownerID: old.OwnerID, section: old.Section}
		}
		delete(s.Rolls, id)
		s.completed = s.completed[1:]
	}
}

func (s *State) appendFeed(e FeedEntry) FeedEntry {
	e.ID = newID()
	e.At = now()

	s.Feed = append(s.Feed, e)
	if over := len(s.Feed) - s.Rules.FeedLimit; over > 0 {
		s.Feed = s.Feed[over:]
	}
	return e
}
