package lobby

import (
	"errors"

	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
	"github.com/DoyleJ11/darkmoon-dice/pkg/types"
)

// UserMessage turns an engine rejection into the text shown to the player.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotJoined):
		return "Join a room first."
	case errors.Is(err, engine.ErrRollInProgress):
		return "Finish revealing your current roll first."
	case errors.Is(err, engine.ErrRollNotFound):
		return "Roll not found."
	case errors.Is(err, engine.ErrNotOwner):
		return "Only the roller can reveal."
	case errors.Is(err, engine.ErrAlreadyCompleted):
		return "This roll is already completed."
	case errors.Is(err, engine.ErrSingleDieReveal):
		return "Select exactly one die to reveal."
	case errors.Is(err, engine.ErrInvalidSelection):
		return "Select valid dice to reveal."
	case errors.Is(err, engine.ErrInvalidDiceCounts):
		return "Dice counts must be 0 or higher."
	case errors.Is(err, engine.ErrInvalidAction):
		return "Select a valid action."
	case errors.Is(err, engine.ErrActionDiceRange):
		return "Action rolls must use 1 to 3 dice total."
	case errors.Is(err, engine.ErrCorpDiceCount):
		return "Corp rolls must be 2 or 3 yellow dice."
	case errors.Is(err, engine.ErrTaskDiceRange):
		return "Task rolls must use 1 to 6 dice total."
	case errors.Is(err, engine.ErrUnknownSection):
		return "Unknown roll section."
	case errors.Is(err, engine.ErrMissingIdentity):
		return "Room code and player name are required."
	default:
		return "Request rejected."
	}
}

func rejectionKind(err error) string {
	switch {
	case engine.IsPrecondition(err):
		return "precondition"
	case engine.IsValidation(err):
		return "validation"
	default:
		return "other"
	}
}

func errorReply(msgType string, err error) types.ServerMessage {
	return types.ServerMessage{Type: msgType, Data: types.SectionError{
		Message: UserMessage(err),
		Section: string(engine.SectionOf(err)),
	}}
}

func wireEntry(e engine.FeedEntry) types.FeedEntry {
	out := types.FeedEntry{
		ID:         e.ID,
		Type:       string(e.Type),
		PlayerName: e.PlayerName,
		TS:         e.At.UnixMilli(),
		Section:    string(e.Section),
		Action:     e.Action,
		DiceCount:  e.DiceCount,
	}
	if len(e.Revealed) > 0 {
		out.Revealed = make([]types.RevealedDie, len(e.Revealed))
		for i, d := range e.Revealed {
			out.Revealed[i] = types.RevealedDie{Color: string(d.Color), Value: d.Value}
		}
	}
	return out
}

func wireFeed(entries []engine.FeedEntry) []types.FeedEntry {
	out := make([]types.FeedEntry, len(entries))
	for i, e := range entries {
		out[i] = wireEntry(e)
	}
	return out
}

func rollResult(r *engine.Roll) types.RollResult {
	list := make([]string, len(r.Dice))
	for i, c := range r.Dice {
		list[i] = string(c)
	}
	return types.RollResult{
		RollID:     r.ID,
		Section:    string(r.Section),
		ActionType: r.ActionType,
		DiceList:   list,
		Outcomes:   append([]int(nil), r.Outcomes...),
	}
}
