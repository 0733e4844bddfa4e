package types

type RevealedDie struct {
	Color string `json:"color"`
	Value int    `json:"value"`
}

// FeedEntry never carries unrevealed dice. Section, Action, DiceCount and
// Revealed are only present for the entry types that use them.
type FeedEntry struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	PlayerName string        `json:"playerName"`
	TS         int64         `json:"ts"`
	Section    string        `json:"section,omitempty"`
	Action     string        `json:"action,omitempty"`
	DiceCount  int           `json:"diceCount,omitempty"`
	Revealed   []RevealedDie `json:"revealed,omitempty"`
}
