package audit

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/darkmoon-dice/internal/engine"
)

// RollAudit is one roll lifecycle event as stored in postgres.
type RollAudit struct {
	ID         uint      `gorm:"primaryKey"`
	EntryID    string    `gorm:"type:VARCHAR(36);not null;uniqueIndex"`
	RoomCode   string    `gorm:"type:VARCHAR(32);not null;index"`
	EntryType  string    `gorm:"type:VARCHAR(32);not null;index"`
	PlayerName string    `gorm:"type:TEXT;not null"`
	Section    string    `gorm:"type:VARCHAR(16);not null"`
	Action     string    `gorm:"type:VARCHAR(64)"`
	DiceCount  int       `gorm:"not null;default:0"`
	Revealed   []byte    `gorm:"type:JSONB"`
	OccurredAt time.Time `gorm:"type:TIMESTAMP with time zone;not null;index"`
	CreatedAt  time.Time `gorm:"type:TIMESTAMP with time zone;not null"`
}

func (RollAudit) TableName() string { return "roll_audit" }

type revealedDie struct {
	Color string `json:"color"`
	Value int    `json:"value"`
}

func audited(t engine.EntryType) bool {
	return t == engine.EntryRollLocked || t == engine.EntryRollRevealed
}

func newRecord(roomCode string, e engine.FeedEntry) (RollAudit, error) {
	rec := RollAudit{
		EntryID:    e.ID,
		RoomCode:   roomCode,
		EntryType:  string(e.Type),
		PlayerName: e.PlayerName,
		Section:    string(e.Section),
		Action:     e.Action,
		DiceCount:  e.DiceCount,
		OccurredAt: e.At,
	}
	if len(e.Revealed) > 0 {
		dice := make([]revealedDie, len(e.Revealed))
		for i, d := range e.Revealed {
			dice[i] = revealedDie{Color: string(d.Color), Value: d.Value}
		}
		raw, err := json.Marshal(dice)
		if err != nil {
			return RollAudit{}, err
		}
		rec.Revealed = raw
	}
	return rec, nil
}
