// Package types is the websocket wire protocol. Every frame, in either
// direction, is a JSON envelope:
//
//	{"type": "roll_request", "data": {...}}
//
// Client -> Server
//
//	join_room       JoinRoom
//	roll_request    RollRequest
//	reveal_request  RevealRequest
//	reset_section   ResetSection (no direct reply)
//
// Server -> Client
//
//	room_joined       RoomJoined
//	join_error        JoinError
//	roll_result       RollResult (caller only)
//	roll_error        SectionError
//	roll_revealed_ack RevealAck
//	reveal_error      SectionError
//	feed_entry        FeedEntry (whole room)
//	error             Error (undecodable frame, unknown type, rate limited)
package types

import "encoding/json"

const (
	JoinRoomType      = "join_room"
	RollRequestType   = "roll_request"
	RevealRequestType = "reveal_request"
	ResetSectionType  = "reset_section"

	RoomJoinedType  = "room_joined"
	JoinErrorType   = "join_error"
	RollResultType  = "roll_result"
	RollErrorType   = "roll_error"
	RevealAckType   = "roll_revealed_ack"
	RevealErrorType = "reveal_error"
	FeedEntryType   = "feed_entry"
	ErrorType       = "error"
)

type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// JoinRoom fields may arrive as numbers or bools; the server stringifies them.
type JoinRoom struct {
	RoomCode   any `json:"roomCode"`
	PlayerName any `json:"playerName"`
}

// RollRequest keeps the numeric fields loosely typed so malformed values can
// be rejected as validation errors instead of failing the whole frame.
type RollRequest struct {
	Section    string         `json:"section"`
	ActionType string         `json:"actionType,omitempty"`
	DiceCounts map[string]any `json:"diceCounts,omitempty"`
	DiceCount  any            `json:"diceCount,omitempty"`
}

type RevealRequest struct {
	RollID  string `json:"rollId"`
	Indices any    `json:"indices"`
	Section string `json:"section,omitempty"`
}

type ResetSection struct {
	Section string `json:"section"`
}

type RoomJoined struct {
	RoomCode   string      `json:"roomCode"`
	PlayerName string      `json:"playerName"`
	Feed       []FeedEntry `json:"feed"`
}

type JoinError struct {
	Message string `json:"message"`
}

type RollResult struct {
	RollID     string   `json:"rollId"`
	Section    string   `json:"section"`
	ActionType string   `json:"actionType,omitempty"`
	DiceList   []string `json:"diceList"`
	Outcomes   []int    `json:"outcomes"`
}

type SectionError struct {
	Message string `json:"message"`
	Section string `json:"section,omitempty"`
}

type RevealAck struct {
	RollID          string `json:"rollId"`
	Section         string `json:"section"`
	RevealedIndices []int  `json:"revealedIndices"`
}

type Error struct {
	Message string `json:"message"`
}

func NewServerError(msg string) ServerMessage {
	return ServerMessage{Type: ErrorType, Data: Error{Message: msg}}
}
