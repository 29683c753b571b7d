// Package model defines the data models for the casino bot.
package model

import "time"

// Account is a player's credit account.
type Account struct {
	UserID       int64     `db:"user_id"`
	DisplayName  string    `db:"display_name"`
	Balance      int64     `db:"balance"`
	LastPlayedAt time.Time `db:"last_played_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// ChatStats holds a player's aggregate results inside a single chat.
type ChatStats struct {
	UserID       int64 `db:"user_id"`
	ChatID       int64 `db:"chat_id"`
	GamesPlayed  int64 `db:"games_played"`
	TotalWagered int64 `db:"total_wagered"`
	Net          int64 `db:"net"`
}

// TxKind tags every balance adjustment.
type TxKind string

// Transaction kinds accepted by the ledger.
const (
	TxBet     TxKind = "bet"
	TxWin     TxKind = "win"
	TxRefund  TxKind = "refund"
	TxCashout TxKind = "cashout"

	// TxInitial is journal-only and marks the starting balance grant.
	TxInitial TxKind = "initial"
)

// Valid reports whether k may be passed to a balance adjustment.
func (k TxKind) Valid() bool {
	switch k {
	case TxBet, TxWin, TxRefund, TxCashout:
		return true
	}
	return false
}

// StatsDelta returns the per-chat stat increments produced by an adjustment.
func StatsDelta(kind TxKind, delta int64) (games, wagered, net int64) {
	switch kind {
	case TxBet:
		return 1, -delta, delta
	case TxRefund:
		return 0, -delta, delta
	case TxWin, TxCashout:
		return 0, 0, delta
	}
	return 0, 0, 0
}

// Transaction is a journal entry for a successful adjustment.
type Transaction struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ChatID    int64     `db:"chat_id" json:"chat_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Kind      TxKind    `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GameType identifies which state machine owns a session.
type GameType string

const (
	GameCoinflip  GameType = "coinflip"
	GameRPS       GameType = "rps"
	GameEscalator GameType = "dice_escalator"
)

// Label returns a human readable name.
func (t GameType) Label() string {
	switch t {
	case GameCoinflip:
		return "Coinflip"
	case GameRPS:
		return "Rock-Paper-Scissors"
	case GameEscalator:
		return "Dice Escalator"
	}
	return string(t)
}

// ActiveGame is the reference a group session keeps to its running game.
type ActiveGame struct {
	GameID string   `json:"game_id"`
	Type   GameType `json:"type"`
	Bet    int64    `json:"bet"`
}

// GroupSession tracks per-chat state.
type GroupSession struct {
	ChatID       int64       `json:"chat_id"`
	Title        string      `json:"title"`
	Active       *ActiveGame `json:"active,omitempty"`
	LastActivity time.Time   `json:"last_activity"`
}

// Clone returns a deep copy.
func (g *GroupSession) Clone() *GroupSession {
	c := *g
	if g.Active != nil {
		a := *g.Active
		c.Active = &a
	}
	return &c
}

// GameStatus is a state of one of the game state machines.
type GameStatus string

const (
	StatusWaitingOpponent GameStatus = "waiting_opponent"
	StatusPlaying         GameStatus = "playing"
	StatusWaitingChoices  GameStatus = "waiting_choices"
	StatusResolved        GameStatus = "resolved"

	StatusPromptAction   GameStatus = "player_turn_prompt_action"
	StatusWaitingForRoll GameStatus = "waiting_for_roll"
	StatusPlayerBust     GameStatus = "game_over_player_bust"
	StatusCashedOut      GameStatus = "player_cashed_out"
	StatusBotTurn        GameStatus = "bot_turn_resolving"
	StatusGameOver       GameStatus = "game_over"
)

// Waiting reports whether the session is blocked on an outside actor.
func (s GameStatus) Waiting() bool {
	switch s {
	case StatusWaitingOpponent, StatusWaitingChoices, StatusWaitingForRoll:
		return true
	}
	return false
}

// Participant is a player seated in a game session.
type Participant struct {
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Side    string `json:"side,omitempty"`
	Choice  string `json:"choice,omitempty"`
	Charged bool   `json:"charged"`
}

// GameSession is one running game instance.
type GameSession struct {
	ID           string        `json:"id"`
	Type         GameType      `json:"type"`
	ChatID       int64         `json:"chat_id"`
	InitiatorID  int64         `json:"initiator_id"`
	Bet          int64         `json:"bet"`
	Participants []Participant `json:"participants"`
	Status       GameStatus    `json:"status"`
	Score        int64         `json:"score"`
	CreatedAt    time.Time     `json:"created_at"`
	MessageID    int           `json:"message_id"`
}

// Clone returns a deep copy.
func (s *GameSession) Clone() *GameSession {
	c := *s
	c.Participants = append([]Participant(nil), s.Participants...)
	return &c
}

// Participant returns the index of userID in the participant list, or -1.
func (s *GameSession) Participant(userID int64) int {
	for i, p := range s.Participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// Initiator returns the first participant.
func (s *GameSession) Initiator() Participant {
	if len(s.Participants) == 0 {
		return Participant{UserID: s.InitiatorID}
	}
	return s.Participants[0]
}

// RollStatus is the lifecycle state of a roll request row.
type RollStatus string

const (
	RollPending    RollStatus = "pending"
	RollProcessing RollStatus = "processing"
	RollCompleted  RollStatus = "completed"
	RollError      RollStatus = "error"
)

// RollRequest is the row shared with the external roll service.
type RollRequest struct {
	GameID      string     `db:"game_id"`
	ChatID      int64      `db:"chat_id"`
	UserID      int64      `db:"user_id"`
	Status      RollStatus `db:"status"`
	RollValue   *int       `db:"roll_value"`
	RequestedAt time.Time  `db:"requested_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}
