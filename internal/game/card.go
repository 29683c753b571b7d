package game

import "strings"

// Callback actions.
const (
	ActionJoin      = "join_game"
	ActionCancel    = "cancel_game"
	ActionRPSChoose = "rps_choose"
	ActionRoll      = "de_roll_prompt"
	ActionCashOut   = "de_cashout"
)

// Button is a labeled control carrying a callback payload.
type Button struct {
	Text string
	Data string
}

// Card is one rendering of a game's message.
type Card struct {
	ChatID    int64
	MessageID int
	Text      string
	Buttons   [][]Button
}

// Payload joins an action and its parameters as action:p1:p2.
func Payload(action string, params ...string) string {
	return strings.Join(append([]string{action}, params...), ":")
}

// ParsePayload splits a callback payload into action and parameters.
func ParsePayload(data string) (string, []string) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	return parts[0], parts[1:]
}

// LobbyButtons are the join/cancel controls of a game waiting for a player.
func LobbyButtons(gameID string) [][]Button {
	return [][]Button{{
		{Text: "✅ Join", Data: Payload(ActionJoin, gameID)},
		{Text: "❌ Cancel", Data: Payload(ActionCancel, gameID)},
	}}
}
