package handler

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/game/escalator"
	"telegram-casino-bot/internal/ledger"
	"telegram-casino-bot/internal/registry"
)

// GenericFailure is shown for anything that is not the user's fault.
const GenericFailure = "❌ Something went wrong, please try again later."

// describe maps an error to the text shown to the user. Unexpected errors
// are logged and hidden behind GenericFailure.
func (d *Dispatcher) describe(err error, ev Event) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "💸 You don't have enough chips for that bet."
	case errors.Is(err, registry.ErrChatBusy):
		return "⏳ A game is already running in this chat. Wait for it to finish."
	case errors.Is(err, game.ErrBetOutOfRange):
		return fmt.Sprintf("The bet must be between %d and %d chips.", d.deps.Rules.MinBet, d.deps.Rules.MaxBet)
	case errors.Is(err, game.ErrGameNotFound):
		return "This game is over."
	case errors.Is(err, game.ErrWrongState):
		return "That's not possible right now."
	case errors.Is(err, game.ErrNotParticipant):
		return "You're not playing in this game."
	case errors.Is(err, game.ErrNotInitiator):
		return "Only the player who started the game can do that."
	case errors.Is(err, game.ErrOwnGame):
		return "You can't join your own game."
	case errors.Is(err, game.ErrAlreadyChosen):
		return "You already made your choice."
	case errors.Is(err, game.ErrNothingToCashOut):
		return "Roll at least once before cashing out."
	case errors.Is(err, game.ErrInvalidChoice):
		return "That's not a valid choice."
	case errors.Is(err, game.ErrRollUnavailable), errors.Is(err, escalator.ErrInvalidRoll):
		return "🎲 The dice service is unavailable, try again shortly."
	}

	log.Error().Err(err).
		Int64("user_id", ev.SenderID).
		Int64("chat_id", ev.ChatID).
		Msg("Request failed")
	return GenericFailure
}
