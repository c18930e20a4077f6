// Package handler provides Discord slash command, component and event handlers.
package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/effect"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/attack"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/guildwar"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/lottery"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/prediction"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/trap"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/lock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// HandlerFunc handles one interaction. A returned error is reported back to
// the invoking user.
type HandlerFunc func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error

// Command is a slash command definition and its handler.
type Command struct {
	Def       *discordgo.ApplicationCommand
	Handle    HandlerFunc
	Moderator bool
}

// Component routes buttons and modal submits whose custom id starts with Prefix.
type Component struct {
	Prefix string
	Handle HandlerFunc
}

// Module is implemented by every handler group.
type Module interface {
	Commands() []Command
	Components() []Component
}

// modPermission hides moderator commands from regular members in the client.
var modPermission int64 = discordgo.PermissionModerateMembers

// genericError is shown for anything that is not a known user-facing error.
const genericError = "❌ Something went wrong, please try again later."

// userErrors are safe to show as-is.
var userErrors = []error{
	service.ErrInsufficientBalance,
	service.ErrInvalidAmount,
	service.ErrSelfTransfer,
	service.ErrUserNotFound,
	service.ErrStashFull,
	service.ErrStashEmpty,
	service.ErrRoleNotForSale,
	service.ErrAlreadyHasRole,
	service.ErrLacksRole,
	service.ErrTargetIsModerator,
	service.ErrInvalidPrice,
	service.ErrNotRicher,
	service.ErrNothingToSpend,
	service.ErrModerator,
	service.ErrTargetIsBot,
	service.ErrAlreadyClaimed,
	service.ErrAirdropEnded,
	service.ErrInvalidAirdrop,
	service.ErrEmptyTaxPool,
	service.ErrNoRecipients,
	service.ErrAirdropTooSmall,
	repository.ErrUserNotFound,
	repository.ErrInsufficientPoints,
	lock.ErrBusy,

	attack.ErrSelfTarget,
	attack.ErrInvalidStake,
	attack.ErrInsufficientFunds,
	attack.ErrTargetTooPoor,
	attack.ErrTargetLossCap,
	attack.ErrGainCap,
	attack.ErrProtectedTarget,
	attack.ErrCeasefire,
	attack.ErrInvalidTimes,
	attack.ErrInvalidDuration,
	attack.ErrEffectActive,

	trap.ErrInvalidTrigger,
	trap.ErrInvalidCost,
	trap.ErrInsufficientFunds,
	trap.ErrNoTrap,
	trap.ErrOwnTrap,

	lottery.ErrInvalidNumber,
	lottery.ErrNoNumbers,
	lottery.ErrTicketLimit,
	lottery.ErrInsufficientFunds,
	lottery.ErrNoEntries,
	lottery.ErrInvalidAmount,

	prediction.ErrNotFound,
	prediction.ErrInvalidTitle,
	prediction.ErrInvalidChoices,
	prediction.ErrInvalidDuration,
	prediction.ErrTooManyOpen,
	prediction.ErrInsufficientFunds,
	prediction.ErrNotBetting,
	prediction.ErrBettingClosed,
	prediction.ErrOwnPrediction,
	prediction.ErrInvalidChoice,
	prediction.ErrInvalidAmount,
	prediction.ErrForbidden,
	prediction.ErrInvalidState,

	guildwar.ErrNotFound,
	guildwar.ErrInvalidName,
	guildwar.ErrInvalidEntry,
	guildwar.ErrInvalidTeam,
	guildwar.ErrNotRecruiting,
	guildwar.ErrAlreadyOnTeam,
	guildwar.ErrNotMember,
	guildwar.ErrInsufficientFunds,
	guildwar.ErrForbidden,
	guildwar.ErrEmptyTeam,
	guildwar.ErrInvalidState,

	ErrNotModerator,
	ErrWrongChannel,
	ErrInvalidInput,
}

// Handler level errors.
var (
	ErrNotModerator = errors.New("you need the moderator role to do this")
	ErrWrongChannel = errors.New("this command cannot be used in this channel")
	ErrInvalidInput = errors.New("invalid input")
)

// Describe turns err into the message shown to the user and reports whether
// err was an expected rejection rather than a failure.
func Describe(err error) (string, bool) {
	var cd *effect.CooldownError
	if errors.As(err, &cd) {
		return "⏰ " + capitalize(cd.Error()), true
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "❌ " + capitalize(ve.Error()), true
	}
	for _, known := range userErrors {
		if !errors.Is(err, known) {
			continue
		}
		// Keep detail appended after the sentinel, drop wrapping prefixes.
		msg := known.Error()
		if strings.HasPrefix(err.Error(), msg) {
			msg = err.Error()
		}
		return "❌ " + capitalize(msg), true
	}
	return genericError, false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
