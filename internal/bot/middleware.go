// Package bot connects the Discord gateway to the handler modules.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/handler"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
)

// Middleware wraps a handler.
type Middleware func(next handler.HandlerFunc) handler.HandlerFunc

// Reporter tells the user an interaction failed.
type Reporter func(s *discordgo.Session, i *discordgo.InteractionCreate, err error)

// Chain applies mw so that mw[0] is the outermost wrapper.
func Chain(h handler.HandlerFunc, mw ...Middleware) handler.HandlerFunc {
	for n := len(mw) - 1; n >= 0; n-- {
		h = mw[n](h)
	}
	return h
}

// Errors hands any error returned below it to report and swallows it.
func Errors(report Reporter) Middleware {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
			if err := next(ctx, s, i); err != nil {
				report(s, i, err)
			}
			return nil
		}
	}
}

// Recovery turns a panic into an error.
func Recovery() Middleware {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) (err error) {
			defer func() {
				if r := recover(); r != nil {
					zerolog.Ctx(ctx).Error().
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("Recovered from panic in handler")
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, s, i)
		}
	}
}

// GuildOnly ignores interactions from anywhere but guildID. An empty guildID
// allows every guild but still drops DMs.
func GuildOnly(guildID string) Middleware {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
			if i.GuildID == "" || (guildID != "" && i.GuildID != guildID) {
				log.Debug().
					Str("guild_id", i.GuildID).
					Msg("Ignoring interaction from outside the configured guild")
				return nil
			}
			return next(ctx, s, i)
		}
	}
}

// Logging puts a request scoped logger into ctx and logs the outcome.
func Logging(name string) Middleware {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
			lc := log.With().
				Str("request_id", uuid.NewString()).
				Str("command", name).
				Str("guild_id", i.GuildID).
				Str("channel_id", i.ChannelID)
			if u := interactionUser(i); u != nil {
				lc = lc.Str("user_id", u.ID).Str("username", u.Username)
			}
			logger := lc.Logger()
			ctx = logger.WithContext(ctx)

			start := time.Now()
			err := next(ctx, s, i)
			elapsed := time.Since(start)

			switch _, expected := handler.Describe(err); {
			case err == nil:
				logger.Debug().Dur("elapsed", elapsed).Msg("Interaction handled")
			case expected:
				logger.Debug().Err(err).Dur("elapsed", elapsed).Msg("Interaction rejected")
			default:
				logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Interaction failed")
			}
			return err
		}
	}
}

// Metrics counts interactions and records their latency.
func Metrics(name string) Middleware {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
			metrics.Command(name)
			start := time.Now()
			err := next(ctx, s, i)
			failed := false
			if err != nil {
				_, expected := handler.Describe(err)
				failed = !expected
			}
			metrics.ObserveCommand(name, time.Since(start), failed)
			return err
		}
	}
}

// RequireModerator rejects members without the moderator role.
func RequireModerator(cfg *config.DiscordConfig) Middleware {
	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
			if i.Member == nil || !cfg.IsModerator(i.Member.Roles) {
				zerolog.Ctx(ctx).Warn().Msg("Non-moderator attempted moderator command")
				return handler.ErrNotModerator
			}
			return next(ctx, s, i)
		}
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
