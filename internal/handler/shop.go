package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/model"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

// ShopHandler handles the temporary role shop.
type ShopHandler struct {
	base
	shop *service.ShopService
}

// NewShopHandler creates a new ShopHandler.
func NewShopHandler(cfg *config.Config, shop *service.ShopService) *ShopHandler {
	return &ShopHandler{base: base{cfg: cfg}, shop: shop}
}

func roleOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionRole,
		Name:        "role",
		Description: desc,
		Required:    true,
	}
}

func priceOption() *discordgo.ApplicationCommandOption {
	minPrice := 1.0
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "price",
		Description: "Price in points",
		Required:    true,
		MinValue:    &minPrice,
	}
}

// Commands implements Module.
func (h *ShopHandler) Commands() []Command {
	return []Command{
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "shop",
				Description: "List the roles for sale",
			},
			Handle: h.HandleList,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "buyrole",
				Description: "Buy a temporary role for yourself or someone else",
				Options: []*discordgo.ApplicationCommandOption{
					roleOption("Role to buy"),
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "Gift the role to this member",
					},
				},
			},
			Handle: h.HandleBuy,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:        "removerole",
				Description: fmt.Sprintf("Strip a shop role from someone (%d points)", service.RemoveRoleCost),
				Options: []*discordgo.ApplicationCommandOption{
					targetOption("Who loses the role"),
					roleOption("Role to remove"),
				},
			},
			Handle: h.HandleRemove,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:                     "shopadd",
				Description:              "Put a role on sale",
				DefaultMemberPermissions: &modPermission,
				Options:                  []*discordgo.ApplicationCommandOption{roleOption("Role to sell"), priceOption()},
			},
			Handle:    h.HandleAdd,
			Moderator: true,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:                     "shopremove",
				Description:              "Take a role off sale",
				DefaultMemberPermissions: &modPermission,
				Options:                  []*discordgo.ApplicationCommandOption{roleOption("Role to take off sale")},
			},
			Handle:    h.HandleRemoveFromShop,
			Moderator: true,
		},
		{
			Def: &discordgo.ApplicationCommand{
				Name:                     "shopprice",
				Description:              "Change the price of a role on sale",
				DefaultMemberPermissions: &modPermission,
				Options:                  []*discordgo.ApplicationCommandOption{roleOption("Role to reprice"), priceOption()},
			},
			Handle:    h.HandleSetPrice,
			Moderator: true,
		},
	}
}

// Components implements Module.
func (h *ShopHandler) Components() []Component { return nil }

func roleOptionID(o options) string {
	if opt, ok := o.opts["role"]; ok {
		id, _ := opt.Value.(string)
		return id
	}
	return ""
}

// HandleList handles /shop.
func (h *ShopHandler) HandleList(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	roles, err := h.shop.List(ctx)
	if err != nil {
		return err
	}
	if len(roles) == 0 {
		return replyEphemeral(s, i, "🛒 The shop is empty.")
	}

	var sb strings.Builder
	for _, r := range roles {
		fmt.Fprintf(&sb, "<@&%s> - %s\n", r.RoleID, h.points(r.Price))
	}
	fmt.Fprintf(&sb, "\nRoles last %d minutes. Use /buyrole to buy one.", int(h.shop.Duration().Minutes()))

	var grants []model.TempRole
	if grants, err = h.shop.Grants(ctx, invokerID(i)); err == nil && len(grants) > 0 {
		sb.WriteString("\n\n**Your roles**\n")
		for _, g := range grants {
			fmt.Fprintf(&sb, "<@&%s> expires %s\n", g.RoleID, relative(g.ExpiresAt))
		}
	}

	return respond(s, i, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🛒 Role shop",
			Description: sb.String(),
			Color:       colorGold,
		}},
		Flags: discordgo.MessageFlagsEphemeral,
	})
}

// HandleBuy handles /buyrole.
func (h *ShopHandler) HandleBuy(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	roleID := roleOptionID(opts)
	buyerID := invokerID(i)

	targetID, user, member := opts.UserID(i, "user")
	if targetID == 0 {
		targetID, member = buyerID, i.Member
	} else if user != nil && user.Bot {
		return service.ErrTargetIsBot
	}

	p, err := h.shop.Buy(ctx, service.BuyRequest{
		BuyerID:       buyerID,
		TargetID:      targetID,
		RoleID:        roleID,
		TargetIsMod:   h.isMod(member),
		TargetHasRole: member != nil && config.HasRole(member.Roles, roleID),
		Now:           time.Now(),
	})
	if err != nil {
		return err
	}

	// the grant is recorded, the expiry sweep cleans up if the add never lands
	if err := s.GuildMemberRoleAdd(i.GuildID, snowflake(targetID), roleID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("target_id", targetID).Str("role_id", roleID).Msg("Failed to add purchased role")
	}

	who := "yourself"
	if targetID != buyerID {
		who = mention(targetID)
	}
	return reply(s, i, fmt.Sprintf("🎉 %s bought <@&%s> for %s for %s, expiring %s. Balance: %s",
		mention(buyerID), roleID, who, h.points(p.Price), relative(p.ExpiresAt), h.points(p.Balance)))
}

// HandleRemove handles /removerole.
func (h *ShopHandler) HandleRemove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	roleID := roleOptionID(opts)
	targetID, _, member := opts.UserID(i, "user")
	buyerID := invokerID(i)

	balance, err := h.shop.RemoveRole(ctx, buyerID, targetID, roleID, member != nil && config.HasRole(member.Roles, roleID))
	if err != nil {
		return err
	}
	if err := s.GuildMemberRoleRemove(i.GuildID, snowflake(targetID), roleID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("target_id", targetID).Str("role_id", roleID).Msg("Failed to remove role")
	}
	return reply(s, i, fmt.Sprintf("✂️ %s removed <@&%s> from %s for %s. Balance: %s",
		mention(buyerID), roleID, mention(targetID), h.points(service.RemoveRoleCost), h.points(balance)))
}

// HandleAdd handles /shopadd. Current holders of the role get a grant so
// they lose it on the normal schedule.
func (h *ShopHandler) HandleAdd(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	roleID := roleOptionID(opts)
	price := opts.Int("price", 0)

	holders, err := roleHolders(s, i.GuildID, roleID)
	if err != nil {
		return err
	}
	if err := h.shop.AddToShop(ctx, roleID, price, holders, time.Now()); err != nil {
		return err
	}
	return reply(s, i, fmt.Sprintf("🛒 <@&%s> is now for sale at %s.", roleID, h.points(price)))
}

// HandleRemoveFromShop handles /shopremove.
func (h *ShopHandler) HandleRemoveFromShop(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	roleID := roleOptionID(commandOptions(i))
	if err := h.shop.RemoveFromShop(ctx, roleID); err != nil {
		return err
	}
	return reply(s, i, fmt.Sprintf("🛒 <@&%s> is no longer for sale.", roleID))
}

// HandleSetPrice handles /shopprice.
func (h *ShopHandler) HandleSetPrice(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := commandOptions(i)
	roleID := roleOptionID(opts)
	price := opts.Int("price", 0)
	if err := h.shop.SetPrice(ctx, roleID, price); err != nil {
		return err
	}
	return reply(s, i, fmt.Sprintf("🛒 <@&%s> now costs %s.", roleID, h.points(price)))
}

// roleHolders pages through the guild's members and returns those with roleID.
func roleHolders(s *discordgo.Session, guildID, roleID string) ([]int64, error) {
	var holders []int64
	after := ""
	for {
		members, err := s.GuildMembers(guildID, after, 1000)
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", err)
		}
		for _, m := range members {
			if config.HasRole(m.Roles, roleID) {
				if id, err := parseID(m.User.ID); err == nil {
					holders = append(holders, id)
				}
			}
		}
		if len(members) < 1000 {
			return holders, nil
		}
		after = members[len(members)-1].User.ID
	}
}

// RoleRevoker returns the revoke callback for the role expiry sweep. A member
// who already left or a role that no longer exists counts as revoked.
func RoleRevoker(s *discordgo.Session, guildID string) service.RevokeFunc {
	return func(_ context.Context, r model.TempRole) error {
		err := s.GuildMemberRoleRemove(guildID, snowflake(r.UserID), r.RoleID)
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	}
}
