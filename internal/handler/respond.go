package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
)

// Embed colors.
const (
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorGold   = 0xf1c40f
	colorBlue   = 0x3498db
	colorPurple = 0x9b59b6
	colorGrey   = 0x607d8b
)

var printer = message.NewPrinter(language.English)

// base carries what every handler group needs to render and authorize.
type base struct {
	cfg *config.Config
}

// points renders an amount with thousands separators and the currency name.
func (b base) points(n int64) string {
	return printer.Sprintf("%d %s", n, b.cfg.Economy.PointName)
}

func (b base) isMod(m *discordgo.Member) bool {
	return m != nil && b.cfg.Discord.IsModerator(m.Roles)
}

// requireChannel rejects the interaction unless it happened in want. An unset
// channel allows every channel.
func requireChannel(i *discordgo.InteractionCreate, want string) error {
	if want == "" || i.ChannelID == want {
		return nil
	}
	return fmt.Errorf("%w, use <#%s>", ErrWrongChannel, want)
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return respond(s, i, &discordgo.InteractionResponseData{Content: content})
}

func replyEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return respond(s, i, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

func replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components ...discordgo.MessageComponent) error {
	return respond(s, i, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	})
}

// deferResponse acknowledges a slow interaction. The answer follows with editResponse.
func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string, embeds ...*discordgo.MessageEmbed) error {
	edit := &discordgo.WebhookEdit{Content: &content}
	if len(embeds) > 0 {
		edit.Embeds = &embeds
	}
	_, err := s.InteractionResponseEdit(i.Interaction, edit)
	return err
}

// updateMessage replaces the message a button was clicked on.
func updateMessage(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
}

// textInput is one field of a modal.
type textInput struct {
	id          string
	label       string
	placeholder string
	paragraph   bool
	maxLen      int
	value       string
}

func showModal(s *discordgo.Session, i *discordgo.InteractionCreate, customID, title string, inputs ...textInput) error {
	rows := make([]discordgo.MessageComponent, 0, len(inputs))
	for _, in := range inputs {
		style := discordgo.TextInputShort
		if in.paragraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.id,
				Label:       in.label,
				Placeholder: in.placeholder,
				Style:       style,
				Required:    true,
				MaxLength:   in.maxLen,
				Value:       in.value,
			},
		}})
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   customID,
			Title:      title,
			Components: rows,
		},
	})
}

// ReportError tells the user why their interaction failed. It falls back to
// a followup when the interaction was already acknowledged.
func ReportError(s *discordgo.Session, i *discordgo.InteractionCreate, err error) {
	msg, _ := Describe(err)
	if rerr := replyEphemeral(s, i, msg); rerr == nil {
		return
	}
	if _, ferr := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: msg,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); ferr != nil {
		log.Warn().Err(ferr).Msg("Failed to report interaction error")
	}
}

// modalValues collects text input values by custom id.
func modalValues(i *discordgo.InteractionCreate) map[string]string {
	values := make(map[string]string)
	for _, row := range i.ModalSubmitData().Components {
		r, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range r.Components {
			if in, ok := c.(*discordgo.TextInput); ok {
				values[in.CustomID] = strings.TrimSpace(in.Value)
			}
		}
	}
	return values
}

// options gives named access to slash command options. Options of a single
// subcommand are flattened and the subcommand name is kept in sub.
type options struct {
	sub  string
	opts map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func commandOptions(i *discordgo.InteractionCreate) options {
	o := options{opts: make(map[string]*discordgo.ApplicationCommandInteractionDataOption)}
	list := i.ApplicationCommandData().Options
	if len(list) == 1 && list[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		o.sub = list[0].Name
		list = list[0].Options
	}
	for _, opt := range list {
		o.opts[opt.Name] = opt
	}
	return o
}

func (o options) Int(name string, fallback int64) int64 {
	if opt, ok := o.opts[name]; ok {
		return opt.IntValue()
	}
	return fallback
}

func (o options) String(name string) string {
	if opt, ok := o.opts[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

// UserID returns the selected user's id and its resolved member, if any.
func (o options) UserID(i *discordgo.InteractionCreate, name string) (int64, *discordgo.User, *discordgo.Member) {
	opt, ok := o.opts[name]
	if !ok {
		return 0, nil, nil
	}
	raw, _ := opt.Value.(string)
	id, err := parseID(raw)
	if err != nil {
		return 0, nil, nil
	}
	data := i.ApplicationCommandData()
	if data.Resolved == nil {
		return id, nil, nil
	}
	user := data.Resolved.Users[raw]
	member := data.Resolved.Members[raw]
	if member != nil && member.User == nil {
		member.User = user
	}
	return id, user, member
}

// invoker returns the user behind an interaction in a guild or a DM.
func invoker(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func invokerID(i *discordgo.InteractionCreate) int64 {
	u := invoker(i)
	if u == nil {
		return 0
	}
	id, _ := parseID(u.ID)
	return id
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func snowflake(id int64) string {
	return strconv.FormatInt(id, 10)
}

func mention(id int64) string {
	return "<@" + snowflake(id) + ">"
}

// customIDParts splits "prefix_a_b" into [a b].
func customIDParts(customID, prefix string) []string {
	rest := strings.TrimPrefix(customID, prefix)
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "_")
}

func button(label, emoji, customID string, style discordgo.ButtonStyle) discordgo.Button {
	b := discordgo.Button{Label: label, Style: style, CustomID: customID}
	if emoji != "" {
		b.Emoji = &discordgo.ComponentEmoji{Name: emoji}
	}
	return b
}

// disabled returns rows with every button disabled. Rows read back from a
// received message are pointers, rows built locally are values.
func disabled(rows []discordgo.MessageComponent) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		var r discordgo.ActionsRow
		switch v := row.(type) {
		case discordgo.ActionsRow:
			r = v
		case *discordgo.ActionsRow:
			r = *v
		default:
			continue
		}
		buttons := make([]discordgo.MessageComponent, 0, len(r.Components))
		for _, c := range r.Components {
			switch b := c.(type) {
			case discordgo.Button:
				b.Disabled = true
				c = b
			case *discordgo.Button:
				cp := *b
				cp.Disabled = true
				c = cp
			}
			buttons = append(buttons, c)
		}
		out = append(out, discordgo.ActionsRow{Components: buttons})
	}
	return out
}
