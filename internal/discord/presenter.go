package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/conorfennell/ankibot/internal/domain"
	"github.com/conorfennell/ankibot/internal/review"
)

const (
	questionColor = 0x5865F2
	answerColor   = 0x57F287
)

var ratingStyles = map[domain.Rating]discordgo.ButtonStyle{
	domain.Again: discordgo.DangerButton,
	domain.Hard:  discordgo.SecondaryButton,
	domain.Good:  discordgo.SuccessButton,
	domain.Easy:  discordgo.PrimaryButton,
}

// Messenger is the part of *discordgo.Session the bot talks through.
type Messenger interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// presenter renders one session into a DM channel. Only the most recent
// card message carries live buttons.
type presenter struct {
	m         Messenger
	channelID string

	mu       sync.Mutex
	lastID   string
	lastRows []discordgo.MessageComponent
}

func newPresenter(m Messenger, channelID string) *presenter {
	return &presenter{m: m, channelID: channelID}
}

func (p *presenter) Notify(ctx context.Context, n review.Notice) error {
	_, err := p.m.ChannelMessageSend(p.channelID, n.Text, discordgo.WithContext(ctx))
	return err
}

func (p *presenter) ShowQuestion(ctx context.Context, v review.QuestionView) error {
	rows := []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Show answer", Style: discordgo.PrimaryButton, CustomID: flipID(v.SessionID)},
		}},
	}
	return p.send(ctx, questionEmbed(v), rows)
}

func (p *presenter) ShowAnswer(ctx context.Context, v review.AnswerView) error {
	if err := p.DisableControls(ctx); err != nil {
		return err
	}
	buttons := make([]discordgo.MessageComponent, 0, len(v.Ratings))
	for _, r := range v.Ratings {
		buttons = append(buttons, discordgo.Button{
			Label:    r.String(),
			Style:    ratingStyles[r],
			CustomID: rateID(r, v.SessionID),
		})
	}
	rows := []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
	return p.send(ctx, answerEmbed(v), rows)
}

func (p *presenter) send(ctx context.Context, embed *discordgo.MessageEmbed, rows []discordgo.MessageComponent) error {
	msg, err := p.m.ChannelMessageSendComplex(p.channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: rows,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send card: %w", err)
	}
	p.mu.Lock()
	p.lastID, p.lastRows = msg.ID, rows
	p.mu.Unlock()
	return nil
}

// DisableControls greys out the buttons of the last card message.
func (p *presenter) DisableControls(ctx context.Context) error {
	p.mu.Lock()
	id, rows := p.lastID, p.lastRows
	p.lastID, p.lastRows = "", nil
	p.mu.Unlock()
	if id == "" {
		return nil
	}

	disabled := disableRows(rows)
	_, err := p.m.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         id,
		Channel:    p.channelID,
		Components: &disabled,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to disable buttons: %w", err)
	}
	return nil
}

func disableRows(rows []discordgo.MessageComponent) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, c := range rows {
		row, ok := c.(discordgo.ActionsRow)
		if !ok {
			out = append(out, c)
			continue
		}
		buttons := make([]discordgo.MessageComponent, 0, len(row.Components))
		for _, bc := range row.Components {
			if b, ok := bc.(discordgo.Button); ok {
				b.Disabled = true
				bc = b
			}
			buttons = append(buttons, bc)
		}
		out = append(out, discordgo.ActionsRow{Components: buttons})
	}
	return out
}

func questionEmbed(v review.QuestionView) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Card %d/%d", v.Position, v.Total),
		Description: "# " + v.Term,
		Color:       questionColor,
	}
	addField(e, "Reading", v.Reading, true)
	addField(e, "Kana", v.Kana, true)
	addField(e, "Part of speech", v.PartOfSpeech, true)
	addField(e, "Example", v.Example, false)
	if len(v.Images) > 0 {
		addField(e, "Media", strings.Join(v.Images, ", "), false)
	}
	return e
}

func answerEmbed(v review.AnswerView) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Answer %d/%d", v.Position, v.Total),
		Description: v.Meaning,
		Color:       answerColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: "How well did you remember it?"},
	}
	addField(e, "Translation", v.Translation, false)
	addField(e, "Part of speech", v.PartOfSpeech, true)
	return e
}

// addField skips empty values; Discord rejects embed fields without a value.
func addField(e *discordgo.MessageEmbed, name, value string, inline bool) {
	if value == "" {
		return
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline})
}
