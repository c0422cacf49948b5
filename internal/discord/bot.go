// Package discord runs review sessions over Discord direct messages.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/conorfennell/ankibot/internal/review"
	"go.uber.org/zap"
)

const (
	pongReply      = "Pong! Bot is online."
	busyReply      = "⏳ You already have a review running. Finish it first."
	startedReply   = "📬 Check your DMs, your review is starting."
	intruderReply  = "❌ You cannot interact with this review."
	staleReply     = "⌛ This button is no longer active."
	dmFailedReply  = "❌ I could not send you a direct message. Do you allow DMs from server members?"
	startFailReply = "❌ Could not start the review."
)

// Anki is the flashcard service a session runs against.
type Anki interface {
	review.Client
	review.GUIAnswerer
}

// Settings configures the bot and the sessions it starts.
type Settings struct {
	Prefix  string
	Deck    string
	Mode    string
	Timeout time.Duration
	Fields  review.FieldMap
}

// Bot answers chat commands and routes button presses to sessions.
type Bot struct {
	dg        *discordgo.Session
	m         Messenger
	anki      Anki
	settings  Settings
	observers []review.Observer
	sessions  *registry
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a bot for the given token. Call Open to connect.
func New(token string, anki Anki, settings Settings, logger *zap.Logger, observers ...review.Observer) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	b := newBot(dg, anki, settings, logger, observers...)
	b.dg = dg
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)
	dg.AddHandler(b.onInteractionCreate)
	return b, nil
}

func newBot(m Messenger, anki Anki, settings Settings, logger *zap.Logger, observers ...review.Observer) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Prefix == "" {
		settings.Prefix = "!"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		m:         m,
		anki:      anki,
		settings:  settings,
		observers: observers,
		sessions:  newRegistry(),
		logger:    logger.With(zap.String("component", "discord")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Open connects to the Discord gateway.
func (b *Bot) Open() error {
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	return nil
}

// Close cancels every running session, waits for them to say goodbye and
// disconnects.
func (b *Bot) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
	if b.dg != nil {
		return b.dg.Close()
	}
	return nil
}

// Active returns the number of users with a running session.
func (b *Bot) Active() int {
	return b.sessions.len()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("connected to discord", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	b.handleMessage(m.Message)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.handleInteraction(i.Interaction)
}

func (b *Bot) handleMessage(msg *discordgo.Message) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, b.settings.Prefix) {
		return
	}
	args := strings.Fields(strings.TrimPrefix(content, b.settings.Prefix))
	if len(args) == 0 {
		return
	}

	switch strings.ToLower(args[0]) {
	case "ping":
		b.reply(msg.ChannelID, pongReply)
	case "review":
		deck := b.settings.Deck
		if len(args) > 1 {
			deck = strings.Join(args[1:], " ")
		}
		b.startReview(msg, deck)
	}
}

func (b *Bot) startReview(msg *discordgo.Message, deck string) {
	owner := msg.Author.ID
	logger := b.logger.With(zap.String("owner", owner), zap.String("deck", deck))

	if !b.track() {
		logger.Info("refusing review during shutdown")
		return
	}
	started := false
	defer func() {
		if !started {
			b.wg.Done()
		}
	}()

	if !b.sessions.reserve(owner) {
		b.reply(msg.ChannelID, busyReply)
		return
	}

	ch, err := b.m.UserChannelCreate(owner)
	if err != nil {
		b.sessions.release(owner)
		logger.Warn("failed to open DM channel", zap.Error(err))
		b.reply(msg.ChannelID, dmFailedReply)
		return
	}
	source, err := review.NewSource(b.settings.Mode, b.anki, logger)
	if err != nil {
		b.sessions.release(owner)
		logger.Error("failed to create card source", zap.Error(err))
		b.reply(msg.ChannelID, startFailReply)
		return
	}

	c := review.NewController(review.Settings{
		Owner:   owner,
		Deck:    deck,
		Timeout: b.settings.Timeout,
		Fields:  b.settings.Fields,
	}, b.anki, source, newPresenter(b.m, ch.ID), b.logger, b.observers...)
	b.sessions.add(c.ID(), c.Gate())
	if msg.ChannelID != ch.ID {
		b.reply(msg.ChannelID, startedReply)
	}

	started = true
	go func() {
		defer b.wg.Done()
		defer b.sessions.release(owner)
		res := c.Run(b.ctx)
		logger.Info("review ended", zap.String("session_id", res.SessionID), zap.Stringer("state", res.State), zap.String("reason", res.Reason))
	}()
}

// track registers a session goroutine with Close. It reports false once
// Close has started.
func (b *Bot) track() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.wg.Add(1)
	return true
}

func (b *Bot) handleInteraction(i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	sessionID, action, err := parseCustomID(i.MessageComponentData().CustomID)
	if err != nil {
		b.logger.Debug("ignoring unknown button", zap.Error(err))
		return
	}
	action.Actor = interactionUser(i)

	gate := b.sessions.gate(sessionID)
	if gate == nil {
		b.respondEphemeral(i, staleReply)
		return
	}

	switch err := gate.Offer(action); {
	case err == nil:
		b.respond(i, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})
	case errors.Is(err, review.ErrUnauthorizedActor):
		b.logger.Info("rejected button press from another user",
			zap.String("session_id", sessionID),
			zap.String("actor", action.Actor),
		)
		b.respondEphemeral(i, intruderReply)
	default:
		b.respondEphemeral(i, staleReply)
	}
}

func interactionUser(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) reply(channelID, text string) {
	if _, err := b.m.ChannelMessageSend(channelID, text); err != nil {
		b.logger.Warn("failed to send message", zap.String("channel", channelID), zap.Error(err))
	}
}

func (b *Bot) respondEphemeral(i *discordgo.Interaction, text string) {
	b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) {
	if err := b.m.InteractionRespond(i, resp); err != nil {
		b.logger.Warn("failed to respond to interaction", zap.Error(err))
	}
}
