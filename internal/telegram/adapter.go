package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/contentcrew/internal/delivery"
	"github.com/user/contentcrew/internal/gateway"
	"github.com/user/contentcrew/internal/types"
)

const maxTelegramMessage = 4096

// Inbound accepts requests for the supervisor.
type Inbound interface {
	HandleInbound(ctx context.Context, event *types.InboundEvent, opts ...gateway.RunOption) (*gateway.Run, error)
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	gateway  Inbound
	sessions types.SessionStore
	allowed  map[int64]bool
}

// New creates a Telegram adapter. An empty allowed list accepts every user.
func New(token string, gw Inbound, sessions types.SessionStore, allowed []int64) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a := &Adapter{
		bot:      bot,
		gateway:  gw,
		sessions: sessions,
		allowed:  make(map[int64]bool, len(allowed)),
	}
	for _, id := range allowed {
		a.allowed[id] = true
	}
	return a, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	slog.Info("telegram bot started", "username", a.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" || update.Message.From == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) permitted(userID int64) bool {
	return len(a.allowed) == 0 || a.allowed[userID]
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !a.permitted(msg.From.ID) {
		slog.Warn("telegram message from unlisted user", "user_id", msg.From.ID)
		return
	}
	if msg.IsCommand() && !isFormatCommand(msg.Command()) {
		a.handleCommand(ctx, msg)
		return
	}

	text := msg.Text
	if msg.IsCommand() {
		args := strings.TrimSpace(msg.CommandArguments())
		if args == "" {
			a.sendResponse(msg.Chat.ID, fmt.Sprintf("Usage: /%s <topic>", msg.Command()))
			return
		}
		text = requestFor(msg.Command(), args)
	}
	a.submit(ctx, msg, text)
}

func (a *Adapter) submit(ctx context.Context, msg *tgbotapi.Message, text string) {
	chatID := msg.Chat.ID
	event := &types.InboundEvent{
		Source:     "telegram",
		SessionKey: buildSessionKey(msg.From.ID, chatID),
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		Text:       text,
	}

	a.sendTyping(chatID)
	_, err := a.gateway.HandleInbound(ctx, event, gateway.WithOnComplete(func(o *types.Outcome) {
		a.sendResponse(chatID, delivery.Message(o))
	}))
	if err != nil {
		slog.Error("handle inbound", "chat_id", chatID, "error", err)
		a.sendResponse(chatID, "Sorry, I couldn't queue your request.")
	}
}

func isFormatCommand(cmd string) bool {
	return cmd == "post" || cmd == "blog"
}

func requestFor(cmd, topic string) string {
	if cmd == "blog" {
		return "Write a blog article about " + topic
	}
	return "Write a social media post about " + topic
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		a.sendResponse(chatID, "Hi! Tell me what to write about and I'll research it and draft the content.\n\n"+
			"/post <topic> - social media post\n/blog <topic> - blog article\n/status - your latest session")

	case "status":
		if a.sessions == nil {
			a.sendResponse(chatID, "Session history is disabled.")
			return
		}
		key := buildSessionKey(msg.From.ID, chatID)
		sessions, err := a.sessions.List(ctx)
		if err != nil {
			a.sendResponse(chatID, "Error fetching status.")
			return
		}
		var latest *types.SessionIndex
		for _, s := range sessions {
			if s.SessionKey == key {
				latest = s
			}
		}
		if latest == nil {
			a.sendResponse(chatID, "No sessions yet.")
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("Session: %s\nStatus: %s\nDecisions: %d", latest.SessionID, latest.Status, latest.Turns))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /post, /blog, /status, /help")
	}
}

// Deliver sends a scheduled outcome to the chat encoded in sessionKey.
func (a *Adapter) Deliver(_ context.Context, sessionKey string, o *types.Outcome) error {
	chatID, err := chatIDFromKey(sessionKey)
	if err != nil {
		return err
	}
	a.sendResponse(chatID, delivery.Message(o))
	return nil
}

func (a *Adapter) sendTyping(chatID int64) {
	if _, err := a.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("send typing", "error", err)
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message", "chat_id", chatID, "error", err)
			}
		}
	}
}

// splitMessage cuts text into Telegram-sized parts, preferring line breaks
// and never splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := maxTelegramMessage
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		if nl := strings.LastIndexByte(text[:end], '\n'); nl > maxTelegramMessage/2 {
			end = nl + 1
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}

// chatIDFromKey accepts telegram:<chat> and telegram:<user>:<chat>.
func chatIDFromKey(key string) (int64, error) {
	parts := strings.Split(key, ":")
	if len(parts) < 2 || parts[0] != "telegram" {
		return 0, fmt.Errorf("not a telegram session key: %s", key)
	}
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chat id from %s: %w", key, err)
	}
	return id, nil
}
