package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/marmot/internal/gateway"
	"github.com/user/marmot/internal/runtime"
	"github.com/user/marmot/internal/skills"
	"github.com/user/marmot/internal/types"
)

// Telegram hard-caps messages at 4096 chars; staying a little under
// leaves room for formatting.
const maxTelegramMessage = 4000

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot           *tgbotapi.BotAPI
	gateway       *gateway.Gateway
	conversations types.ConversationStore
	tasks         types.TaskStore
	tools         *runtime.Registry
	skills        *skills.Registry
	allowed       map[int64]bool
}

// New creates a Telegram adapter. An empty allow-list means every user
// may talk to the bot.
func New(token string, gw *gateway.Gateway, conversations types.ConversationStore, tasks types.TaskStore, tools *runtime.Registry, skillReg *skills.Registry, allowedUserIDs []int64) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	allowed := make(map[int64]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = true
	}
	return &Adapter{
		bot:           bot,
		gateway:       gw,
		conversations: conversations,
		tasks:         tasks,
		tools:         tools,
		skills:        skillReg,
		allowed:       allowed,
	}, nil
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	slog.Info("telegram adapter listening", "bot", a.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

// Deliver sends text to a chat. It implements the delivery handler used
// for scheduled task answers.
func (a *Adapter) Deliver(chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", chatID, err)
	}
	a.sendResponse(id, text)
	return nil
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if len(a.allowed) > 0 && !a.allowed[msg.From.ID] {
		slog.Warn("ignoring message from unauthorized user", "user_id", msg.From.ID)
		return
	}

	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	incoming := &types.IncomingMessage{
		Platform: "telegram",
		UserID:   strconv.FormatInt(msg.From.ID, 10),
		ChatID:   strconv.FormatInt(chatID, 10),
		UserName: msg.From.UserName,
		Text:     msg.Text,
	}

	a.sendTyping(chatID)

	sink := make(types.EventSink, 16)
	progress := newProgressReporter(a.bot, chatID)
	go progress.consume(sink)

	err := a.gateway.HandleInbound(incoming,
		gateway.WithSink(sink),
		gateway.WithOnComplete(func(response string) {
			close(sink)
			progress.clear()
			if response != "" {
				a.sendResponse(chatID, response)
			}
		}))
	if err != nil {
		slog.Error("enqueue inbound message", "error", err)
		close(sink)
		progress.clear()
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
	}
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := strconv.FormatInt(msg.From.ID, 10)

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! I'm Marmot, your personal assistant. Send me a message to get started.")

	case "clear":
		if err := a.conversations.Clear(ctx, "telegram", userID); err != nil {
			slog.Error("clear conversation", "error", err)
			a.sendResponse(chatID, "Error clearing conversation.")
			return
		}
		a.sendResponse(chatID, "Conversation cleared. Starting fresh!")

	case "tools":
		var names []string
		for _, t := range a.tools.All() {
			names = append(names, t.Name())
		}
		if len(names) == 0 {
			a.sendResponse(chatID, "No tools registered.")
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("Available tools (%d):\n%s", len(names), strings.Join(names, "\n")))

	case "skills":
		loaded := a.skills.List()
		if len(loaded) == 0 {
			a.sendResponse(chatID, "No skills loaded.")
			return
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Loaded skills (%d):\n", len(loaded))
		for _, s := range loaded {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
		}
		a.sendResponse(chatID, sb.String())

	case "tasks":
		active, err := a.tasks.ListActiveForUser(ctx, userID)
		if err != nil {
			slog.Error("list tasks", "error", err)
			a.sendResponse(chatID, "Error listing tasks.")
			return
		}
		if len(active) == 0 {
			a.sendResponse(chatID, "No active scheduled tasks.")
			return
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "Active scheduled tasks (%d):\n", len(active))
		for _, task := range active {
			fmt.Fprintf(&sb, "- %s: %s (%s %s)\n", task.ID, task.Description, task.TriggerType, task.TriggerValue)
		}
		a.sendResponse(chatID, sb.String())

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /clear, /tools, /skills, /tasks")
	}
}

func (a *Adapter) sendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := a.bot.Request(action); err != nil {
		slog.Debug("send typing action", "error", err)
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
				slog.Error("send telegram message", "error", err)
			}
		}
	}
}

// splitMessage chunks text under the Telegram limit, preferring to break
// at the last newline in range, then the last space, then hard.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		cut := maxTelegramMessage
		if i := strings.LastIndex(text[:cut], "\n"); i > 0 {
			cut = i
		} else if i := strings.LastIndex(text[:cut], " "); i > 0 {
			cut = i
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], " \n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
