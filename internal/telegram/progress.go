package telegram

import (
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/marmot/internal/types"
)

// progressReporter turns tool-start events into a single transient
// status message that is edited as the turn progresses and deleted once
// the final answer is ready. Losing an update here is harmless.
type progressReporter struct {
	bot    *tgbotapi.BotAPI
	chatID int64

	mu        sync.Mutex
	messageID int
	cleared   bool
}

func newProgressReporter(bot *tgbotapi.BotAPI, chatID int64) *progressReporter {
	return &progressReporter{bot: bot, chatID: chatID}
}

// consume drains the sink until it is closed.
func (p *progressReporter) consume(sink types.EventSink) {
	for ev := range sink {
		p.report(ev.Name)
	}
}

func (p *progressReporter) report(toolName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cleared {
		return
	}

	text := fmt.Sprintf("⏳ Running %s...", toolName)
	if p.messageID == 0 {
		sent, err := p.bot.Send(tgbotapi.NewMessage(p.chatID, text))
		if err != nil {
			slog.Debug("send progress message", "error", err)
			return
		}
		p.messageID = sent.MessageID
		return
	}
	edit := tgbotapi.NewEditMessageText(p.chatID, p.messageID, text)
	if _, err := p.bot.Send(edit); err != nil {
		slog.Debug("edit progress message", "error", err)
	}
}

// clear deletes the status message, if one was sent.
func (p *progressReporter) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = true
	if p.messageID == 0 {
		return
	}
	del := tgbotapi.NewDeleteMessage(p.chatID, p.messageID)
	if _, err := p.bot.Request(del); err != nil {
		slog.Debug("delete progress message", "error", err)
	}
	p.messageID = 0
}
