package telegram

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"text/template"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/pkg/logger"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Notifier sends ingest alerts to one Telegram chat
type Notifier struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	templates *template.Template
}

// NewNotifier creates new Telegram notifier
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	return NewNotifierWithEndpoint(cfg, tgbotapi.APIEndpoint)
}

// NewNotifierWithEndpoint creates a notifier against a custom Bot API endpoint
func NewNotifierWithEndpoint(cfg *config.TelegramConfig, endpoint string) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	templates, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)

	return &Notifier{
		api:       bot,
		chatID:    cfg.ChatID,
		templates: templates,
	}, nil
}

// NotifyFailure alerts about a failed ingest run
func (n *Notifier) NotifyFailure(ctx context.Context, runID string, runErr error) error {
	data := map[string]interface{}{
		"RunID": runID,
		"Time":  time.Now().UTC().Format(time.RFC3339),
		"Error": tgbotapi.EscapeText(tgbotapi.ModeMarkdown, runErr.Error()),
	}

	var buf bytes.Buffer
	if err := n.templates.ExecuteTemplate(&buf, "ingest_failed.tmpl", data); err != nil {
		return fmt.Errorf("failed to render alert: %w", err)
	}

	return n.sendMessageMarkdown(n.chatID, buf.String())
}

func (n *Notifier) sendMessageMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := n.api.Send(msg)
	if err != nil {
		logger.Error("failed to send telegram message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// NopNotifier drops alerts; used when Telegram is not configured
type NopNotifier struct{}

func (NopNotifier) NotifyFailure(context.Context, string, error) error {
	return nil
}
