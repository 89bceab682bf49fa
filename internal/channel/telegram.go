package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cropadvisor/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramPollTimeout    = 30
)

// Telegram implements domain.Channel for the Telegram Bot API.
type Telegram struct {
	token     string
	parseMode string

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	client *http.Client
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		parseMode: cfg.ParseMode,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() domain.ChannelName { return domain.ChannelTelegram }

// startMenu is the inline keyboard attached to the welcome message.
var startMenu = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🌾 Get Recommendation", "recommend"),
		tgbotapi.NewInlineKeyboardButtonData("📷 Detect Disease", "disease"),
	),
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🌐 English", "lang_en"),
		tgbotapi.NewInlineKeyboardButtonData("🇮🇳 हिंदी", "lang_hi"),
	),
)

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound(domain.ChannelTelegram, func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		t.deliver(chatID, msg)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) Send(ctx context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	t.sendText(id, text, "", nil)
	return nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		t.handleCallback(update.CallbackQuery)
		return
	}

	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}
	msg := update.Message
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	senderID := strconv.FormatInt(msg.From.ID, 10)
	at := time.Unix(int64(msg.Date), 0)

	if len(msg.Photo) > 0 {
		data, err := t.downloadPhoto(ctx, msg.Photo)
		if err != nil {
			t.logger.Error("telegram photo download failed", "chat", chatID, "err", err)
			t.sendText(msg.Chat.ID, "Error analyzing image. Try again.", "", nil)
			return
		}
		t.bus.Publish(domain.InboundMessage{
			Channel:   domain.ChannelTelegram,
			ChatID:    chatID,
			SenderID:  senderID,
			Kind:      domain.KindImage,
			ImageData: data,
			ImageMime: "image/jpeg",
			Timestamp: at,
		})
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	t.logger.Info("telegram message received",
		"chat_id", chatID,
		"text_len", len(text),
	)

	t.bus.Publish(domain.InboundMessage{
		Channel:   domain.ChannelTelegram,
		ChatID:    chatID,
		SenderID:  senderID,
		Kind:      domain.KindText,
		Text:      text,
		Timestamp: at,
	})
}

// handleCallback acknowledges an inline keyboard press and publishes it as a
// canonical button event carrying the callback token.
func (t *Telegram) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}

	callback := tgbotapi.NewCallback(cq.ID, "")
	_, _ = t.bot.Request(callback)

	t.bus.Publish(domain.InboundMessage{
		Channel:   domain.ChannelTelegram,
		ChatID:    strconv.FormatInt(cq.Message.Chat.ID, 10),
		SenderID:  strconv.FormatInt(cq.From.ID, 10),
		Kind:      domain.KindButton,
		Text:      cq.Data,
		Timestamp: time.Now(),
	})
}

// downloadPhoto fetches the highest-resolution rendition of a photo message.
func (t *Telegram) downloadPhoto(ctx context.Context, sizes []tgbotapi.PhotoSize) ([]byte, error) {
	fileID := sizes[len(sizes)-1].FileID

	fileURL, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download photo: HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (t *Telegram) deliver(chatID int64, msg domain.OutboundMessage) {
	parseMode := ""
	if msg.Format == "markdown" {
		parseMode = t.parseMode
	}
	var markup *tgbotapi.InlineKeyboardMarkup
	if msg.Menu == domain.MenuStart {
		markup = &startMenu
	}
	t.sendText(chatID, msg.Text, parseMode, markup)
}

// sendText delivers one message, chunking at Telegram's length limit. Only
// the first chunk carries the reply markup.
func (t *Telegram) sendText(chatID int64, text, parseMode string, markup *tgbotapi.InlineKeyboardMarkup) {
	for _, chunk := range splitMessage(text) {
		t.sendChunk(chatID, chunk, parseMode, markup)
		markup = nil
	}
}

// splitMessage cuts text into chunks under Telegram's length limit, preferring
// to break at a newline when one falls in the second half of the window.
func splitMessage(text string) []string {
	var chunks []string
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Strategy: try the configured parse mode first, fall back to plain text on
// parse errors, back off on 429.
func (t *Telegram) sendChunk(chatID int64, text, parseMode string, markup *tgbotapi.InlineKeyboardMarkup) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && parseMode != "" {
			msg.ParseMode = parseMode
		}
		if markup != nil {
			msg.ReplyMarkup = *markup
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		// Markdown parse error on first attempt: retry immediately as plain text.
		if attempt == 0 && parseMode != "" && strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err)
			continue
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
	}
}
