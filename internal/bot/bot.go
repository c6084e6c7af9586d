package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tgfetch/tgfetch/internal/fetch"
	"github.com/tgfetch/tgfetch/internal/logctx"
)

const choicePrefix = "dl"

var urlPattern = regexp.MustCompile(`https?://\S+`)

const (
	startText = "Hi! Send me a link from YouTube / Instagram / TikTok / Pinterest / Likee and I'll prepare the file.\n" +
		"Pick a format after sending the link.\n" +
		"💡 Large files can be sent as a document or returned as a download link."
	helpText = "Just send a link. If you only need the audio track, pick \"Audio (mp3)\". " +
		"For very large files pick \"Link only\"."
	busyText      = "You already have a download in progress, wait for it to finish."
	choiceText    = "Found a link. What should I extract?"
	subscribeText = "Subscribe to %s and send the link again 🙏"
)

// SubscriptionGate decides whether a user may request downloads.
type SubscriptionGate interface {
	IsAuthorized(ctx context.Context, userID int64) bool
	RequiredChannel() string
}

// Bot wires Telegram updates into the fetch pipeline.
type Bot struct {
	api  *tgbotapi.BotAPI
	orch *fetch.Orchestrator
	gate SubscriptionGate
}

func New(api *tgbotapi.BotAPI, orch *fetch.Orchestrator, gate SubscriptionGate) *Bot {
	return &Bot{api: api, orch: orch, gate: gate}
}

// Run consumes updates until the context is cancelled. Each choice callback
// runs its fetch in its own goroutine, so one user's download never blocks
// handling of other users' updates.
func (b *Bot) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	logger.Info("waiting for updates", "bot", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down update loop")
			b.api.StopReceivingUpdates()

			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			switch {
			case update.Message != nil:
				b.handleMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				b.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	logger := logctx.LoggerFromContext(ctx).With("user_id", msg.From.ID)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.sendText(ctx, msg.Chat.ID, startText)
		case "help":
			b.sendText(ctx, msg.Chat.ID, helpText)
		}

		return
	}

	url := ExtractURL(msg.Text)
	if url == "" {
		return
	}

	// The pending URL is not retained across a rejection; the user resends it.
	if !b.gate.IsAuthorized(ctx, msg.From.ID) {
		b.sendText(ctx, msg.Chat.ID, fmt.Sprintf(subscribeText, b.gate.RequiredChannel()))

		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, choiceText)
	reply.ReplyMarkup = ChoiceKeyboard(url)

	if _, err := b.api.Send(reply); err != nil {
		logger.Error("failed to send choice keyboard", "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil {
		b.answer(ctx, cq.ID, "", false)

		return
	}

	logger := logctx.LoggerFromContext(ctx).With("user_id", cq.From.ID)

	kind, url, err := ParseChoice(cq.Data)
	if err != nil {
		logger.Warn("ignoring malformed callback data", "data", cq.Data, "err", err)
		b.answer(ctx, cq.ID, "", false)

		return
	}

	req := fetch.Request{
		UserID: cq.From.ID,
		ChatID: cq.Message.Chat.ID,
		URL:    url,
		Kind:   kind,
	}

	go b.runFetch(ctx, cq.ID, req)
}

func (b *Bot) runFetch(ctx context.Context, callbackID string, req fetch.Request) {
	logger := logctx.LoggerFromContext(ctx).With("user_id", req.UserID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("fetch panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if _, err := b.api.Request(tgbotapi.NewChatAction(req.ChatID, tgbotapi.ChatUploadDocument)); err != nil {
		logger.Debug("failed to send chat action", "err", err)
	}

	err := b.orch.Fetch(ctx, req)
	if errors.Is(err, fetch.ErrFetchInProgress) {
		b.answer(ctx, callbackID, busyText, true)

		return
	}

	// Failures were already reported by the orchestrator; the callback still
	// needs its acknowledgment either way.
	b.answer(ctx, callbackID, "", false)
}

func (b *Bot) answer(ctx context.Context, callbackID, text string, alert bool) {
	logger := logctx.LoggerFromContext(ctx)

	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}

	if _, err := b.api.Request(cb); err != nil {
		logger.Debug("failed to answer callback", "err", err)
	}
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	logger := logctx.LoggerFromContext(ctx)

	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logger.Error("failed to send message", "err", err)
	}
}

// ExtractURL returns the first http(s) URL in a message, or "".
func ExtractURL(text string) string {
	return urlPattern.FindString(text)
}

// ChoiceKeyboard builds the three-way format choice for a URL.
func ChoiceKeyboard(url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎬 Video", choiceData(fetch.KindVideo, url)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎧 Audio (mp3)", choiceData(fetch.KindAudio, url)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔗 Link only", choiceData(fetch.KindLink, url)),
		),
	)
}

// ParseChoice decodes "dl:<kind>:<url>" callback data.
func ParseChoice(data string) (fetch.Kind, string, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != choicePrefix {
		return 0, "", fmt.Errorf("malformed choice data %q", data)
	}

	kind, err := fetch.ParseKind(parts[1])
	if err != nil {
		return 0, "", err
	}

	return kind, parts[2], nil
}

func choiceData(kind fetch.Kind, url string) string {
	return choicePrefix + ":" + kind.String() + ":" + url
}
