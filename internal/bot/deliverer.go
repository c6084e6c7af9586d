package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tgfetch/tgfetch/internal/fetch"
)

// Deliverer sends orchestrator output over the Bot API.
type Deliverer struct {
	api *tgbotapi.BotAPI
}

func NewDeliverer(api *tgbotapi.BotAPI) *Deliverer {
	return &Deliverer{api: api}
}

func (d *Deliverer) SendText(ctx context.Context, chatID int64, text string) error {
	if _, err := d.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

func (d *Deliverer) SendAudio(ctx context.Context, chatID int64, filePath, caption string) error {
	audio := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(filePath))
	audio.Caption = caption

	if _, err := d.api.Send(audio); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}

	return nil
}

// SendVideo wraps a Bot API rejection of the video type in *fetch.DeliveryError
// so the orchestrator can fall back to a document send. Network-level faults
// propagate untyped.
func (d *Deliverer) SendVideo(ctx context.Context, chatID int64, filePath, caption string) error {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(filePath))
	video.Caption = caption

	if _, err := d.api.Send(video); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return &fetch.DeliveryError{Attachment: "video", Err: err}
		}

		return fmt.Errorf("send video: %w", err)
	}

	return nil
}

func (d *Deliverer) SendDocument(ctx context.Context, chatID int64, filePath, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	doc.Caption = caption

	if _, err := d.api.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	return nil
}
