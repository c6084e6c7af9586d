package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tgfetch/tgfetch/internal/logctx"
)

// ChannelGate authorizes users by membership in a required channel. A
// disabled gate authorizes everyone; a failed membership check authorizes
// no one.
type ChannelGate struct {
	api      *tgbotapi.BotAPI
	channel  string
	required bool
}

func NewChannelGate(api *tgbotapi.BotAPI, channel string, required bool) *ChannelGate {
	return &ChannelGate{api: api, channel: channel, required: required}
}

func (g *ChannelGate) IsAuthorized(ctx context.Context, userID int64) bool {
	if !g.required || g.channel == "" {
		return true
	}

	member, err := g.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: g.channel,
			UserID:             userID,
		},
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("subscription check failed", "user_id", userID, "err", err)

		return false
	}

	switch member.Status {
	case "member", "administrator", "creator":
		return true
	}

	return false
}

func (g *ChannelGate) RequiredChannel() string {
	return g.channel
}
