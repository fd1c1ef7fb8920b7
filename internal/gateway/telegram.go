package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway posts notices to a Telegram chat.
type TelegramGateway struct {
	api         *tgbotapi.BotAPI
	defaultChat int64
}

// NewTelegramGateway connects with token. defaultChat receives pushes with
// an empty recipient; zero means a recipient is required.
func NewTelegramGateway(token string, defaultChat int64) (*TelegramGateway, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramGateway{api: api, defaultChat: defaultChat}, nil
}

// newTelegramGatewayWithEndpoint points the bot at another API server.
func newTelegramGatewayWithEndpoint(token, endpoint string, client *http.Client, defaultChat int64) (*TelegramGateway, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramGateway{api: api, defaultChat: defaultChat}, nil
}

// HasDefaultRecipient reports whether an empty recipient is delivered to the
// default chat.
func (g *TelegramGateway) HasDefaultRecipient() bool { return g.defaultChat != 0 }

func (g *TelegramGateway) chat(to string) (int64, error) {
	if to == "" {
		if g.defaultChat == 0 {
			return 0, ErrNoRecipient
		}
		return g.defaultChat, nil
	}
	id, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat id %q: %w", to, err)
	}
	return id, nil
}

func (g *TelegramGateway) Push(_ context.Context, to string, n Notice) error {
	chatID, err := g.chat(to)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, FormatTelegramNotice(n))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := g.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (g *TelegramGateway) PushText(_ context.Context, to, text string) error {
	chatID, err := g.chat(to)
	if err != nil {
		return err
	}
	if _, err := g.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(",
	")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#",
	"+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{",
	"}", "\\}", ".", "\\.", "!", "\\!",
)

// FormatTelegramNotice renders a notice as MarkdownV2.
func FormatTelegramNotice(n Notice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*【%s】%s*\n", markdownEscaper.Replace(n.Trade), markdownEscaper.Replace(n.Location))
	fmt.Fprintf(&b, "%s〜%s｜%s\n", markdownEscaper.Replace(n.Start), markdownEscaper.Replace(n.End), markdownEscaper.Replace(n.Salary))
	if n.Summary != "" {
		b.WriteString(markdownEscaper.Replace(n.Summary) + "\n")
	}
	if n.Tel != "" {
		fmt.Fprintf(&b, "☎ %s\n", markdownEscaper.Replace(n.Tel))
	}
	fmt.Fprintf(&b, "応募は「%s」と返信してください", applyText)
	return b.String()
}
