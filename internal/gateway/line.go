package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultLinePushURL is the LINE Messaging API push endpoint.
const DefaultLinePushURL = "https://api.line.me/v2/bot/message/push"

const (
	applyText  = "応募します"
	brandColor = "#1BA3A3"
	errBodyMax = 4 << 10
)

// LineGateway pushes flex notices through the LINE Messaging API.
type LineGateway struct {
	token      string
	endpoint   string
	httpClient *http.Client
}

// NewLineGateway uses DefaultLinePushURL when endpoint is empty.
func NewLineGateway(token, endpoint string, timeout time.Duration) *LineGateway {
	if endpoint == "" {
		endpoint = DefaultLinePushURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &LineGateway{
		token:      token,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pushRequest struct {
	To       string `json:"to"`
	Messages []any  `json:"messages"`
}

func (g *LineGateway) Push(ctx context.Context, to string, n Notice) error {
	return g.send(ctx, to, BuildJobFlex(n))
}

func (g *LineGateway) PushText(ctx context.Context, to, text string) error {
	return g.send(ctx, to, map[string]any{"type": "text", "text": text})
}

func (g *LineGateway) send(ctx context.Context, to string, message any) error {
	if to == "" {
		return ErrNoRecipient
	}
	body, err := json.Marshal(pushRequest{To: to, Messages: []any{message}})
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyMax))
		return fmt.Errorf("line push: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// BuildJobFlex renders the job notice bubble with apply and call buttons.
func BuildJobFlex(n Notice) map[string]any {
	contents := []any{
		map[string]any{"type": "text", "text": fmt.Sprintf("【%s】%s", n.Trade, n.Location), "weight": "bold", "size": "md"},
		map[string]any{"type": "text", "text": fmt.Sprintf("%s〜%s｜%s", n.Start, n.End, n.Salary), "size": "sm", "color": "#6B7280"},
	}
	if n.Summary != "" {
		contents = append(contents, map[string]any{"type": "text", "text": n.Summary, "wrap": true, "size": "sm"})
	}
	telURI := "https://line.me"
	if n.Tel != "" {
		telURI = "tel:" + n.Tel
	}
	contents = append(contents,
		map[string]any{"type": "separator", "margin": "md"},
		map[string]any{
			"type": "box", "layout": "horizontal", "spacing": "sm",
			"contents": []any{
				map[string]any{
					"type": "button", "style": "primary", "color": brandColor,
					"action": map[string]any{"type": "message", "label": "応募する", "text": applyText},
				},
				map[string]any{
					"type": "button", "style": "link",
					"action": map[string]any{"type": "uri", "label": "電話", "uri": telURI},
				},
			},
		},
	)
	return map[string]any{
		"type":    "flex",
		"altText": fmt.Sprintf("新規募集: %s @ %s", n.Trade, n.Location),
		"contents": map[string]any{
			"type": "bubble",
			"body": map[string]any{
				"type": "box", "layout": "vertical", "spacing": "md",
				"contents": contents,
			},
		},
	}
}

// IsApplyReply reports whether a candidate's message is the apply button text.
func IsApplyReply(text string) bool {
	return text == applyText
}

// VerifyLineSignature checks the X-Line-Signature header of a webhook body.
func VerifyLineSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}
