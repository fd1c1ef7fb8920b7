package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffing-board/internal/models"
)

func sampleNotice() Notice {
	return NoticeFromJob(models.Job{
		ID:         "j1",
		Trade:      "鳶",
		SitePref:   "大阪府",
		SiteCity:   "堺市",
		StartDate:  "2026-05-01",
		EndDate:    "2026-05-20",
		SalaryBand: "日給18000円",
		Summary:    "足場組立",
		Tel:        "06-0000-0000",
	})
}

func TestNoticeFromJob(t *testing.T) {
	n := sampleNotice()
	assert.Equal(t, "j1", n.JobID)
	assert.Equal(t, "足場組立", n.Title)
	assert.Equal(t, "大阪府堺市", n.Location)
	assert.Equal(t, "日給18000円", n.Salary)
}

func TestBuildJobFlex(t *testing.T) {
	flex := BuildJobFlex(sampleNotice())
	assert.Equal(t, "flex", flex["type"])
	assert.Equal(t, "新規募集: 鳶 @ 大阪府堺市", flex["altText"])

	raw, err := json.Marshal(flex)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "【鳶】大阪府堺市")
	assert.Contains(t, body, "2026-05-01〜2026-05-20｜日給18000円")
	assert.Contains(t, body, `"uri":"tel:06-0000-0000"`)
	assert.Contains(t, body, `"text":"応募します"`)

	n := sampleNotice()
	n.Tel = ""
	n.Summary = ""
	raw, err = json.Marshal(BuildJobFlex(n))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"uri":"https://line.me"`)
	assert.NotContains(t, string(raw), "足場組立")
}

func TestLineGatewayPush(t *testing.T) {
	var (
		mu   sync.Mutex
		got  pushRequest
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "{}")
	}))
	defer srv.Close()

	g := NewLineGateway("secret-token", srv.URL, time.Second)
	require.NoError(t, g.Push(context.Background(), "U123", sampleNotice()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret-token", auth)
	assert.Equal(t, "U123", got.To)
	require.Len(t, got.Messages, 1)
	msg, ok := got.Messages[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "flex", msg["type"])
}

func TestLineGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"The request body has 1 error(s)"}`)
	}))
	defer srv.Close()

	g := NewLineGateway("t", srv.URL, time.Second)
	err := g.PushText(context.Background(), "U1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "1 error(s)")

	assert.ErrorIs(t, g.Push(context.Background(), "", sampleNotice()), ErrNoRecipient)
	assert.True(t, NeedsRecipient(g))
}

func TestVerifyLineSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	mac := hmac.New(sha256.New, []byte("channel-secret"))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyLineSignature("channel-secret", body, sig))
	assert.False(t, VerifyLineSignature("other", body, sig))
	assert.False(t, VerifyLineSignature("channel-secret", []byte("{}"), sig))
	assert.False(t, VerifyLineSignature("channel-secret", body, "not base64!"))
	assert.False(t, VerifyLineSignature("", body, sig))
	assert.True(t, IsApplyReply("応募します"))
	assert.False(t, IsApplyReply("辞退します"))
}

type telegramCall struct {
	method string
	form   map[string]string
}

func newTelegramServer(t *testing.T) (*httptest.Server, func() []telegramCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []telegramCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		mu.Lock()
		calls = append(calls, telegramCall{method: method, form: form})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"board","username":"board_bot"}}`)
		default:
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []telegramCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]telegramCall(nil), calls...)
	}
}

func TestTelegramGatewayPush(t *testing.T) {
	srv, calls := newTelegramServer(t)
	g, err := newTelegramGatewayWithEndpoint("123:abc", srv.URL+"/bot%s/%s", srv.Client(), 42)
	require.NoError(t, err)
	assert.False(t, NeedsRecipient(g))

	require.NoError(t, g.Push(context.Background(), "", sampleNotice()))
	require.NoError(t, g.PushText(context.Background(), "99", "ようこそ"))

	got := calls()
	require.Len(t, got, 3)
	assert.Equal(t, "getMe", got[0].method)
	assert.Equal(t, "sendMessage", got[1].method)
	assert.Equal(t, "42", got[1].form["chat_id"])
	assert.Equal(t, "MarkdownV2", got[1].form["parse_mode"])
	assert.Contains(t, got[1].form["text"], "2026\\-05\\-01")
	assert.Equal(t, "99", got[2].form["chat_id"])
	assert.Equal(t, "ようこそ", got[2].form["text"])
}

func TestTelegramGatewayRecipient(t *testing.T) {
	srv, _ := newTelegramServer(t)
	g, err := newTelegramGatewayWithEndpoint("123:abc", srv.URL+"/bot%s/%s", srv.Client(), 0)
	require.NoError(t, err)

	assert.True(t, NeedsRecipient(g))
	assert.ErrorIs(t, g.Push(context.Background(), "", sampleNotice()), ErrNoRecipient)
	assert.Error(t, g.PushText(context.Background(), "not-a-chat", "x"))
}

func TestFormatTelegramNotice(t *testing.T) {
	text := FormatTelegramNotice(sampleNotice())
	assert.True(t, strings.HasPrefix(text, "*【鳶】大阪府堺市*\n"))
	assert.Contains(t, text, "06\\-0000\\-0000")
	assert.Contains(t, text, "「応募します」")
}
