package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testNote = Notification{Token: "FOO", Message: "套利机会：FOO_USDT 偏离率:1.00% 资金费率:0.01% 平台:X"}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testNote); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], testNote.Message) {
		t.Fatalf("text 应包含告警信息: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testNote); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestDiscordNotifier(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		content = body["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordNotifier(srv.URL, time.Second, testLogger()).Notify(context.Background(), testNote); err != nil {
		t.Fatalf("Discord Notify 应成功: %v", err)
	}
	if content != testNote.Message {
		t.Fatalf("content 不正确: %q", content)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer failing.Close()
	if err := NewDiscordNotifier(failing.URL, time.Second, testLogger()).Notify(context.Background(), testNote); err == nil {
		t.Fatal("429 应报错")
	}
}

func TestConsoleNotifierRingsBell(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsoleNotifier(&buf).Notify(context.Background(), testNote); err != nil {
		t.Fatalf("终端响铃失败: %v", err)
	}
	if buf.String() != "\a" {
		t.Fatalf("应输出响铃字符, 实际 %q", buf.String())
	}
}

func TestSpeechNotifier(t *testing.T) {
	var gotName string
	var gotArgs []string
	n := NewSpeechNotifier(testLogger())
	n.goos = "darwin"
	n.run = func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}

	if err := n.Notify(context.Background(), testNote); err != nil {
		t.Fatalf("语音播报失败: %v", err)
	}
	if gotName != "say" || len(gotArgs) != 1 || gotArgs[0] != "检测到新的套利机会 FOO" {
		t.Fatalf("命令参数错误: %s %v", gotName, gotArgs)
	}

	n.goos = "linux"
	gotName = ""
	if err := n.Notify(context.Background(), testNote); err != nil || gotName != "" {
		t.Fatal("非 macOS 平台应跳过语音播报")
	}
}

type stubNotifier struct {
	name  string
	err   error
	calls atomic.Int32
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(context.Context, Notification) error {
	s.calls.Add(1)
	return s.err
}

func TestMultiContinuesPastFailures(t *testing.T) {
	ok := &stubNotifier{name: "ok"}
	bad := &stubNotifier{name: "bad", err: errors.New("boom")}
	multi := NewMulti(bad, nil, ok)

	if multi.Len() != 2 {
		t.Fatalf("nil 渠道应被忽略, 实际 %d", multi.Len())
	}

	err := multi.Notify(context.Background(), testNote)
	var notifyErr *NotificationError
	if !errors.As(err, &notifyErr) || notifyErr.Channel != "bad" {
		t.Fatalf("应返回 bad 渠道的 NotificationError, 实际 %v", err)
	}
	if ok.calls.Load() != 1 || bad.calls.Load() != 1 {
		t.Fatal("每个渠道都应被调用一次")
	}

	if err := NewMulti().Notify(context.Background(), testNote); err != nil {
		t.Fatalf("空渠道不应报错: %v", err)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
