package alerting

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"
)

// ConsoleNotifier 在终端响铃。告警文本本身由报表输出。
type ConsoleNotifier struct {
	out io.Writer
}

// NewConsoleNotifier 构造终端响铃告警器。
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

func (n *ConsoleNotifier) Name() string { return "console" }

func (n *ConsoleNotifier) Notify(context.Context, Notification) error {
	if _, err := io.WriteString(n.out, "\a"); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}

// SpeechText 是语音播报的内容。
func SpeechText(token string) string {
	return "检测到新的套利机会 " + token
}

// CommandRunner 执行外部命令。
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// SpeechNotifier 通过 macOS 的 say 命令播报。其它平台上跳过。
type SpeechNotifier struct {
	command string
	goos    string
	run     CommandRunner
	logger  zerolog.Logger
}

// NewSpeechNotifier 构造语音告警器。
func NewSpeechNotifier(logger zerolog.Logger) *SpeechNotifier {
	return &SpeechNotifier{
		command: "say",
		goos:    runtime.GOOS,
		run:     execRunner,
		logger:  logger.With().Str("component", "alert_speech").Logger(),
	}
}

func (n *SpeechNotifier) Name() string { return "speech" }

func (n *SpeechNotifier) Notify(ctx context.Context, note Notification) error {
	if n.goos != "darwin" {
		n.logger.Debug().Str("goos", n.goos).Msg("speech unsupported on this platform, skipped")
		return nil
	}
	if err := n.run(ctx, n.command, SpeechText(note.Token)); err != nil {
		return fmt.Errorf("run %s: %w", n.command, err)
	}
	return nil
}

var (
	_ Notifier = (*ConsoleNotifier)(nil)
	_ Notifier = (*SpeechNotifier)(nil)
)
