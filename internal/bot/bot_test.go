package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/llm"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   []string // system prompts, in order
	lastMsg []llm.Message
	reply   string
	err     error
}

func (f *fakeCompleter) Complete(ctx context.Context, system string, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, system)
	f.lastMsg = append([]llm.Message(nil), messages...)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSynth struct {
	voice []byte
	err   error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.voice, f.err
}

func newTestBot(t *testing.T, completer Completer, synth Synthesizer) *Bot {
	t.Helper()
	b, err := New(Config{
		Completer:   completer,
		Synthesizer: synth,
		Tick:        10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create bot: %v", err)
	}
	return b
}

func collect(t *testing.T, b *Bot, n int, timeout time.Duration) []*VoiceRes {
	t.Helper()
	var out []*VoiceRes
	deadline := time.Now().Add(timeout)
	for len(out) < n && time.Now().Before(deadline) {
		if res := b.Get(100 * time.Millisecond); res != nil {
			out = append(out, res)
		}
	}
	if len(out) < n {
		t.Fatalf("Expected %d outputs, got %d", n, len(out))
	}
	return out
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"off", ModeOff, false},
		{"", ModeOff, false},
		{"summary", ModeSummary, false},
		{"translation", ModeTranslation, false},
		{"conversation", ModeConversation, false},
		{"karaoke", ModeOff, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q): unexpected error state %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestModeOffNeverTriggers(t *testing.T) {
	completer := &fakeCompleter{reply: "unused"}
	b := newTestBot(t, completer, nil)
	b.Start()
	defer b.Stop()

	b.Put([]string{"some fixed text"}, []string{"tmp"})
	time.Sleep(100 * time.Millisecond)

	if completer.callCount() != 0 {
		t.Errorf("Expected no completions in mode off, got %d", completer.callCount())
	}
	if res := b.Get(50 * time.Millisecond); res != nil {
		t.Errorf("Expected no output in mode off, got %v", res.Cmd)
	}
}

func TestTranslationEmitsBusyBracket(t *testing.T) {
	completer := &fakeCompleter{reply: "翻訳結果"}
	b := newTestBot(t, completer, nil)
	b.SetMode(ModeTranslation)
	b.Start()
	defer b.Stop()

	b.Put([]string{"hello world."}, []string{"and then"})

	out := collect(t, b, 3, 2*time.Second)
	if out[0].Cmd != CmdLLMOn {
		t.Errorf("Expected llm_on first, got %v", out[0].Cmd)
	}
	if out[1].Cmd != CmdAll || out[1].Text != "翻訳結果" {
		t.Errorf("Expected all with translation, got %v %q", out[1].Cmd, out[1].Text)
	}
	if out[2].Cmd != CmdLLMOff {
		t.Errorf("Expected llm_off last, got %v", out[2].Cmd)
	}

	if got := completer.calls[0]; got != translateSystem {
		t.Errorf("Expected translation system prompt, got %q", got)
	}
	content := completer.lastMsg[0].Content
	if !strings.Contains(content, "hello world.") || !strings.Contains(content, "and then") {
		t.Errorf("Expected fixed and tentative text in prompt, got %q", content)
	}
}

func TestBusyOffEmittedOnFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("service down")}
	b := newTestBot(t, completer, nil)
	b.SetMode(ModeSummary)
	b.Start()
	defer b.Stop()

	b.Put([]string{"notes"}, nil)

	out := collect(t, b, 2, 2*time.Second)
	if out[0].Cmd != CmdLLMOn || out[1].Cmd != CmdLLMOff {
		t.Errorf("Expected llm_on/llm_off bracket on failure, got %v %v", out[0].Cmd, out[1].Cmd)
	}
}

func TestSummaryRequiresChange(t *testing.T) {
	completer := &fakeCompleter{reply: "要約"}
	b := newTestBot(t, completer, nil)
	b.SetMode(ModeSummary)
	b.Start()
	defer b.Stop()

	b.Put([]string{"first point"}, nil)
	collect(t, b, 3, 2*time.Second)

	// Without new text the next interval must not trigger again.
	time.Sleep(100 * time.Millisecond)
	if completer.callCount() != 1 {
		t.Errorf("Expected exactly 1 completion without new text, got %d", completer.callCount())
	}
}

func TestConversationRespondsAndCommitsHistory(t *testing.T) {
	completer := &fakeCompleter{reply: "こんにちは！"}
	synth := &fakeSynth{voice: []byte("RIFF-wav-bytes")}
	b := newTestBot(t, completer, synth)
	b.SetMode(ModeConversation)
	b.Start()
	defer b.Stop()

	b.Put([]string{"やあ"}, nil)

	out := collect(t, b, 3, 2*time.Second)
	if out[1].Cmd != CmdAppend {
		t.Fatalf("Expected append, got %v", out[1].Cmd)
	}
	if out[1].Text != "こんにちは！" {
		t.Errorf("Expected reply text, got %q", out[1].Text)
	}
	if string(out[1].Voice) != "RIFF-wav-bytes" {
		t.Errorf("Expected synthesized audio on conversation reply")
	}

	// Second turn sees the committed history.
	b.Put([]string{"元気？"}, nil)
	collect(t, b, 3, 2*time.Second)

	completer.mu.Lock()
	defer completer.mu.Unlock()
	msgs := completer.lastMsg
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages (history + new turn), got %d", len(msgs))
	}
	if msgs[0].Content != "やあ" || msgs[1].Role != llm.RoleAssistant || msgs[2].Content != "元気？" {
		t.Errorf("Unexpected history: %+v", msgs)
	}
}

func TestSetModeClearsAccumulators(t *testing.T) {
	completer := &fakeCompleter{reply: "要約"}
	b := newTestBot(t, completer, nil)
	b.SetMode(ModeSummary)

	// Accumulate without the loop running, then switch before starting.
	b.Put([]string{"stale text"}, []string{"stale tmp"})
	b.SetMode(ModeTranslation)

	b.Start()
	defer b.Stop()

	time.Sleep(100 * time.Millisecond)
	if completer.callCount() != 0 {
		t.Errorf("Expected stale text cleared on mode switch, got %d completions", completer.callCount())
	}

	if b.Mode() != ModeTranslation {
		t.Errorf("Expected mode translation, got %v", b.Mode())
	}
}

func TestStartStopIdempotent(t *testing.T) {
	b := newTestBot(t, &fakeCompleter{}, nil)
	b.Start()
	b.Start()
	b.Stop()
	b.Stop()
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CmdAll, "all"},
		{CmdAppend, "append"},
		{CmdLLMOn, "llm_on"},
		{CmdLLMOff, "llm_off"},
		{Command(99), "command(99)"},
	}
	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}
