package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/route250/MeetingMinutesSummarizer/internal/llm"
)

// Mode selects what the bot does with incoming transcription text.
type Mode int

const (
	ModeOff Mode = iota
	ModeSummary
	ModeTranslation
	ModeConversation
)

// ParseMode converts a wire mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "off", "":
		return ModeOff, nil
	case "summary":
		return ModeSummary, nil
	case "translation":
		return ModeTranslation, nil
	case "conversation":
		return ModeConversation, nil
	default:
		return ModeOff, fmt.Errorf("unknown mode %q", s)
	}
}

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSummary:
		return "summary"
	case ModeTranslation:
		return "translation"
	case ModeConversation:
		return "conversation"
	default:
		return "off"
	}
}

// Interval is the minimum time between two triggered actions in this mode.
func (m Mode) Interval() time.Duration {
	switch m {
	case ModeSummary:
		return 15 * time.Second
	case ModeTranslation:
		return 5 * time.Second
	case ModeConversation:
		return time.Second
	default:
		return 0
	}
}

// Completer produces a text completion for a system prompt and turns.
type Completer interface {
	Complete(ctx context.Context, system string, messages []llm.Message) (string, error)
}

// Synthesizer converts reply text to a complete WAV.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config configures a Bot.
type Config struct {
	Completer   Completer
	Synthesizer Synthesizer
	// Tick is the poll period of the trigger loop.
	Tick time.Duration
	// ActionTimeout bounds one completion + synthesis round.
	ActionTimeout time.Duration
	QueueSize     int
	Logger        *slog.Logger
}

// Bot watches accumulated transcription text and periodically turns it
// into summaries, translations, or spoken conversation replies depending
// on the active mode. Outputs are queued as VoiceRes values for the
// session's relay to drain.
type Bot struct {
	config Config
	logger *slog.Logger
	queue  chan *VoiceRes

	mu           sync.Mutex
	mode         Mode
	origTexts    []string
	tempTexts    []string
	userMessages []string
	// globalMessages is the conversation history; it persists across
	// mode switches and is never pruned.
	globalMessages []llm.Message
	lastExec       time.Time
	lastFixedCount int
	lastTempKey    string

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Bot in mode off.
func New(config Config) (*Bot, error) {
	if config.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if config.Tick <= 0 {
		config.Tick = time.Second
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = 60 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Bot{
		config: config,
		logger: config.Logger,
		queue:  make(chan *VoiceRes, config.QueueSize),
	}, nil
}

// Start launches the trigger loop. Idempotent.
func (b *Bot) Start() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.loop(b.stopCh, b.doneCh)
}

// Stop ends the trigger loop and waits for the current iteration to
// finish. Idempotent.
func (b *Bot) Stop() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	close(b.stopCh)
	<-b.doneCh
}

// SetMode switches the mode immediately. Mode-scoped accumulators are
// cleared so a later trigger cannot surface text gathered under the old
// mode; the conversation history is kept.
func (b *Bot) SetMode(mode Mode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == mode {
		return
	}
	b.mode = mode
	b.origTexts = nil
	b.tempTexts = nil
	b.userMessages = nil
	b.lastExec = time.Time{}
	b.lastFixedCount = 0
	b.lastTempKey = ""
	b.logger.Info("Bot mode changed", "mode", mode.String())
}

// Mode returns the active mode.
func (b *Bot) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Put feeds fixed transcription text into the bot. In conversation mode
// the texts become pending user turns; otherwise they accumulate for
// summarizing or translating and temp replaces the tentative snapshot
// wholesale (cleared when nil or empty).
func (b *Bot) Put(messages []string, temp []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == ModeConversation {
		b.userMessages = append(b.userMessages, messages...)
		return
	}
	b.origTexts = append(b.origTexts, messages...)
	if len(temp) > 0 {
		b.tempTexts = append([]string(nil), temp...)
	} else {
		b.tempTexts = nil
	}
}

// Get waits up to timeout for the next queued output. Returns nil on
// timeout.
func (b *Bot) Get(timeout time.Duration) *VoiceRes {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-b.queue:
		return res
	case <-timer.C:
		return nil
	}
}

// loop evaluates the trigger condition once per tick. A failed cycle is
// logged and the loop keeps going.
func (b *Bot) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(b.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

// tick runs at most one mode action.
func (b *Bot) tick() {
	b.mu.Lock()
	mode := b.mode
	interval := mode.Interval()
	due := b.lastExec.IsZero() || time.Since(b.lastExec) > interval

	var run func(context.Context)
	switch mode {
	case ModeSummary, ModeTranslation:
		tempKey := strings.Join(b.tempTexts, "\n")
		changed := len(b.origTexts) != b.lastFixedCount || tempKey != b.lastTempKey
		if due && changed && (len(b.origTexts) > 0 || len(b.tempTexts) > 0) {
			text := strings.Join(b.origTexts, "\n")
			if tempKey != "" {
				if text != "" {
					text += "\n"
				}
				text += tempKey
			}
			b.lastFixedCount = len(b.origTexts)
			b.lastTempKey = tempKey
			b.lastExec = time.Now()
			if mode == ModeSummary {
				run = func(ctx context.Context) { b.summarize(ctx, text) }
			} else {
				run = func(ctx context.Context) { b.translate(ctx, text) }
			}
		}
	case ModeConversation:
		if due && len(b.userMessages) > 0 {
			pending := b.userMessages
			b.userMessages = nil
			b.lastExec = time.Now()
			run = func(ctx context.Context) { b.respond(ctx, pending) }
		}
	}
	b.mu.Unlock()

	if run == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.ActionTimeout)
	defer cancel()
	run(ctx)
}

// withBusy brackets fn with the LLM busy indicator; the off event is
// emitted even when fn fails.
func (b *Bot) withBusy(fn func() error) {
	b.emit(&VoiceRes{Cmd: CmdLLMOn})
	defer b.emit(&VoiceRes{Cmd: CmdLLMOff})
	if err := fn(); err != nil {
		b.logger.Error("Bot action failed", "error", err)
	}
}

func (b *Bot) summarize(ctx context.Context, text string) {
	b.withBusy(func() error {
		result, err := b.config.Completer.Complete(ctx, summarizeSystem,
			[]llm.Message{{Role: llm.RoleUser, Content: summarizePrompt + text}})
		if err != nil {
			return fmt.Errorf("summarize failed: %w", err)
		}
		b.emit(&VoiceRes{Cmd: CmdAll, Text: result})
		return nil
	})
}

func (b *Bot) translate(ctx context.Context, text string) {
	b.withBusy(func() error {
		result, err := b.config.Completer.Complete(ctx, translateSystem,
			[]llm.Message{{Role: llm.RoleUser, Content: translatePrompt + text}})
		if err != nil {
			return fmt.Errorf("translate failed: %w", err)
		}
		b.emit(&VoiceRes{Cmd: CmdAll, Text: result})
		return nil
	})
}

// respond answers pending user turns on top of the running conversation
// history, synthesizes the reply, and commits both sides of the exchange
// to the history on success.
func (b *Bot) respond(ctx context.Context, pending []string) {
	b.withBusy(func() error {
		turns := make([]llm.Message, 0, len(pending))
		for _, text := range pending {
			turns = append(turns, llm.Message{Role: llm.RoleUser, Content: text})
		}

		b.mu.Lock()
		history := append([]llm.Message(nil), b.globalMessages...)
		b.mu.Unlock()

		reply, err := b.config.Completer.Complete(ctx, respondSystem, append(history, turns...))
		if err != nil {
			return fmt.Errorf("respond failed: %w", err)
		}

		voice := b.synthesize(ctx, reply)
		b.emit(&VoiceRes{Cmd: CmdAppend, Text: reply, Voice: voice})

		b.mu.Lock()
		b.globalMessages = append(b.globalMessages, turns...)
		b.globalMessages = append(b.globalMessages, llm.Message{Role: llm.RoleAssistant, Content: reply})
		b.mu.Unlock()
		return nil
	})
}

// synthesize renders the reply to audio; synthesis failure is not fatal,
// the reply just ships without voice.
func (b *Bot) synthesize(ctx context.Context, text string) []byte {
	if b.config.Synthesizer == nil {
		return nil
	}
	voice, err := b.config.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		b.logger.Warn("Speech synthesis failed", "error", err)
		return nil
	}
	return voice
}

// emit queues one output; a full queue drops the output with a log line
// rather than blocking the trigger loop.
func (b *Bot) emit(res *VoiceRes) {
	select {
	case b.queue <- res:
	default:
		b.logger.Warn("Bot output queue full, dropping", "cmd", res.Cmd.String())
	}
}
