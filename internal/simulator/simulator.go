// Package simulator streams scripted emergency calls as interim-transcription
// fragments, the way a live speech-to-text source would.
package simulator

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/observability/logging"
)

// Exchange is one caller utterance and the dispatcher's reply. Either may be empty.
type Exchange struct {
	Caller     string
	Dispatcher string
}

// DefaultScript is a cardiac call from first contact to paramedic arrival.
var DefaultScript = []Exchange{
	{"Hello, 911? I need help!", "911, what's your emergency?"},
	{"My husband collapsed at home, he's not responding", "Okay, is he breathing? Can you check if he's conscious?"},
	{"He's breathing but unconscious, we're at 123 Oak Street", "I'm sending paramedics to 123 Oak Street right now. What's his age?"},
	{"He's 45 years old, has a history of heart problems", "Okay, does he take any heart medications? And what's your name?"},
	{"His skin looks pale and sweaty, I'm Sarah", "Sarah, I need you to stay calm. Are there any obvious injuries? Any blood?"},
	{"No injuries that I can see, but he was complaining about chest pain earlier", "That's important information. Is he still breathing normally? Don't move him."},
	{"Yes, still breathing. The ambulance should use the front door, it's a blue house", "Got it, blue house, front door. Do you know CPR in case his breathing changes?"},
	{"Yes, I know CPR but he's still breathing on his own", "Perfect. The paramedics are 3 minutes away. Stay with him and keep talking to him."},
	{"Should I try to wake him up? He's making some sounds now", "Don't try to wake him forcefully. Just talk to him gently. Any sounds are actually good."},
	{"Okay, I can hear the sirens now. Thank you so much for your help", "You did great, Sarah. The paramedics will take excellent care of him."},
}

// Sender delivers one event. The hub client satisfies it.
type Sender interface {
	Send(v any) error
}

// Config controls fragmenting and pacing.
type Config struct {
	// WordsPerFragment is the fragment size in words. Default 3.
	WordsPerFragment int
	// JitterWindow shuffles fragments inside consecutive windows of this
	// many fragments. 0 or 1 keeps arrival order.
	JitterWindow int
	Seed         uint64

	// FragmentDelay separates fragments of one utterance; Interval separates exchanges.
	FragmentDelay time.Duration
	Interval      time.Duration
}

// Simulator turns exchanges into tagged fragments.
type Simulator struct {
	cfg    Config
	rng    *rand.Rand
	seq    int64
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a simulator.
func New(cfg Config) *Simulator {
	if cfg.WordsPerFragment <= 0 {
		cfg.WordsPerFragment = 3
	}
	return &Simulator{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		now:    time.Now,
		logger: logging.WithComponent("simulator"),
	}
}

// Split cuts text into fragments of n words.
func Split(text string, n int) []string {
	words := strings.Fields(text)
	if n <= 0 {
		n = 1
	}
	var out []string
	for i := 0; i < len(words); i += n {
		end := min(i+n, len(words))
		out = append(out, strings.Join(words[i:end], " "))
	}
	return out
}

// Utterance returns the events for one utterance by role, in send order.
// Sequence numbers and timestamps reflect speaking order; send order may be
// jittered.
func (s *Simulator) Utterance(role, text string) []models.InboundEvent {
	parts := Split(text, s.cfg.WordsPerFragment)
	base := s.now().UnixMilli()

	events := make([]models.InboundEvent, len(parts))
	for i, p := range parts {
		s.seq++
		events[i] = models.InboundEvent{
			Event: models.EventInterimTranscription,
			Text:  p,
			Metadata: &models.TranscriptionMetadata{
				Role:           role,
				Timestamp:      models.DigitString(strconv.FormatInt(base+int64(i)*10, 10)),
				SequenceNumber: s.seq,
			},
		}
	}
	s.jitter(events)
	return events
}

func (s *Simulator) jitter(events []models.InboundEvent) {
	w := s.cfg.JitterWindow
	if w <= 1 {
		return
	}
	for start := 0; start < len(events); start += w {
		window := events[start:min(start+w, len(events))]
		s.rng.Shuffle(len(window), func(i, j int) { window[i], window[j] = window[j], window[i] })
	}
}

// Run streams script through send until done or ctx is cancelled. The
// dispatcher speaks as "agent", the transcription source's name for it.
func (s *Simulator) Run(ctx context.Context, script []Exchange, send Sender) error {
	for i, ex := range script {
		s.logger.Info().Int("exchange", i+1).Int("of", len(script)).Str("caller", ex.Caller).Msg("Streaming exchange")

		if err := s.stream(ctx, s.Utterance("caller", ex.Caller), send); err != nil {
			return err
		}
		if err := s.stream(ctx, s.Utterance("agent", ex.Dispatcher), send); err != nil {
			return err
		}
		if i < len(script)-1 {
			if err := sleep(ctx, s.cfg.Interval); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simulator) stream(ctx context.Context, events []models.InboundEvent, send Sender) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := send.Send(ev); err != nil {
			return err
		}
		if err := sleep(ctx, s.cfg.FragmentDelay); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
