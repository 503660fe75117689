package voice

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/model/voice"
	"github.com/zhouzirui/mamacare/backend/internal/scheduler"
)

const (
	// DefaultTranscriptDelay is how long the simulated recognizer "listens".
	DefaultTranscriptDelay = 3000 * time.Millisecond
	// DefaultSubmitDelay lets the input field show the transcript before auto-submit.
	DefaultSubmitDelay = 500 * time.Millisecond
)

// TranscriberOptions configures NewTranscriber.
type TranscriberOptions struct {
	Transcript string
	Delay      time.Duration
	Scheduler  scheduler.Scheduler
	OnStatus   func(voice.Status)
	Logger     *zap.Logger
}

// Transcriber simulates speech recognition: after a fixed delay it yields a canned transcript.
type Transcriber struct {
	transcript string
	delay      time.Duration
	sched      scheduler.Scheduler
	onStatus   func(voice.Status)
	logger     *zap.Logger

	mu         sync.Mutex
	status     voice.Status
	pending    scheduler.Task
	generation uint64
}

func NewTranscriber(opts TranscriberOptions) *Transcriber {
	if opts.Delay <= 0 {
		opts.Delay = DefaultTranscriptDelay
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Transcriber{
		transcript: opts.Transcript,
		delay:      opts.Delay,
		sched:      opts.Scheduler,
		onStatus:   opts.OnStatus,
		logger:     opts.Logger,
		status:     voice.StatusIdle,
	}
}

// StartListening reports listening right away and calls onTranscript once when the delay elapses.
// Starting again while listening replaces the earlier request.
func (t *Transcriber) StartListening(onTranscript func(string)) {
	t.mu.Lock()
	if t.pending != nil {
		t.pending.Stop()
	}
	t.generation++
	gen := t.generation
	t.status = voice.StatusListening
	t.pending = t.sched.AfterFunc(t.delay, func() { t.deliver(gen, onTranscript) })
	t.mu.Unlock()

	t.logger.Debug("voice listening started", zap.Duration("delay", t.delay))
	t.report(voice.StatusListening)
}

// StopListening cancels a pending transcript. The callback will not fire afterwards.
func (t *Transcriber) StopListening() {
	t.mu.Lock()
	wasListening := t.status == voice.StatusListening
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.generation++
	t.status = voice.StatusIdle
	t.mu.Unlock()

	if wasListening {
		t.logger.Debug("voice listening stopped")
		t.report(voice.StatusIdle)
	}
}

// Status returns the current listening state.
func (t *Transcriber) Status() voice.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transcriber) deliver(gen uint64, onTranscript func(string)) {
	t.mu.Lock()
	if gen != t.generation || t.status != voice.StatusListening {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.status = voice.StatusIdle
	t.mu.Unlock()

	if onTranscript != nil {
		onTranscript(t.transcript)
	}

	t.mu.Lock()
	restarted := gen != t.generation
	t.mu.Unlock()
	if !restarted {
		t.report(voice.StatusIdle)
	}
}

func (t *Transcriber) report(status voice.Status) {
	if t.onStatus != nil {
		t.onStatus(status)
	}
}
