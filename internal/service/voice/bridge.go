package voice

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/scheduler"
)

// Target is the conversation a transcript is delivered to.
type Target interface {
	ID() string
	SetInput(text string)
	Submit(text string) bool
}

// BridgeOptions configures NewBridge.
type BridgeOptions struct {
	AutoSubmit  bool
	SubmitDelay time.Duration
	Scheduler   scheduler.Scheduler
	Logger      *zap.Logger
	// OnTranscript observes every transcript before it reaches the target.
	OnTranscript func(string)
}

// Bridge feeds transcripts into a conversation: the text lands in the input
// buffer and, with auto-submit on, is sent shortly after.
type Bridge struct {
	transcriber  *Transcriber
	target       Target
	autoSubmit   bool
	submitDelay  time.Duration
	sched        scheduler.Scheduler
	logger       *zap.Logger
	onTranscript func(string)

	mu      sync.Mutex
	pending scheduler.Task
	closed  bool
}

func NewBridge(transcriber *Transcriber, target Target, opts BridgeOptions) *Bridge {
	if opts.SubmitDelay <= 0 {
		opts.SubmitDelay = DefaultSubmitDelay
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bridge{
		transcriber:  transcriber,
		target:       target,
		autoSubmit:   opts.AutoSubmit,
		submitDelay:  opts.SubmitDelay,
		sched:        opts.Scheduler,
		logger:       opts.Logger.With(zap.String("session_id", target.ID())),
		onTranscript: opts.OnTranscript,
	}
}

// Start begins listening on behalf of the target.
func (b *Bridge) Start() {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	b.transcriber.StartListening(b.handleTranscript)
}

// Stop ends listening. A submission already scheduled still goes through.
func (b *Bridge) Stop() {
	b.transcriber.StopListening()
}

// SetAutoSubmit switches auto-submit for transcripts delivered from now on.
func (b *Bridge) SetAutoSubmit(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoSubmit = on
}

// Close stops listening and cancels any scheduled submission.
func (b *Bridge) Close() {
	b.transcriber.StopListening()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
}

func (b *Bridge) handleTranscript(text string) {
	b.mu.Lock()
	closed, auto := b.closed, b.autoSubmit
	b.mu.Unlock()
	if closed {
		return
	}

	if b.onTranscript != nil {
		b.onTranscript(text)
	}
	b.target.SetInput(text)
	b.logger.Info("voice transcript delivered", zap.Bool("auto_submit", auto))

	if !auto {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending != nil {
		b.pending.Stop()
	}
	b.pending = b.sched.AfterFunc(b.submitDelay, func() {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		b.pending = nil
		b.mu.Unlock()

		if !b.target.Submit(text) {
			b.logger.Warn("auto-submit rejected")
		}
	})
}
