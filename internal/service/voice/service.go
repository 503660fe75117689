package voice

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/model/voice"
	"github.com/zhouzirui/mamacare/backend/internal/scheduler"
)

var ErrNotStarted = errors.New("voice input was never started for this session")

// Config holds the voice timings.
type Config struct {
	Transcript      string
	TranscriptDelay time.Duration
	SubmitDelay     time.Duration
	AutoSubmit      bool
}

// StatusListener is told about listening state changes of one session.
type StatusListener func(voice.State)

// Service keeps one voice bridge per conversation session.
type Service struct {
	cfg    Config
	sched  scheduler.Scheduler
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	bridge      *Bridge
	transcriber *Transcriber
	autoSubmit  bool
	last        string
	updatedAt   time.Time
	listeners   map[uint64]StatusListener
	nextID      uint64
}

func NewService(cfg Config, sched scheduler.Scheduler, logger *zap.Logger) *Service {
	if cfg.TranscriptDelay <= 0 {
		cfg.TranscriptDelay = DefaultTranscriptDelay
	}
	if cfg.SubmitDelay <= 0 {
		cfg.SubmitDelay = DefaultSubmitDelay
	}
	if sched == nil {
		sched = scheduler.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:     cfg,
		sched:   sched,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Start begins listening for the target. A non-nil autoSubmit picks the mode
// for this session, but Config.AutoSubmit off disables auto-submit everywhere.
func (s *Service) Start(target Target, autoSubmit *bool) voice.State {
	e := s.ensure(target, autoSubmit)
	e.bridge.Start()
	return s.State(target.ID())
}

// Stop cancels listening for the session.
func (s *Service) Stop(sessionID string) (voice.State, error) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	s.mu.Unlock()
	if !ok {
		return voice.State{}, ErrNotStarted
	}
	e.bridge.Stop()
	return s.State(sessionID), nil
}

// State reports the voice state of a session. Sessions that never used voice are idle.
func (s *Service) State(sessionID string) voice.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(sessionID)
}

func (s *Service) stateLocked(sessionID string) voice.State {
	e, ok := s.entries[sessionID]
	if !ok {
		return voice.State{SessionID: sessionID, Status: voice.StatusIdle, AutoSubmit: s.cfg.AutoSubmit}
	}
	return voice.State{
		SessionID:      sessionID,
		Status:         e.transcriber.Status(),
		AutoSubmit:     e.autoSubmit,
		LastTranscript: e.last,
		UpdatedAt:      e.updatedAt,
	}
}

// Watch registers a listener for state changes of the session. The returned func removes it.
func (s *Service) Watch(target Target, fn StatusListener) func() {
	e := s.ensure(target, nil)

	s.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(e.listeners, id)
		s.mu.Unlock()
	}
}

// Forget closes the session's bridge. Used when the conversation is torn down.
func (s *Service) Forget(sessionID string) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	delete(s.entries, sessionID)
	s.mu.Unlock()
	if ok {
		e.bridge.Close()
	}
}

func (s *Service) ensure(target Target, autoSubmit *bool) *entry {
	id := target.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	auto := s.cfg.AutoSubmit
	if autoSubmit != nil {
		auto = *autoSubmit && s.cfg.AutoSubmit
	}

	if e, ok := s.entries[id]; ok {
		if autoSubmit != nil {
			e.autoSubmit = auto
			e.bridge.SetAutoSubmit(auto)
		}
		return e
	}

	e := &entry{autoSubmit: auto, listeners: make(map[uint64]StatusListener)}
	e.transcriber = NewTranscriber(TranscriberOptions{
		Transcript: s.cfg.Transcript,
		Delay:      s.cfg.TranscriptDelay,
		Scheduler:  s.sched,
		Logger:     s.logger.With(zap.String("session_id", id)),
		OnStatus:   func(voice.Status) { s.notify(id) },
	})
	e.bridge = s.newBridge(e, target, auto)
	s.entries[id] = e
	return e
}

func (s *Service) newBridge(e *entry, target Target, auto bool) *Bridge {
	return NewBridge(e.transcriber, target, BridgeOptions{
		AutoSubmit:  auto,
		SubmitDelay: s.cfg.SubmitDelay,
		Scheduler:   s.sched,
		Logger:      s.logger,
		OnTranscript: func(text string) {
			s.mu.Lock()
			e.last = text
			s.mu.Unlock()
		},
	})
}

func (s *Service) notify(sessionID string) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.updatedAt = time.Now().UTC()
	state := s.stateLocked(sessionID)
	listeners := make([]StatusListener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
