package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/catalog"
	"github.com/zhouzirui/mamacare/backend/internal/model/profile"
	"github.com/zhouzirui/mamacare/backend/internal/scheduler"
	"github.com/zhouzirui/mamacare/backend/internal/service/assistant"
)

var (
	ErrProfileRequired = errors.New("profile id is required")
	ErrProfileNotFound = errors.New("profile not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Options wires the Service dependencies.
type Options struct {
	Catalog       *catalog.Catalog
	Profiles      profile.Store
	Scheduler     scheduler.Scheduler
	Picker        catalog.Picker
	ResponseDelay time.Duration
	Logger        *zap.Logger
}

// Service keeps the live conversation sessions of this process.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	catalog  *catalog.Catalog
	profiles profile.Store
	engines  map[assistant.Mode]*assistant.Engine
	sched    scheduler.Scheduler
	delay    time.Duration
	logger   *zap.Logger
}

// NewService builds one reply engine per mode and an empty session table.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	if opts.Catalog == nil {
		return nil, assistant.ErrCatalogMissing
	}
	if opts.Profiles == nil {
		opts.Profiles = profile.NewMemoryStore(profile.Seed())
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.Real{}
	}
	if opts.ResponseDelay <= 0 {
		opts.ResponseDelay = DefaultResponseDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Picker == nil {
		opts.Picker = catalog.NewRandomPicker()
	}

	engines := make(map[assistant.Mode]*assistant.Engine, 2)
	for _, mode := range []assistant.Mode{assistant.ModePlain, assistant.ModeRich} {
		engine, err := assistant.NewEngine(ctx, opts.Catalog, mode, opts.Picker)
		if err != nil {
			return nil, fmt.Errorf("build %s engine: %w", mode, err)
		}
		engines[mode] = engine
	}

	for _, p := range opts.Profiles.List() {
		if _, err := assistant.ParseMode(p.Mode); err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.ID, err)
		}
	}

	return &Service{
		sessions: make(map[string]*Session),
		catalog:  opts.Catalog,
		profiles: opts.Profiles,
		engines:  engines,
		sched:    opts.Scheduler,
		delay:    opts.ResponseDelay,
		logger:   opts.Logger,
	}, nil
}

// Profiles exposes the profile store sessions are created from.
func (s *Service) Profiles() profile.Store {
	return s.profiles
}

// CreateSession starts a conversation for the given assistant profile.
func (s *Service) CreateSession(_ context.Context, profileID string) (*Session, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, ErrProfileRequired
	}

	p, ok := s.profiles.FindByID(profileID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	}

	mode, err := assistant.ParseMode(p.Mode)
	if err != nil {
		return nil, err
	}

	greeting := strings.TrimSpace(p.OpeningLine)
	if greeting == "" {
		greeting = s.catalog.Greeting
	}

	engine := s.engines[mode]
	session := NewSession(SessionOptions{
		ID:            uuid.NewString(),
		ProfileID:     p.ID,
		Greeting:      greeting,
		Responder:     engine,
		Scheduler:     s.sched,
		ResponseDelay: s.delay,
		Logger:        s.logger,
	})

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	s.logger.Info("session created",
		zap.String("session_id", session.ID()),
		zap.String("profile_id", p.ID),
		zap.String("mode", string(engine.Mode())),
	)
	return session, nil
}

// GetSession retrieves a live session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// CloseSession tears a session down and forgets it.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Close()
	return nil
}

// Shutdown closes every live session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

// Len returns the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
