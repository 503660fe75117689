package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/model/chat"
	"github.com/zhouzirui/mamacare/backend/internal/scheduler"
	"github.com/zhouzirui/mamacare/backend/internal/service/assistant"
)

// DefaultResponseDelay is the simulated time the assistant "types" before answering.
const DefaultResponseDelay = 1500 * time.Millisecond

// Responder produces assistant replies. *assistant.Engine satisfies it.
type Responder interface {
	Reply(ctx context.Context, text string) (assistant.Reply, error)
	Fallback() assistant.Reply
}

// EventKind names what changed in a session.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventTyping  EventKind = "typing"
	EventInput   EventKind = "input"
	EventAIInfo  EventKind = "aiInfo"
	EventClosed  EventKind = "closed"
)

// Event is pushed to subscribers whenever the observable state changes.
type Event struct {
	Kind       EventKind     `json:"kind"`
	SessionID  string        `json:"sessionId"`
	Message    *chat.Message `json:"message,omitempty"`
	Typing     bool          `json:"typing"`
	Input      string        `json:"input"`
	ShowAIInfo bool          `json:"showAiInfo"`
}

// SessionOptions configures NewSession.
type SessionOptions struct {
	ID            string
	ProfileID     string
	Greeting      string
	Responder     Responder
	Scheduler     scheduler.Scheduler
	ResponseDelay time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

// Session owns one conversation: the ordered message log, the shared id
// counter, the number of pending completions and the showAiInfo flag.
//
// The assistant is typing while at least one completion is pending, so
// overlapping submissions keep the flag up until the last one lands.
type Session struct {
	id        string
	profileID string
	createdAt time.Time
	responder Responder
	sched     scheduler.Scheduler
	delay     time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu         sync.Mutex
	messages   []chat.Message
	lastID     int
	inFlight   int
	showAIInfo bool
	input      string
	closed     bool
	subs       map[uint64]chan Event
	nextSub    uint64

	// Replies are appended in submission order even when a later one is
	// computed first: each submit takes a ticket and finished replies wait
	// in ready until every earlier ticket has been appended.
	nextTicket uint64
	appendTurn uint64
	ready      map[uint64]assistant.Reply
}

// NewSession creates a session seeded with the greeting as message 1.
func NewSession(opts SessionOptions) *Session {
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.Real{}
	}
	if opts.ResponseDelay <= 0 {
		opts.ResponseDelay = DefaultResponseDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		id:        opts.ID,
		profileID: opts.ProfileID,
		createdAt: opts.Now().UTC(),
		responder: opts.Responder,
		sched:     opts.Scheduler,
		delay:     opts.ResponseDelay,
		logger:    opts.Logger.With(zap.String("session_id", opts.ID)),
		now:       opts.Now,
		messages:  make([]chat.Message, 0, 16),
		subs:      make(map[uint64]chan Event),
		ready:     make(map[uint64]assistant.Reply),
	}
	s.appendLocked(chat.SenderAssistant, opts.Greeting, nil)
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ProfileID() string { return s.profileID }

// Submit records a user message and schedules the assistant's reply.
// Blank text is ignored and reported as false.
func (s *Session) Submit(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	msg := s.appendLocked(chat.SenderUser, text, nil)
	s.publishLocked(Event{Kind: EventMessage, Message: &msg})

	if s.input != "" {
		s.input = ""
		s.publishLocked(Event{Kind: EventInput})
	}

	s.inFlight++
	if s.inFlight == 1 {
		s.publishLocked(Event{Kind: EventTyping})
	}

	ticket := s.nextTicket
	s.nextTicket++
	s.sched.AfterFunc(s.delay, func() { s.complete(ticket, text) })
	s.logger.Debug("user message accepted", zap.Int("message_id", msg.ID), zap.Int("in_flight", s.inFlight))
	return true
}

// complete runs when a scheduled reply comes due. It is a no-op after Close.
func (s *Session) complete(ticket uint64, text string) {
	if s.Closed() {
		s.logger.Debug("dropping completion for closed session")
		return
	}

	reply, err := s.responder.Reply(context.Background(), text)
	if err != nil {
		s.logger.Error("reply generation failed, using fallback", zap.Error(err))
		reply = s.responder.Fallback()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.ready[ticket] = reply
	for {
		next, ok := s.ready[s.appendTurn]
		if !ok {
			break
		}
		delete(s.ready, s.appendTurn)
		s.appendTurn++
		s.appendReplyLocked(next)
	}
}

func (s *Session) appendReplyLocked(reply assistant.Reply) {
	msg := s.appendLocked(chat.SenderAssistant, reply.Text, reply.Attachments)
	s.publishLocked(Event{Kind: EventMessage, Message: &msg})

	if reply.EnablesAIInfo && !s.showAIInfo {
		s.showAIInfo = true
		s.publishLocked(Event{Kind: EventAIInfo})
	}

	s.inFlight--
	if s.inFlight == 0 {
		s.publishLocked(Event{Kind: EventTyping})
	}

	s.logger.Debug("assistant reply appended",
		zap.Int("message_id", msg.ID),
		zap.String("category", string(reply.Category)),
		zap.String("rule", reply.Rule),
		zap.Int("attachments", len(reply.Attachments)),
	)
}

func (s *Session) appendLocked(sender chat.Sender, text string, attachments []chat.Attachment) chat.Message {
	s.lastID++
	msg := chat.Message{
		ID:          s.lastID,
		Text:        text,
		Sender:      sender,
		Attachments: append([]chat.Attachment{}, attachments...),
		CreatedAt:   s.now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg.Clone()
}

// SetInput replaces the pending input buffer, e.g. with a voice transcript.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.input == text {
		return
	}
	s.input = text
	s.publishLocked(Event{Kind: EventInput})
}

// Input returns the pending input buffer.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesLocked()
}

func (s *Session) messagesLocked() []chat.Message {
	out := make([]chat.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.Clone()
	}
	return out
}

// IsTyping reports whether any reply is still pending.
func (s *Session) IsTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// InFlight returns the number of pending replies.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// ShowAIInfo reports whether the AI info panel was unlocked. Once true it stays true.
func (s *Session) ShowAIInfo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showAIInfo
}

// Closed reports whether the session was torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns the full observable state.
func (s *Session) Snapshot() chat.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.Snapshot{
		ID:         s.id,
		ProfileID:  s.profileID,
		Messages:   s.messagesLocked(),
		Typing:     s.inFlight > 0,
		ShowAIInfo: s.showAIInfo,
		Input:      s.input,
		CreatedAt:  s.createdAt,
	}
}

// Subscribe streams state changes. The returned cancel func must be called
// once the consumer is done; the channel is closed by cancel or Close.
// Events are dropped for a subscriber whose buffer is full.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	s.nextSub++
	key := s.nextSub
	s.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[key]; ok {
				delete(s.subs, key)
				close(sub)
			}
		})
	}
}

func (s *Session) publishLocked(ev Event) {
	ev.SessionID = s.id
	ev.Typing = s.inFlight > 0
	ev.Input = s.input
	ev.ShowAIInfo = s.showAIInfo

	for key, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("subscriber buffer full, dropping event",
				zap.Uint64("subscriber", key), zap.String("kind", string(ev.Kind)))
		}
	}
}

// Close tears the session down. Replies still pending are dropped when they fire.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.ready = make(map[uint64]assistant.Reply)
	s.publishLocked(Event{Kind: EventClosed})
	for key, ch := range s.subs {
		delete(s.subs, key)
		close(ch)
	}
	s.logger.Info("session closed", zap.Int("pending_replies", s.inFlight), zap.Int("messages", len(s.messages)))
}
