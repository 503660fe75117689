package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mamacare/backend/internal/catalog"
	"github.com/zhouzirui/mamacare/backend/internal/model/chat"
	"github.com/zhouzirui/mamacare/backend/internal/model/profile"
	voiceModel "github.com/zhouzirui/mamacare/backend/internal/model/voice"
	"github.com/zhouzirui/mamacare/backend/internal/scheduler"
	chatservice "github.com/zhouzirui/mamacare/backend/internal/service/chat"
	voicesvc "github.com/zhouzirui/mamacare/backend/internal/service/voice"
)

type fixture struct {
	router   *chi.Mux
	chatSvc  *chatservice.Service
	voiceSvc *voicesvc.Service
	clock    *scheduler.Manual
	catalog  *catalog.Catalog
}

func setup(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default err: %v", err)
	}
	clock := scheduler.NewManual()
	profiles := profile.NewMemoryStore(profile.Seed())
	chatSvc, err := chatservice.NewService(context.Background(), chatservice.Options{
		Catalog:   cat,
		Profiles:  profiles,
		Scheduler: clock,
		Picker:    catalog.NewSeededPicker(11),
	})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	voiceSvc := voicesvc.NewService(voicesvc.Config{Transcript: cat.VoiceTranscript, AutoSubmit: true}, clock, nil)

	r := chi.NewRouter()
	New(voiceSvc, chatSvc, profiles, nil).RegisterRoutes(r)
	return &fixture{router: r, chatSvc: chatSvc, voiceSvc: voiceSvc, clock: clock, catalog: cat}
}

func (f *fixture) do(t *testing.T, method, path string, body any) voiceModel.State {
	t.Helper()
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("%s %s: expected 200, got %d: %s", method, path, resp.Code, resp.Body.String())
	}
	var state voiceModel.State
	if err := json.Unmarshal(resp.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return state
}

func TestVoiceStartUsesProfileAutoSubmit(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-guide")

	state := f.do(t, http.MethodPost, "/sessions/"+session.ID()+"/voice/start", nil)
	if state.Status != voiceModel.StatusListening || !state.AutoSubmit {
		t.Fatalf("unexpected start state: %+v", state)
	}

	f.clock.Advance(voicesvc.DefaultTranscriptDelay)
	if session.Input() != f.catalog.VoiceTranscript {
		t.Fatalf("expected transcript in input, got %q", session.Input())
	}

	f.clock.Advance(voicesvc.DefaultSubmitDelay)
	messages := session.Messages()
	last := messages[len(messages)-1]
	if last.Sender != chat.SenderUser || last.Text != f.catalog.VoiceTranscript {
		t.Fatalf("expected transcript auto-submitted, got %+v", last)
	}
	if session.Input() != "" {
		t.Fatal("submission should clear the input")
	}

	state = f.do(t, http.MethodGet, "/sessions/"+session.ID()+"/voice", nil)
	if state.Status != voiceModel.StatusIdle || state.LastTranscript != f.catalog.VoiceTranscript {
		t.Fatalf("unexpected final state: %+v", state)
	}
}

func TestVoiceWithoutAutoSubmitOnlyFillsInput(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-companion")

	state := f.do(t, http.MethodPost, "/sessions/"+session.ID()+"/voice/start", nil)
	if state.AutoSubmit {
		t.Fatal("care-companion does not auto-submit")
	}

	f.clock.Advance(voicesvc.DefaultTranscriptDelay + voicesvc.DefaultSubmitDelay)
	if session.Input() != f.catalog.VoiceTranscript || len(session.Messages()) != 1 {
		t.Fatalf("expected input only, got input=%q messages=%d", session.Input(), len(session.Messages()))
	}
}

func TestVoiceStartOverride(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-guide")

	state := f.do(t, http.MethodPost, "/sessions/"+session.ID()+"/voice/start", map[string]bool{"autoSubmit": false})
	if state.AutoSubmit {
		t.Fatalf("override ignored: %+v", state)
	}
}

func TestVoiceStopCancelsTranscript(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-guide")

	f.do(t, http.MethodPost, "/sessions/"+session.ID()+"/voice/start", nil)
	f.clock.Advance(voicesvc.DefaultTranscriptDelay / 2)
	state := f.do(t, http.MethodPost, "/sessions/"+session.ID()+"/voice/stop", nil)
	if state.Status != voiceModel.StatusIdle {
		t.Fatalf("expected idle after stop, got %s", state.Status)
	}

	f.clock.Advance(voicesvc.DefaultTranscriptDelay)
	if session.Input() != "" || len(session.Messages()) != 1 {
		t.Fatal("stopped voice input must not deliver a transcript")
	}
}

func TestVoiceStopWithoutStart(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-guide")

	if state := f.do(t, http.MethodPost, "/sessions/"+session.ID()+"/voice/stop", nil); state.Status != voiceModel.StatusIdle {
		t.Fatalf("expected idle, got %s", state.Status)
	}
}

func TestVoiceUnknownSession(t *testing.T) {
	f := setup(t)

	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/sessions/missing/voice/start", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
