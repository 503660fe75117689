package voice

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mamacare/backend/internal/model/chat"
	voiceModel "github.com/zhouzirui/mamacare/backend/internal/model/voice"
	chatservice "github.com/zhouzirui/mamacare/backend/internal/service/chat"
	voicesvc "github.com/zhouzirui/mamacare/backend/internal/service/voice"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, f *fixture, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(received) bool) received {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg received
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read err: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func ofType(kind string) func(received) bool {
	return func(msg received) bool { return msg.Type == kind }
}

func assistantMessage(msg received) bool {
	if msg.Type != string(chatservice.EventMessage) {
		return false
	}
	var ev chatservice.Event
	return json.Unmarshal(msg.Data, &ev) == nil && ev.Message != nil && ev.Message.Sender == chat.SenderAssistant
}

func send(t *testing.T, conn *websocket.Conn, kind string, data any) {
	t.Helper()
	raw, _ := json.Marshal(data)
	if err := conn.WriteJSON(map[string]any{"type": kind, "data": json.RawMessage(raw)}); err != nil {
		t.Fatalf("write err: %v", err)
	}
}

func TestWebSocketTextRoundTrip(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-companion")
	conn := dial(t, f, session.ID())

	readUntil(t, conn, ofType(msgConnected))

	send(t, conn, "text", TextMessage{Text: "when will she start crawling"})
	ack := readUntil(t, conn, ofType(msgAck))
	var accepted map[string]bool
	_ = json.Unmarshal(ack.Data, &accepted)
	if !accepted["accepted"] {
		t.Fatalf("expected accepted ack, got %s", ack.Data)
	}

	f.clock.Advance(chatservice.DefaultResponseDelay)
	reply := readUntil(t, conn, assistantMessage)

	var ev chatservice.Event
	_ = json.Unmarshal(reply.Data, &ev)
	if ev.Message.ID != 3 {
		t.Fatalf("expected reply id 3, got %d", ev.Message.ID)
	}
}

func TestWebSocketVoiceFlow(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-guide")
	conn := dial(t, f, session.ID())

	readUntil(t, conn, ofType(msgConnected))

	send(t, conn, "voice", VoiceCommand{Action: "start"})
	listening := readUntil(t, conn, ofType(msgVoice))
	var state voiceModel.State
	_ = json.Unmarshal(listening.Data, &state)
	if state.Status != voiceModel.StatusListening {
		t.Fatalf("expected listening, got %+v", state)
	}

	f.clock.Advance(voicesvc.DefaultTranscriptDelay + voicesvc.DefaultSubmitDelay)
	readUntil(t, conn, func(msg received) bool {
		if msg.Type != string(chatservice.EventMessage) {
			return false
		}
		var ev chatservice.Event
		return json.Unmarshal(msg.Data, &ev) == nil && ev.Message != nil && ev.Message.Text == f.catalog.VoiceTranscript
	})

	f.clock.Advance(chatservice.DefaultResponseDelay)
	readUntil(t, conn, assistantMessage)
}

func TestWebSocketUnknownType(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-guide")
	conn := dial(t, f, session.ID())

	readUntil(t, conn, ofType(msgConnected))
	send(t, conn, "dance", map[string]string{})
	readUntil(t, conn, ofType(msgError))
}

func TestWebSocketClosesWithSession(t *testing.T) {
	f := setup(t)
	session, _ := f.chatSvc.CreateSession(context.Background(), "care-guide")
	conn := dial(t, f, session.ID())

	readUntil(t, conn, ofType(msgConnected))
	if err := f.chatSvc.CloseSession(context.Background(), session.ID()); err != nil {
		t.Fatalf("CloseSession err: %v", err)
	}
	readUntil(t, conn, ofType(string(chatservice.EventClosed)))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to close after the session closed")
	}
}
