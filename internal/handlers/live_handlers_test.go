package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"graho-live/internal/models"

	"github.com/gorilla/websocket"
)

func dialLive(t *testing.T, env *testEnv, user *models.User) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/live?token=" + tokenFor(user)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed for user %s: %v", user.Name, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, envelope models.Envelope) {
	t.Helper()
	if err := conn.WriteJSON(envelope); err != nil {
		t.Fatalf("write %s failed: %v", envelope.Event, err)
	}
}

// expectEvent reads until an envelope with the wanted event arrives, skipping
// interleaved traffic like participant count updates.
func expectEvent(t *testing.T, conn *websocket.Conn, event string) models.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var envelope models.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if envelope.Event == event {
			return envelope
		}
	}
}

func decodeData(t *testing.T, envelope models.Envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("decoding %s data: %v", envelope.Event, err)
	}
}

func joinSession(t *testing.T, conn *websocket.Conn, sessionID string) models.LiveJoinedData {
	t.Helper()
	sendEnvelope(t, conn, models.NewEnvelope(models.EventJoinLiveSession, "", models.JoinLiveSessionData{
		SessionID: sessionID,
	}))
	var joined models.LiveJoinedData
	decodeData(t, expectEvent(t, conn, models.EventLiveJoined), &joined)
	return joined
}

func createSession(t *testing.T, env *testEnv) *models.LiveSession {
	t.Helper()
	session, err := env.db.CreateLiveSession(context.Background(), env.astrologer.ID, "Evening transit talk")
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return session
}

func TestLiveRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/live"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 response, got %+v", resp)
	}
}

func TestJoinAssignsHostAndAudienceRoles(t *testing.T) {
	env := newTestEnv(t)
	session := createSession(t, env)

	hostConn := dialLive(t, env, env.astrologer)
	joined := joinSession(t, hostConn, session.ID)
	if joined.Role != models.LiveRoleHost {
		t.Errorf("creator joined as %q, want host", joined.Role)
	}
	if joined.ParticipantCount != 1 {
		t.Errorf("participant count = %d, want 1", joined.ParticipantCount)
	}

	viewerConn := dialLive(t, env, env.viewer)
	joined = joinSession(t, viewerConn, session.ID)
	if joined.Role != models.LiveRoleAudience {
		t.Errorf("viewer joined as %q, want audience", joined.Role)
	}
	if joined.ParticipantCount != 2 {
		t.Errorf("participant count = %d, want 2", joined.ParticipantCount)
	}

	// The host hears about the new participant.
	var count models.ParticipantCountData
	decodeData(t, expectEvent(t, hostConn, models.EventLiveParticipantJoin), &count)
	for count.ParticipantCount != 2 {
		decodeData(t, expectEvent(t, hostConn, models.EventLiveParticipantJoin), &count)
	}
}

func TestChatMessageAckedAndRelayed(t *testing.T) {
	env := newTestEnv(t)
	session := createSession(t, env)

	hostConn := dialLive(t, env, env.astrologer)
	joinSession(t, hostConn, session.ID)
	viewerConn := dialLive(t, env, env.viewer)
	joinSession(t, viewerConn, session.ID)

	sendEnvelope(t, viewerConn, models.NewEnvelope(models.EventLiveChatMessage, "req-1", models.LiveChatMessageData{
		SessionID: session.ID,
		Message:   "namaste",
	}))

	ackEnvelope := expectEvent(t, viewerConn, models.EventAck)
	if ackEnvelope.RequestID != "req-1" {
		t.Errorf("ack request id = %q, want req-1", ackEnvelope.RequestID)
	}
	var ack models.AckData
	decodeData(t, ackEnvelope, &ack)
	if !ack.Success {
		t.Errorf("ack failed: %s", ack.Error)
	}

	var relayed models.ChatMessage
	decodeData(t, expectEvent(t, hostConn, models.EventLiveChatMessageRelay), &relayed)
	if relayed.Message != "namaste" || relayed.UserName != env.viewer.Name {
		t.Errorf("relayed message = %+v, want namaste from %s", relayed, env.viewer.Name)
	}
	if relayed.MessageType != models.ChatTypeText {
		t.Errorf("message type = %q, want text", relayed.MessageType)
	}
	if relayed.ID == "" {
		t.Error("relayed message has no id")
	}
}

func TestEmojiRelayed(t *testing.T) {
	env := newTestEnv(t)
	session := createSession(t, env)

	hostConn := dialLive(t, env, env.astrologer)
	joinSession(t, hostConn, session.ID)
	viewerConn := dialLive(t, env, env.viewer)
	joinSession(t, viewerConn, session.ID)

	sendEnvelope(t, viewerConn, models.NewEnvelope(models.EventLiveChatEmoji, "req-2", models.LiveChatEmojiData{
		SessionID: session.ID,
		Emoji:     "🙏",
	}))

	var ack models.AckData
	decodeData(t, expectEvent(t, viewerConn, models.EventAck), &ack)
	if !ack.Success {
		t.Errorf("emoji ack failed: %s", ack.Error)
	}

	var relayed models.ChatMessage
	decodeData(t, expectEvent(t, hostConn, models.EventLiveChatEmojiRelay), &relayed)
	if relayed.Message != "🙏" || relayed.MessageType != models.ChatTypeEmoji {
		t.Errorf("relayed emoji = %+v", relayed)
	}
}

func TestChatWithoutJoinRejected(t *testing.T) {
	env := newTestEnv(t)
	session := createSession(t, env)

	conn := dialLive(t, env, env.viewer)
	sendEnvelope(t, conn, models.NewEnvelope(models.EventLiveChatMessage, "req-3", models.LiveChatMessageData{
		SessionID: session.ID,
		Message:   "hello?",
	}))

	var ack models.AckData
	decodeData(t, expectEvent(t, conn, models.EventAck), &ack)
	if ack.Success {
		t.Error("chat before joining should be rejected")
	}
}

func TestJoinEndedSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	session := createSession(t, env)
	if err := env.db.EndLiveSession(context.Background(), session.ID); err != nil {
		t.Fatal(err)
	}

	conn := dialLive(t, env, env.viewer)
	sendEnvelope(t, conn, models.NewEnvelope(models.EventJoinLiveSession, "", models.JoinLiveSessionData{
		SessionID: session.ID,
	}))

	// The join is silently dropped, so a follow-up chat still fails.
	sendEnvelope(t, conn, models.NewEnvelope(models.EventLiveChatMessage, "req-4", models.LiveChatMessageData{
		SessionID: session.ID,
		Message:   "too late",
	}))
	var ack models.AckData
	decodeData(t, expectEvent(t, conn, models.EventAck), &ack)
	if ack.Success {
		t.Error("chat in an ended session should be rejected")
	}
}

func TestHostLeavingEndsSessionForEveryone(t *testing.T) {
	env := newTestEnv(t)
	session := createSession(t, env)

	hostConn := dialLive(t, env, env.astrologer)
	joinSession(t, hostConn, session.ID)
	viewerConn := dialLive(t, env, env.viewer)
	joinSession(t, viewerConn, session.ID)

	sendEnvelope(t, hostConn, models.NewEnvelope(models.EventLeaveLiveSession, "", models.LeaveLiveSessionData{
		SessionID: session.ID,
	}))

	var ended models.LiveSessionEndedData
	decodeData(t, expectEvent(t, viewerConn, models.EventLiveSessionEnded), &ended)
	if ended.SessionID != session.ID || ended.Reason != "host_left" {
		t.Errorf("ended notification = %+v, want %s/host_left", ended, session.ID)
	}
	expectEvent(t, viewerConn, models.EventLiveEnded)

	deadline := time.Now().Add(2 * time.Second)
	for env.db.sessionStatus(session.ID) != models.LiveStatusEnded {
		if time.Now().After(deadline) {
			t.Fatal("session status never became ended")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAudienceLeaveKeepsSessionLive(t *testing.T) {
	env := newTestEnv(t)
	session := createSession(t, env)

	hostConn := dialLive(t, env, env.astrologer)
	joinSession(t, hostConn, session.ID)
	viewerConn := dialLive(t, env, env.viewer)
	joinSession(t, viewerConn, session.ID)

	sendEnvelope(t, viewerConn, models.NewEnvelope(models.EventLeaveLiveSession, "", models.LeaveLiveSessionData{
		SessionID: session.ID,
	}))

	var count models.ParticipantCountData
	decodeData(t, expectEvent(t, hostConn, models.EventLiveParticipantLeft), &count)
	if count.ParticipantCount != 1 {
		t.Errorf("participant count = %d, want 1 after audience leave", count.ParticipantCount)
	}
	if got := env.db.sessionStatus(session.ID); got != models.LiveStatusLive {
		t.Errorf("session status = %q, want still live", got)
	}
}

func TestCreateLiveSessionRequiresAstrologer(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/live/sessions", strings.NewReader(`{"title":"My show"}`))
	req.Header.Set("Authorization", "Bearer "+tokenFor(env.viewer))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for non-astrologer", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, env.server.URL+"/live/sessions", strings.NewReader(`{"title":"My show"}`))
	req.Header.Set("Authorization", "Bearer "+tokenFor(env.astrologer))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201 for astrologer", resp.StatusCode)
	}

	var session models.LiveSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatal(err)
	}
	if session.Status != models.LiveStatusLive || session.HostID != env.astrologer.ID {
		t.Errorf("created session = %+v", session)
	}
}
