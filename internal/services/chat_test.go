package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dermalens/dermalens-backend/internal/repos"
	"github.com/dermalens/dermalens-backend/internal/repos/testutil"
	"github.com/dermalens/dermalens-backend/internal/types"
)

type fakeChatClient struct {
	reply     string
	gotSystem string
	gotTurns  []ChatTurn
}

func (f *fakeChatClient) AnalyzeSkin(ctx context.Context, imageURLs []string) (*SkinAnalysis, string, error) {
	return nil, "", errors.New("not used")
}

func (f *fakeChatClient) ChatReply(ctx context.Context, system string, turns []ChatTurn) (string, string, error) {
	f.gotSystem = system
	f.gotTurns = turns
	return f.reply, "chat-test-1", nil
}

func newChatService(t *testing.T, client OpenAIClient) ChatService {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return NewChatService(
		db,
		log,
		repos.NewChatMessageRepo(db, log),
		repos.NewScanRepo(db, log),
		repos.NewTreatmentPlanRepo(db, log),
		client,
	)
}

func TestSendMessagePersistsBothTurns(t *testing.T) {
	db := testutil.DB(t)
	client := &fakeChatClient{reply: "Keep going, your redness is trending down."}
	cs := newChatService(t, client)
	user := createTestUser(t, db, "redness", false)
	createScan(t, db, user.ID, types.ScanStatusCompleted, 1, fullScores(55))

	msg, err := cs.SendMessage(authedCtx(user.ID), "", "why is my skin red?", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Role != "assistant" || msg.SessionID == "" {
		t.Fatalf("unexpected assistant message: role=%s session=%q", msg.Role, msg.SessionID)
	}
	if msg.ModelUsed != "chat-test-1" {
		t.Fatalf("model = %q", msg.ModelUsed)
	}
	if msg.CurrentScanID == nil {
		t.Fatal("assistant message must pin the scan context")
	}
	if !strings.Contains(client.gotSystem, "redness=55.0") {
		t.Fatalf("system prompt missing scan scores: %q", client.gotSystem)
	}
	if len(client.gotTurns) != 1 || client.gotTurns[0].Role != "user" {
		t.Fatalf("unexpected turns: %+v", client.gotTurns)
	}

	history, hErr := cs.GetSessionHistory(authedCtx(user.ID), msg.SessionID)
	if hErr != nil {
		t.Fatalf("history: %v", hErr)
	}
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("history must hold both turns in order, got %d", len(history))
	}
}

func TestSendMessageFlagsMedicalAdvice(t *testing.T) {
	client := &fakeChatClient{reply: "That sounds persistent; please see a dermatologist."}
	cs := newChatService(t, client)
	user := createTestUser(t, testutil.DB(t), "acne", false)

	msg, err := cs.SendMessage(authedCtx(user.ID), "", "my cheeks burn after every wash", []string{"severe burning"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !msg.ContainsMedicalAdvice {
		t.Fatal("reply naming a dermatologist must be flagged")
	}
	if !msg.RequiresFollowUp {
		t.Fatal("a severe reported concern must require follow-up")
	}
}

func TestDeleteSessionRemovesOnlyThatSession(t *testing.T) {
	client := &fakeChatClient{reply: "ok"}
	cs := newChatService(t, client)
	user := createTestUser(t, testutil.DB(t), "acne", false)

	first, err := cs.SendMessage(authedCtx(user.ID), "", "hello", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	second, err := cs.SendMessage(authedCtx(user.ID), "", "hello again", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	deleted, dErr := cs.DeleteSession(authedCtx(user.ID), first.SessionID)
	if dErr != nil {
		t.Fatalf("delete: %v", dErr)
	}
	if deleted != 2 {
		t.Fatalf("deleted %d rows, want 2", deleted)
	}

	remaining, hErr := cs.GetSessionHistory(authedCtx(user.ID), second.SessionID)
	if hErr != nil {
		t.Fatalf("history: %v", hErr)
	}
	if len(remaining) != 2 {
		t.Fatalf("other session lost rows: %d", len(remaining))
	}
}
