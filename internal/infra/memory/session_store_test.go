package memory

import (
	"context"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	service := newBackingService(store)

	info, err := service.Create(context.Background(), "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	session, ok := store.Get(info.SessionID)
	if !ok || session.ID() != info.SessionID {
		t.Fatalf("expected stored session, got ok=%v", ok)
	}

	count := 0
	store.Range(func(*app.Session) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("expected 1 session in range, got %d", count)
	}

	store.Delete(info.SessionID)
	if _, ok := store.Get(info.SessionID); ok {
		t.Fatalf("expected session removed")
	}
}

func newBackingService(store *SessionStore) *app.SessionService {
	quizzes := NewQuizRepository(NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
	}), time.Minute)
	return app.NewSessionService(store, NewCodeRegistry(), quizzes, NewResultsStore(), app.Options{})
}
