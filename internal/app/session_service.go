package app

import (
	"context"
	"encoding/base64"
	"log"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// SessionStore is the durable record of live and archived sessions, the single
// source of truth the other components read and write through.
type SessionStore interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
	Range(fn func(session *Session) bool)
}

// CodeRegistry owns the join code -> session binding. Bind generates a fresh
// code and attaches it atomically against the live set; no other component may
// create or destroy bindings.
type CodeRegistry interface {
	Bind(ctx context.Context, sessionID string) (string, error)
	Resolve(ctx context.Context, code string) (string, error)
	Release(ctx context.Context, code string) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsStore receives the final standings and submissions of a completed
// session for post-session reporting.
type ResultsStore interface {
	SaveResult(ctx context.Context, result domain.FinalResult) error
}

// Options tunes per-session behavior of the service.
type Options struct {
	// LeaderboardDebounce coalesces recomputes under submission bursts.
	// Zero recomputes synchronously on every accepted answer.
	LeaderboardDebounce time.Duration
	// IdleAfter is how long a session may see no activity before the reaper
	// completes it. Zero disables reaping.
	IdleAfter time.Duration
	// Clock is test-only for deterministic timestamps.
	Clock func() time.Time
}

// SessionService exposes the live session command surface: create, start,
// next, end, join, submit, subscribe, snapshot.
type SessionService struct {
	sessions SessionStore
	codes    CodeRegistry
	quizzes  QuizRepository
	results  ResultsStore
	opts     Options
	now      func() time.Time
}

func NewSessionService(sessions SessionStore, codes CodeRegistry, quizzes QuizRepository, results ResultsStore, opts Options) *SessionService {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		sessions: sessions,
		codes:    codes,
		quizzes:  quizzes,
		results:  results,
		opts:     opts,
		now:      now,
	}
}

// JoinResult is what a successful join hands back to the participant client.
type JoinResult struct {
	SessionID     string          `json:"sessionId"`
	ParticipantID string          `json:"participantId"`
	Snapshot      domain.Snapshot `json:"snapshot"`
}

// Create validates the referenced quiz content, allocates a join code, and
// registers a new session in the waiting phase.
func (s *SessionService) Create(ctx context.Context, quizID, hostID string) (domain.SessionInfo, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	if err := validateQuiz(quiz); err != nil {
		return domain.SessionInfo{}, err
	}

	sessionID := uuid.New().String()
	code, err := s.codes.Bind(ctx, sessionID)
	if err != nil {
		return domain.SessionInfo{}, err
	}

	session := newSession(sessionID, quiz, hostID, code, qrPayload(code), s.opts.LeaderboardDebounce, s.now)
	s.sessions.Put(session)

	log.Printf("session created: id=%s quiz=%s code=%s", sessionID, quizID, code)
	return domain.SessionInfo{
		SessionID: sessionID,
		QuizID:    quizID,
		JoinCode:  code,
		QRPayload: session.QRPayload(),
	}, nil
}

// Start advances the session into its first question.
func (s *SessionService) Start(ctx context.Context, sessionID, hostID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.Start(hostID)
}

// Next advances the question sequence, completing the session past the last
// question.
func (s *SessionService) Next(ctx context.Context, sessionID, hostID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	final, err := session.Next(hostID)
	if err != nil {
		return err
	}
	if final != nil {
		s.handOff(ctx, session, final)
	}
	return nil
}

// End terminates the session immediately, preempting any active question.
func (s *SessionService) End(ctx context.Context, sessionID, hostID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	final, err := session.End(hostID)
	if err != nil {
		return err
	}
	s.handOff(ctx, session, final)
	return nil
}

// Join resolves a join code and admits the participant. Rejoining under the
// same identity returns the existing participant id.
func (s *SessionService) Join(ctx context.Context, code, userID, displayName string) (JoinResult, error) {
	sessionID, err := s.codes.Resolve(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return JoinResult{}, domain.ErrSessionNotFound
	}
	participantID, err := session.Join(userID, displayName)
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Snapshot:      session.Snapshot(),
	}, nil
}

// Submit records and scores an answer for the active question.
func (s *SessionService) Submit(ctx context.Context, sessionID, participantID, questionID string, resp domain.Response) (domain.AnswerResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}
	return session.Submit(participantID, questionID, resp)
}

// Subscribe returns a channel of session events starting after sinceSeq.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(sessionID string, sinceSeq uint64) (<-chan domain.Event, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe(sinceSeq)
	return ch, cancel, nil
}

// Snapshot reads the current leaderboard, tally, and phase for one session.
func (s *SessionService) Snapshot(sessionID string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// Attach binds a connection to a participant; Detach drops it. Progress
// survives disconnects, only the connection mapping changes.
func (s *SessionService) Attach(sessionID, participantID string) error {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return session.Attach(participantID)
}

func (s *SessionService) Detach(sessionID, participantID string) {
	if session, ok := s.sessions.Get(sessionID); ok {
		session.Detach(participantID)
	}
}

// ReapIdle completes sessions with no activity past the idle threshold and
// drops already-archived completed sessions from the live store.
func (s *SessionService) ReapIdle(ctx context.Context) {
	if s.opts.IdleAfter <= 0 {
		return
	}
	now := s.now()
	var stale []*Session
	s.sessions.Range(func(session *Session) bool {
		if session.IdleFor(now) > s.opts.IdleAfter {
			stale = append(stale, session)
		}
		return true
	})
	for _, session := range stale {
		if session.Phase() == domain.PhaseCompleted {
			s.sessions.Delete(session.ID())
			continue
		}
		log.Printf("reaping idle session %s", session.ID())
		if final := session.Expire(); final != nil {
			s.handOff(ctx, session, final)
		}
	}
}

// Close ends every live session, used on server shutdown.
func (s *SessionService) Close(ctx context.Context) {
	var live []*Session
	s.sessions.Range(func(session *Session) bool {
		if session.Phase() != domain.PhaseCompleted {
			live = append(live, session)
		}
		return true
	})
	for _, session := range live {
		if final := session.Expire(); final != nil {
			s.handOff(ctx, session, final)
		}
	}
}

// handOff releases the join code so it can be reused and archives the final
// standings. Archival failures are logged, never surfaced to the command that
// completed the session.
func (s *SessionService) handOff(ctx context.Context, session *Session, final *domain.FinalResult) {
	if err := s.codes.Release(ctx, session.JoinCode()); err != nil {
		log.Printf("release join code %s: %v", session.JoinCode(), err)
	}
	if s.results == nil {
		return
	}
	if err := s.results.SaveResult(ctx, *final); err != nil {
		log.Printf("archive session %s results: %v", session.ID(), err)
	}
}

// qrPayload is the opaque scannable encoding of a join code handed to end
// users alongside the code itself.
func qrPayload(code string) string {
	return base64.RawURLEncoding.EncodeToString([]byte("quizsession://join?code=" + code))
}
