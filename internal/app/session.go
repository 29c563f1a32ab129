package app

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// Session is the live runtime for one quiz session. All mutating operations
// are serialized through its mutex, so lifecycle invariants hold without
// cross-session coordination; different sessions never share state. Event
// fan-out goes through the hub, whose sends never block on client I/O.
type Session struct {
	id        string
	quiz      domain.Quiz
	hostID    string
	joinCode  string
	qrPayload string

	now      func() time.Time
	debounce time.Duration
	hub      *eventHub

	mu            sync.Mutex
	phase         domain.Phase
	currentIndex  int // -1 before start
	questionEpoch int // bumped on every activation; guards duplicate timer fires
	deadline      time.Time
	timer         *time.Timer

	createdAt    time.Time
	lastActivity time.Time
	startTime    *time.Time
	endTime      *time.Time

	joinSeq      int
	participants map[string]*participant // by participant id
	byUser       map[string]string       // user id -> participant id

	questionStarts map[string]time.Time
	answers        map[string]map[string]*domain.AnswerSubmission // question id -> participant id
	tally          map[string]map[string]int                     // question id -> option id -> count

	board           domain.Leaderboard
	finalized       bool
	recomputeQueued bool
}

type participant struct {
	ID          string
	UserID      string
	DisplayName string
	JoinedAt    time.Time
	joinSeq     int
	conns       int
}

func newSession(id string, quiz domain.Quiz, hostID, joinCode, qrPayload string, debounce time.Duration, now func() time.Time) *Session {
	s := &Session{
		id:             id,
		quiz:           quiz,
		hostID:         hostID,
		joinCode:       joinCode,
		qrPayload:      qrPayload,
		now:            now,
		debounce:       debounce,
		hub:            newEventHub(id),
		phase:          domain.PhaseWaiting,
		currentIndex:   -1,
		createdAt:      now(),
		participants:   make(map[string]*participant),
		byUser:         make(map[string]string),
		questionStarts: make(map[string]time.Time),
		answers:        make(map[string]map[string]*domain.AnswerSubmission),
		tally:          make(map[string]map[string]int),
	}
	s.lastActivity = s.createdAt
	s.board = domain.Leaderboard{SessionID: id, Entries: []domain.LeaderboardEntry{}, UpdatedAt: s.createdAt}
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) JoinCode() string  { return s.joinCode }
func (s *Session) QRPayload() string { return s.qrPayload }
func (s *Session) QuizID() string    { return s.quiz.ID }

// Phase reports the current lifecycle state.
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Join admits a participant while the session is still waiting. Rejoining
// under the same user identity is idempotent and returns the existing
// participant, so a dropped connection never duplicates an entry or loses
// accumulated score.
func (s *Session) Join(userID, displayName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pid, ok := s.byUser[userID]; ok {
		if s.phase == domain.PhaseCompleted {
			return "", domain.ErrSessionNotJoinable
		}
		if displayName != "" {
			s.participants[pid].DisplayName = displayName
		}
		return pid, nil
	}

	if s.phase != domain.PhaseWaiting {
		return "", domain.ErrSessionNotJoinable
	}

	s.joinSeq++
	p := &participant{
		ID:          uuid.New().String(),
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    s.now(),
		joinSeq:     s.joinSeq,
	}
	s.participants[p.ID] = p
	s.byUser[userID] = p.ID
	s.lastActivity = s.now()

	s.recomputeLocked()
	s.publishLeaderboardLocked()
	return p.ID, nil
}

// Attach binds a live connection to a participant. Detach removes it; the
// participant's submissions and leaderboard entry survive disconnects.
func (s *Session) Attach(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.conns++
	return nil
}

func (s *Session) Detach(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[participantID]; ok && p.conns > 0 {
		p.conns--
	}
}

// Start moves the session from waiting into the first question.
func (s *Session) Start(hostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hostID != s.hostID {
		return domain.ErrNotHost
	}
	if s.phase != domain.PhaseWaiting {
		return domain.ErrAlreadyStarted
	}

	started := s.now()
	s.startTime = &started
	s.lastActivity = started
	s.activateQuestionLocked(0)
	return nil
}

// Next closes the current question if still open and advances to the next
// one, or completes the session when the question list is exhausted. A
// non-nil FinalResult means the session just completed and should be handed
// off for archival.
func (s *Session) Next(hostID string) (*domain.FinalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hostID != s.hostID {
		return nil, domain.ErrNotHost
	}
	if s.phase != domain.PhaseQuestionActive && s.phase != domain.PhaseQuestionClosed {
		return nil, domain.ErrSessionNotActive
	}

	if s.phase == domain.PhaseQuestionActive {
		s.closeQuestionLocked()
	}

	s.lastActivity = s.now()
	next := s.currentIndex + 1
	if next >= len(s.quiz.Questions) {
		return s.completeLocked(), nil
	}
	s.activateQuestionLocked(next)
	return nil, nil
}

// End terminates the session from any non-terminal state, preempting an
// in-flight question.
func (s *Session) End(hostID string) (*domain.FinalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hostID != s.hostID {
		return nil, domain.ErrNotHost
	}
	if s.phase == domain.PhaseCompleted {
		return nil, domain.ErrSessionNotActive
	}
	s.lastActivity = s.now()
	return s.completeLocked(), nil
}

// Submit validates an answer against the active question, scores it, and
// records it idempotently. Later submissions for the same question from the
// same participant are rejected, never overwritten.
func (s *Session) Submit(participantID, questionID string, resp domain.Response) (domain.AnswerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseQuestionActive {
		return domain.AnswerResult{}, domain.ErrQuestionNotActive
	}
	question := s.quiz.Questions[s.currentIndex]
	if question.ID != questionID {
		return domain.AnswerResult{}, domain.ErrQuestionNotActive
	}
	now := s.now()
	if !s.deadline.IsZero() && now.After(s.deadline) {
		return domain.AnswerResult{}, domain.ErrQuestionNotActive
	}

	if _, ok := s.participants[participantID]; !ok {
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}
	if _, dup := s.answers[questionID][participantID]; dup {
		return domain.AnswerResult{}, domain.ErrDuplicateSubmission
	}
	if err := validateResponse(question, resp); err != nil {
		return domain.AnswerResult{}, err
	}

	elapsed := now.Sub(s.questionStarts[questionID])
	correct, awarded := scoreResponse(question, resp, elapsed)

	sub := &domain.AnswerSubmission{
		SessionID:     s.id,
		ParticipantID: participantID,
		QuestionID:    questionID,
		Response:      resp,
		SubmittedAt:   elapsed,
		Correct:       correct,
		Awarded:       awarded,
	}
	if s.answers[questionID] == nil {
		s.answers[questionID] = make(map[string]*domain.AnswerSubmission)
	}
	s.answers[questionID][participantID] = sub

	counts := s.tally[questionID]
	if counts == nil {
		counts = make(map[string]int)
		s.tally[questionID] = counts
	}
	for _, optionID := range resp.OptionIDs {
		counts[optionID]++
	}
	s.lastActivity = now

	s.hub.publish(domain.EventTallyUpdate, s.tallyLocked(questionID))
	s.scheduleRecomputeLocked()

	return domain.AnswerResult{
		QuestionID: questionID,
		Correct:    correct,
		Awarded:    awarded,
		TotalScore: s.totalScoreLocked(participantID),
	}, nil
}

// Subscribe attaches an event channel, replaying retained state newer than
// sinceSeq. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe(sinceSeq uint64) (<-chan domain.Event, func()) {
	return s.hub.subscribe(sinceSeq)
}

// Snapshot returns the current phase, standings, and active-question tally.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.Snapshot{
		SessionID:     s.id,
		Phase:         s.phase,
		QuestionIndex: s.currentIndex,
		Participants:  len(s.participants),
		Leaderboard:   s.board,
		Seq:           s.hub.lastSeq(),
	}
	if s.currentIndex >= 0 && s.currentIndex < len(s.quiz.Questions) {
		t := s.tallyLocked(s.quiz.Questions[s.currentIndex].ID)
		snap.Tally = &t
	}
	return snap
}

// IdleFor reports how long the session has seen no host command, join, or
// submission. Used by the reaper to complete abandoned sessions.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Expire completes an abandoned session without host involvement.
func (s *Session) Expire() *domain.FinalResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == domain.PhaseCompleted {
		return nil
	}
	return s.completeLocked()
}

func (s *Session) activateQuestionLocked(index int) {
	s.currentIndex = index
	s.phase = domain.PhaseQuestionActive
	s.questionEpoch++

	question := s.quiz.Questions[index]
	started := s.now()
	s.questionStarts[question.ID] = started

	s.stopTimerLocked()
	s.deadline = time.Time{}
	var deadlineMs int64
	if question.TimeLimit > 0 {
		limit := time.Duration(question.TimeLimit) * time.Second
		s.deadline = started.Add(limit)
		deadlineMs = s.deadline.UnixMilli()
		epoch := s.questionEpoch
		s.timer = time.AfterFunc(limit, func() { s.autoClose(epoch) })
	}

	sanitized := sanitizeQuestion(question)
	s.hub.publish(domain.EventPhaseChanged, domain.PhaseChange{
		Phase:         domain.PhaseQuestionActive,
		QuestionIndex: index,
		Question:      &sanitized,
		DeadlineMs:    deadlineMs,
		ServerTime:    started.UnixMilli(),
	})
}

// autoClose is the deadline timer callback. The epoch check makes it
// idempotent: a delayed or duplicate fire after the host already advanced is
// a no-op.
func (s *Session) autoClose(epoch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseQuestionActive || epoch != s.questionEpoch {
		return
	}
	s.closeQuestionLocked()
}

func (s *Session) closeQuestionLocked() {
	s.stopTimerLocked()
	s.phase = domain.PhaseQuestionClosed
	s.recomputeLocked()
	s.hub.publish(domain.EventPhaseChanged, domain.PhaseChange{
		Phase:         domain.PhaseQuestionClosed,
		QuestionIndex: s.currentIndex,
		ServerTime:    s.now().UnixMilli(),
	})
	s.publishLeaderboardLocked()
}

func (s *Session) completeLocked() *domain.FinalResult {
	s.stopTimerLocked()
	s.phase = domain.PhaseCompleted
	ended := s.now()
	s.endTime = &ended

	s.finalizeLocked()
	s.hub.publish(domain.EventPhaseChanged, domain.PhaseChange{
		Phase:         domain.PhaseCompleted,
		QuestionIndex: s.currentIndex,
		ServerTime:    ended.UnixMilli(),
	})
	s.publishLeaderboardLocked()
	s.hub.close()

	return &domain.FinalResult{
		SessionID:   s.id,
		QuizID:      s.quiz.ID,
		HostID:      s.hostID,
		StartedAt:   s.startTime,
		EndedAt:     ended,
		Standings:   append([]domain.LeaderboardEntry(nil), s.board.Entries...),
		Submissions: s.submissionsLocked(),
	}
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) tallyLocked(questionID string) domain.Tally {
	counts := make(map[string]int, len(s.tally[questionID]))
	for optionID, n := range s.tally[questionID] {
		counts[optionID] = n
	}
	return domain.Tally{
		QuestionID: questionID,
		Counts:     counts,
		Answered:   len(s.answers[questionID]),
		Expected:   len(s.participants),
	}
}

// submissionsLocked flattens accepted answers in question order, then by
// participant join order, so archival output is deterministic.
func (s *Session) submissionsLocked() []domain.AnswerSubmission {
	out := make([]domain.AnswerSubmission, 0)
	for _, question := range s.quiz.Questions {
		byParticipant := s.answers[question.ID]
		if len(byParticipant) == 0 {
			continue
		}
		ordered := make([]*participant, 0, len(byParticipant))
		for pid := range byParticipant {
			ordered = append(ordered, s.participants[pid])
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].joinSeq < ordered[j].joinSeq })
		for _, p := range ordered {
			out = append(out, *byParticipant[p.ID])
		}
	}
	return out
}

// sanitizeQuestion strips correctness flags before a question is broadcast.
func sanitizeQuestion(q domain.Question) domain.Question {
	out := q
	out.Options = make([]domain.Option, len(q.Options))
	for i, opt := range q.Options {
		out.Options[i] = domain.Option{ID: opt.ID, Text: opt.Text, Color: opt.Color}
	}
	return out
}
