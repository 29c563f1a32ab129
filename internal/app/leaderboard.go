package app

import (
	"sort"
	"time"

	"quiz-session-service/internal/domain"
)

// standing is the intermediate per-participant aggregate the recompute builds
// before sorting and ranking.
type standing struct {
	participant *participant
	score       int
	reachedAt   time.Time // when the cumulative score was achieved
}

// recomputeLocked rebuilds the standings from all accepted submissions. A full
// rebuild rather than an in-place patch keeps ranks free of drift from partial
// updates and makes the result reproducible from the stored submissions alone.
// After finalize it is a no-op against the frozen standings.
func (s *Session) recomputeLocked() {
	if s.finalized {
		return
	}

	standings := make([]standing, 0, len(s.participants))
	for _, p := range s.participants {
		standings = append(standings, standing{participant: p, reachedAt: p.JoinedAt})
	}

	for questionID, byParticipant := range s.answers {
		started := s.questionStarts[questionID]
		for i := range standings {
			sub, ok := byParticipant[standings[i].participant.ID]
			if !ok || sub.Awarded == 0 {
				continue
			}
			standings[i].score += sub.Awarded
			at := started.Add(sub.SubmittedAt)
			if at.After(standings[i].reachedAt) {
				standings[i].reachedAt = at
			}
		}
	}

	sortStandings(standings)

	entries := make([]domain.LeaderboardEntry, len(standings))
	rank := 0
	prevScore := -1
	for i, st := range standings {
		if st.score != prevScore {
			rank++
			prevScore = st.score
		}
		entries[i] = domain.LeaderboardEntry{
			Rank:          rank,
			ParticipantID: st.participant.ID,
			DisplayName:   st.participant.DisplayName,
			Score:         st.score,
		}
	}

	s.board = domain.Leaderboard{
		SessionID: s.id,
		Entries:   entries,
		UpdatedAt: s.now(),
	}
}

// sortStandings orders by score descending, breaking ties by who reached the
// score earlier, then by join order.
func sortStandings(standings []standing) {
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.reachedAt.Equal(b.reachedAt) {
			return a.reachedAt.Before(b.reachedAt)
		}
		return a.participant.joinSeq < b.participant.joinSeq
	})
}

// scheduleRecomputeLocked recomputes immediately when no debounce window is
// configured, otherwise coalesces bursts of submissions into one recompute at
// most once per window.
func (s *Session) scheduleRecomputeLocked() {
	if s.debounce <= 0 {
		s.recomputeLocked()
		s.publishLeaderboardLocked()
		return
	}
	if s.recomputeQueued {
		return
	}
	s.recomputeQueued = true
	time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.recomputeQueued = false
		if s.finalized {
			return
		}
		s.recomputeLocked()
		s.publishLeaderboardLocked()
	})
}

// finalizeLocked freezes the standings exactly once on completion.
func (s *Session) finalizeLocked() {
	if s.finalized {
		return
	}
	s.recomputeLocked()
	s.board.Final = true
	s.finalized = true
}

func (s *Session) publishLeaderboardLocked() {
	s.hub.publish(domain.EventLeaderboardUpdate, s.board)
}

// totalScoreLocked sums a participant's awarded points across all questions.
func (s *Session) totalScoreLocked(participantID string) int {
	total := 0
	for _, byParticipant := range s.answers {
		if sub, ok := byParticipant[participantID]; ok {
			total += sub.Awarded
		}
	}
	return total
}
