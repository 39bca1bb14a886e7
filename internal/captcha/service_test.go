package captcha

import (
	"errors"
	"testing"
	"time"
)

// newTestService pins the question pool pick and the clock so tests are
// deterministic.
func newTestService() (*Service, *time.Time) {
	s := NewService(5 * time.Minute)
	s.pick = func(int) int { return 0 } // always "Wat is 3 + 4?" -> "7"
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestVerifyCorrectAnswerSucceedsOnce(t *testing.T) {
	t.Parallel()

	s, _ := newTestService()
	id, prompt := s.Generate()
	if prompt == "" {
		t.Fatal("expected a question prompt")
	}

	if err := s.Verify(id, "7"); err != nil {
		t.Fatalf("correct answer rejected: %v", err)
	}
	// The challenge is consumed; replaying the id must fail.
	if err := s.Verify(id, "7"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on replay, got %v", err)
	}
}

func TestVerifyNormalizesAnswer(t *testing.T) {
	t.Parallel()

	s, _ := newTestService()
	id, _ := s.Generate()
	if err := s.Verify(id, "  7 \n"); err != nil {
		t.Errorf("whitespace-padded answer rejected: %v", err)
	}

	s2, _ := newTestService()
	s2.pick = func(int) int { return 4 } // "Welke kleur heeft gras?" -> "groen"
	id2, _ := s2.Generate()
	if err := s2.Verify(id2, "GROEN"); err != nil {
		t.Errorf("case difference rejected: %v", err)
	}
}

func TestThreeWrongAnswersExhaustChallenge(t *testing.T) {
	t.Parallel()

	s, _ := newTestService()
	id, _ := s.Generate()

	if err := s.Verify(id, "8"); !errors.Is(err, ErrWrongAnswer) {
		t.Fatalf("expected ErrWrongAnswer, got %v", err)
	}
	if err := s.Verify(id, "9"); !errors.Is(err, ErrWrongAnswer) {
		t.Fatalf("expected ErrWrongAnswer, got %v", err)
	}
	if err := s.Verify(id, "10"); !errors.Is(err, ErrMaxAttempts) {
		t.Fatalf("expected ErrMaxAttempts on third failure, got %v", err)
	}
	// Exhausted challenges are gone; even the right answer fails now.
	if err := s.Verify(id, "7"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after exhaustion, got %v", err)
	}
}

func TestExpiredChallengeRejectedAndDeleted(t *testing.T) {
	t.Parallel()

	s, now := newTestService()
	id, _ := s.Generate()

	*now = now.Add(6 * time.Minute)
	if err := s.Verify(id, "7"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if err := s.Verify(id, "7"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired challenge should be deleted, got %v", err)
	}
}

func TestUnknownChallengeID(t *testing.T) {
	t.Parallel()

	s, _ := newTestService()
	if err := s.Verify("nonexistent", "7"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	s, _ := newTestService()
	id1, _ := s.Generate()
	s.Generate()

	stats := s.GetStats()
	if stats.ActiveChallenges != 2 || stats.TotalGenerated != 2 {
		t.Fatalf("unexpected stats after generate: %+v", stats)
	}

	_ = s.Verify(id1, "7")   // success
	_ = s.Verify("bogus", "x") // failure

	stats = s.GetStats()
	if stats.ActiveChallenges != 1 {
		t.Errorf("expected 1 active challenge, got %d", stats.ActiveChallenges)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %v", stats.SuccessRate)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	s, _ := newTestService()
	s.Generate()
	s.Reset()

	stats := s.GetStats()
	if stats.ActiveChallenges != 0 || stats.TotalGenerated != 0 {
		t.Errorf("reset should clear all state, got %+v", stats)
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	t.Parallel()

	s, now := newTestService()
	s.Generate()
	*now = now.Add(3 * time.Minute)
	fresh, _ := s.Generate()
	*now = now.Add(3 * time.Minute) // first is now expired, second is not

	if removed := s.Sweep(); removed != 1 {
		t.Errorf("expected 1 expired challenge removed, got %d", removed)
	}
	if err := s.Verify(fresh, "7"); err != nil {
		t.Errorf("fresh challenge should survive the sweep: %v", err)
	}
}
