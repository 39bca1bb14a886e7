// Package captcha issues lightweight human-verification challenges and
// verifies answers, entirely in memory.
package captcha

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Verification failure modes. Callers branch on these to differentiate the
// widget UX (wrong answer vs. expired vs. too many attempts).
var (
	ErrNotFound    = errors.New("challenge not found")
	ErrExpired     = errors.New("challenge expired")
	ErrMaxAttempts = errors.New("maximum attempts exceeded")
	ErrWrongAnswer = errors.New("incorrect answer")
)

const (
	defaultTTL         = 5 * time.Minute
	defaultMaxAttempts = 3
)

// question pairs a prompt with its normalized expected answer. The answer is
// server-held and never leaves the process.
type question struct {
	prompt string
	answer string
}

var questionPool = []question{
	{prompt: "Wat is 3 + 4?", answer: "7"},
	{prompt: "Wat is 10 - 6?", answer: "4"},
	{prompt: "Wat is 2 x 5?", answer: "10"},
	{prompt: "Hoeveel dagen heeft een week?", answer: "7"},
	{prompt: "Welke kleur heeft gras?", answer: "groen"},
	{prompt: "Typ het woord 'mens'", answer: "mens"},
}

type challenge struct {
	question  string
	answer    string
	createdAt time.Time
	expiresAt time.Time
	attempts  int
}

// Stats summarizes captcha activity for the stats endpoint.
type Stats struct {
	ActiveChallenges int     `json:"activeChallenges"`
	TotalGenerated   int     `json:"totalGenerated"`
	SuccessRate      float64 `json:"successRate"`
}

// Service holds active challenges. All access goes through one mutex; the
// verify path is a read-check-mutate sequence that must stay atomic.
type Service struct {
	mu          sync.Mutex
	challenges  map[string]*challenge
	ttl         time.Duration
	maxAttempts int
	generated   int
	successes   int
	failures    int
	now         func() time.Time
	pick        func(n int) int
}

// NewService creates a captcha service with the given challenge TTL.
// A non-positive ttl falls back to the default of five minutes.
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		challenges:  make(map[string]*challenge),
		ttl:         ttl,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		pick:        rand.Intn,
	}
}

// Generate issues a new challenge and returns its id and question. The
// expected answer is never returned.
func (s *Service) Generate() (id, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := questionPool[s.pick(len(questionPool))]
	id = uuid.NewString()
	now := s.now()
	s.challenges[id] = &challenge{
		question:  q.prompt,
		answer:    q.answer,
		createdAt: now,
		expiresAt: now.Add(s.ttl),
	}
	s.generated++
	return id, q.prompt
}

// Verify checks an answer against a pending challenge. A nil return means
// success and consumes the challenge; every terminal failure also deletes it.
func (s *Service) Verify(id, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		s.failures++
		return ErrNotFound
	}

	if s.now().After(c.expiresAt) {
		delete(s.challenges, id)
		s.failures++
		return ErrExpired
	}

	c.attempts++
	if normalize(answer) == c.answer {
		delete(s.challenges, id)
		s.successes++
		return nil
	}

	s.failures++
	if c.attempts >= s.maxAttempts {
		delete(s.challenges, id)
		return ErrMaxAttempts
	}
	return ErrWrongAnswer
}

// Reset clears all in-memory challenges and counters.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = make(map[string]*challenge)
	s.generated = 0
	s.successes = 0
	s.failures = 0
}

// GetStats returns challenge counters for observability.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		ActiveChallenges: len(s.challenges),
		TotalGenerated:   s.generated,
	}
	if total := s.successes + s.failures; total > 0 {
		stats.SuccessRate = float64(s.successes) / float64(total)
	}
	return stats
}

// Sweep garbage-collects expired challenges and returns how many were removed.
func (s *Service) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.challenges {
		if now.After(c.expiresAt) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed
}

// StartSweeper launches a background goroutine that periodically removes
// expired challenges until ctx is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.Sweep(); removed > 0 {
					slog.Debug("Captcha sweep complete", "removed", removed)
				}
			}
		}
	}()
}

func normalize(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
