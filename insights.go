package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Advisor turns completion stats into natural language suggestions. The
// concrete implementation talks to an external text generation service.
type Advisor interface {
	Suggest(ctx context.Context, stats TodoStats) ([]string, error)
}

// AdvisorFunc adapts a function to the Advisor interface.
type AdvisorFunc func(ctx context.Context, stats TodoStats) ([]string, error)

// Suggest implements Advisor.
func (f AdvisorFunc) Suggest(ctx context.Context, stats TodoStats) ([]string, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, stats)
}

// ProductivityReport is the analytics payload for one user.
type ProductivityReport struct {
	TotalTodos     int      `json:"total_todos"`
	CompletedTodos int      `json:"completed_todos"`
	PendingTodos   int      `json:"pending_todos"`
	OverdueTodos   int      `json:"overdue_todos"`
	CompletionRate float64  `json:"completion_rate"`
	Suggestions    []string `json:"suggestions"`
}

// InsightService builds productivity reports. Advisor errors degrade to
// canned suggestions; the report itself always reflects stored todos.
type InsightService struct {
	todos   Todos
	advisor Advisor
	logger  Logger
	clock   Clock
	timeout time.Duration
}

// InsightOption configures an InsightService
type InsightOption func(*InsightService)

// WithInsightClock overrides the clock used for overdue calculations.
func WithInsightClock(clock Clock) InsightOption {
	return func(s *InsightService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAdvisorTimeout bounds how long a single Suggest call may take.
func WithAdvisorTimeout(d time.Duration) InsightOption {
	return func(s *InsightService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewInsightService(todos Todos, advisor Advisor, opts ...InsightOption) *InsightService {
	s := &InsightService{
		todos:   todos,
		advisor: advisor,
		logger:  defLogger{},
		clock:   time.Now,
		timeout: 30 * time.Second,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *InsightService) WithLogger(l Logger) *InsightService {
	if l != nil {
		s.logger = l
	}
	return s
}

// Report aggregates the owner's completion stats and attaches suggestions.
func (s *InsightService) Report(ctx context.Context, ownerID uuid.UUID) (*ProductivityReport, error) {
	stats, err := s.todos.CompletionStats(ctx, ownerID, s.clock())
	if err != nil {
		return nil, err
	}

	report := &ProductivityReport{
		TotalTodos:     stats.Total,
		CompletedTodos: stats.Completed,
		PendingTodos:   stats.Pending,
		OverdueTodos:   stats.Overdue,
		CompletionRate: stats.CompletionRate(),
	}

	report.Suggestions = s.suggestions(ctx, stats)

	return report, nil
}

func (s *InsightService) suggestions(ctx context.Context, stats TodoStats) []string {
	if s.advisor == nil {
		return fallbackSuggestions(stats)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	suggestions, err := s.advisor.Suggest(ctx, stats)
	if err != nil {
		s.logger.Warn("advisor failed, serving fallback suggestions", "error", err)
		return fallbackSuggestions(stats)
	}

	cleaned := make([]string, 0, len(suggestions))
	for _, suggestion := range suggestions {
		if trimmed := strings.TrimSpace(suggestion); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	if len(cleaned) == 0 {
		s.logger.Warn("advisor returned no usable suggestions, serving fallback")
		return fallbackSuggestions(stats)
	}

	return cleaned
}

func fallbackSuggestions(stats TodoStats) []string {
	if stats.Total == 0 {
		return []string{
			"Add your first todo to start tracking your progress.",
			"Break large goals into small, concrete tasks.",
		}
	}

	suggestions := []string{}

	if stats.Overdue > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"You have %d overdue item(s). Tackle the oldest one first.", stats.Overdue))
	}

	if stats.CompletionRate() < 0.5 {
		suggestions = append(suggestions,
			"Less than half of your todos are done. Pick one pending task and finish it today.")
	} else {
		suggestions = append(suggestions,
			"Good pace. Keep closing out pending items before adding new ones.")
	}

	suggestions = append(suggestions,
		"Review due dates weekly so nothing slips past you.")

	return suggestions
}
