package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

// ============================================================================
// Test logger
// ============================================================================

// TestLogger wraps AppLogger for test use with testing.T integration
type TestLogger struct {
	*AppLogger
	t *testing.T
}

// NewTestLogger creates a test logger from environment variables
func NewTestLogger(t *testing.T) *TestLogger {
	al, err := NewAppLogger(LogConfig{
		OutputDir: os.Getenv("TEST_OUTPUT_DIR"),
		LogDB:     os.Getenv("TEST_LOG_DB") == "1",
		LogWS:     os.Getenv("TEST_LOG_WS") == "1",
		Debug:     os.Getenv("TEST_DEBUG") == "1",
	})
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	t.Cleanup(al.Close)
	return &TestLogger{AppLogger: al, t: t}
}

// Debug logs a debug message using testing.T.Logf
func (tl *TestLogger) Debug(format string, args ...any) {
	if !tl.debug {
		return
	}
	tl.t.Helper()
	tl.t.Logf("[DEBUG] "+format, args...)
}

// ============================================================================
// Scripted agent
// ============================================================================

// scriptedAgent answers from test-provided functions and records every
// request it receives. Unset functions speak a fixed line and pick the
// first valid target.
type scriptedAgent struct {
	speak func(req DecisionRequest) (string, error)
	act   func(req DecisionRequest) (ActionDecision, error)

	mu       sync.Mutex
	requests []DecisionRequest
}

func (a *scriptedAgent) record(req DecisionRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
}

func (a *scriptedAgent) recorded() []DecisionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]DecisionRequest(nil), a.requests...)
}

func (a *scriptedAgent) GenerateUtterance(_ context.Context, req DecisionRequest) (string, error) {
	a.record(req)
	if a.speak != nil {
		return a.speak(req)
	}
	return fmt.Sprintf("I am %s and I am innocent.", req.Actor.Name), nil
}

func (a *scriptedAgent) GenerateAction(_ context.Context, req DecisionRequest) (ActionDecision, error) {
	a.record(req)
	if a.act != nil {
		return a.act(req)
	}
	return ActionDecision{TargetID: req.ValidTargets[0], Reasoning: "first in line"}, nil
}

// targets returns an act func that answers from a fixed actor → target map.
func targets(choices map[string]string) func(req DecisionRequest) (ActionDecision, error) {
	return func(req DecisionRequest) (ActionDecision, error) {
		return ActionDecision{TargetID: choices[req.Actor.ID], Reasoning: "scripted"}, nil
	}
}

// ============================================================================
// Fake model
// ============================================================================

// fakeModel is an llms.Model that replays canned completions. The last
// response repeats once the list is exhausted.
type fakeModel struct {
	mu         sync.Mutex
	responses  []string
	stopReason string
	err        error
	calls      int
	lastOpts   llms.CallOptions
	lastPrompt []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	m.lastOpts = opts
	m.lastPrompt = messages

	i := min(m.calls, len(m.responses)-1)
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if i < 0 {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.responses[i], StopReason: m.stopReason}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ============================================================================
// Game fixtures
// ============================================================================

var testNames = []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Frank", "Grace", "Heidi"}

// newTestState seats one player per role in the given order with ids
// p1, p2, ... and opens day 1's discussion.
func newTestState(roles ...Role) GameState {
	s := newSetupState(1)
	s.GameID = "test-game"
	for i, role := range roles {
		s.Players = append(s.Players, Player{
			ID:      fmt.Sprintf("p%d", i+1),
			Name:    testNames[i%len(testNames)],
			Role:    role,
			IsAlive: true,
		})
	}
	s.DayCount = 1
	s.addLog(systemEntry(s, "The game of Werewolf begins."))
	s.Phase = PhaseDayDiscussion
	return s
}

// inPhase returns s moved to phase with a fresh turn cursor.
func inPhase(s GameState, phase Phase) GameState {
	s.Phase = phase
	s.TurnIndex = 0
	return s
}

// mustAdvance steps once and fails the test on error.
func mustAdvance(t *testing.T, gm *GameMaster, s GameState) GameState {
	t.Helper()
	next, err := gm.advance(context.Background(), s)
	if err != nil {
		t.Fatalf("advance in %s turn %d: %v", s.Phase, s.TurnIndex, err)
	}
	return next
}

// advanceN steps n times.
func advanceN(t *testing.T, gm *GameMaster, s GameState, n int) GameState {
	t.Helper()
	for range n {
		s = mustAdvance(t, gm, s)
	}
	return s
}

func lastEntry(s GameState) LogEntry {
	return s.Log[len(s.Log)-1]
}

func playerByID(t *testing.T, s GameState, id string) Player {
	t.Helper()
	p, ok := s.findPlayer(id)
	if !ok {
		t.Fatalf("player %s not found", id)
	}
	return p
}

// openTestArchive opens a fresh sqlite archive in the test's temp dir.
func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	path := filepath.Join(t.TempDir(), "werewolfgm_test.db")
	a, err := openArchive("file:" + path + "?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// TestContext holds the per-test table, archive and logger.
type TestContext struct {
	t       *testing.T
	logger  *TestLogger
	archive *Archive
	table   *Table
}

func newTestContext(t *testing.T, agent Agent, hub *Hub) *TestContext {
	logger := NewTestLogger(t)
	archive := openTestArchive(t)
	table := newTable(newGameMaster(agent, 1), archive, hub, TableSettings{
		Roles:            RoleCounts{RoleVillager: 3, RoleWerewolf: 1, RoleSeer: 1},
		DiscussionRounds: 1,
		Pools:            defaultPersonaPools(),
		Model:            "test-model",
	}, 2)
	return &TestContext{t: t, logger: logger, archive: archive, table: table}
}
