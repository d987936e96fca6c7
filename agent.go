package main

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
)

// DecisionRequest is the context handed to an Agent for one decision.
// Log only holds entries the actor is allowed to see.
type DecisionRequest struct {
	Actor        Player
	Players      []Player
	Log          []LogEntry
	Phase        Phase
	Day          int
	ValidTargets []string
}

// ActionDecision is an agent's chosen target and its stated reason.
type ActionDecision struct {
	TargetID  string
	Reasoning string
	Corrected bool // target was swapped by validateTarget
}

// Agent produces the utterances and actions of a seat.
// Implementations may retry internally; the engine only sees the outcome.
type Agent interface {
	GenerateUtterance(ctx context.Context, req DecisionRequest) (string, error)
	GenerateAction(ctx context.Context, req DecisionRequest) (ActionDecision, error)
}

// GenerationError reports an unusable response from an agent: a transport
// failure, an empty or malformed answer, or a blocked completion.
type GenerationError struct {
	PlayerID string
	Reason   string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed for %s: %s: %v", e.PlayerID, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed for %s: %s", e.PlayerID, e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// validTargetIDs lists the ids an actor may target: alive and not self.
func validTargetIDs(players []Player, actorID string) []string {
	var ids []string
	for _, p := range players {
		if p.IsAlive && p.ID != actorID {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

const autoCorrectedPrefix = "(target auto-corrected) "

// validateTarget checks a decision against the valid targets and swaps an
// invalid id for a uniformly random valid one. corrected reports a swap.
func validateTarget(d ActionDecision, valid []string, rng *rand.Rand) (ActionDecision, bool) {
	if slices.Contains(valid, d.TargetID) || len(valid) == 0 {
		return d, false
	}
	return ActionDecision{
		TargetID:  valid[rng.Intn(len(valid))],
		Reasoning: autoCorrectedPrefix + d.Reasoning,
		Corrected: true,
	}, true
}

// randomAgent is the offline agent used when no model provider is
// configured. It speaks canned lines and picks uniformly random targets.
type randomAgent struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newRandomAgent(seed int64) *randomAgent {
	return &randomAgent{rng: rand.New(rand.NewSource(seed))}
}

var cannedLines = []string{
	"I have been watching everyone closely. Something feels off today.",
	"Let's not rush. Who has been quiet so far?",
	"I'm a simple villager. I want to hear more before I decide.",
	"Your story doesn't add up. Explain yourself.",
	"If we split our votes, the wolves win. Let's agree on someone.",
}

func (a *randomAgent) GenerateUtterance(_ context.Context, req DecisionRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cannedLines[a.rng.Intn(len(cannedLines))], nil
}

func (a *randomAgent) GenerateAction(_ context.Context, req DecisionRequest) (ActionDecision, error) {
	if len(req.ValidTargets) == 0 {
		return ActionDecision{}, &GenerationError{PlayerID: req.Actor.ID, Reason: "no valid target"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return ActionDecision{
		TargetID:  req.ValidTargets[a.rng.Intn(len(req.ValidTargets))],
		Reasoning: "a hunch",
	}, nil
}
