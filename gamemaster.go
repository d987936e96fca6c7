package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"slices"
	"sync/atomic"
)

// ErrStepInProgress is returned when advance is called while another step
// is still waiting on its agent.
var ErrStepInProgress = errors.New("a step is already in progress")

// GameMaster runs the phase state machine one step at a time. It holds no
// game state of its own: every call takes a snapshot and returns the next.
type GameMaster struct {
	agent Agent
	// rng is only touched while busy is held
	rng  *rand.Rand
	busy atomic.Bool

	// onPending, when set, receives the snapshot with ActiveSpeakerID set
	// just before the agent is asked for a decision.
	onPending func(GameState)
}

func newGameMaster(agent Agent, seed int64) *GameMaster {
	return &GameMaster{
		agent: agent,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// advance performs one unit of phase work. SETUP and GAME_OVER snapshots
// are returned unchanged. An overlapping call is rejected with
// ErrStepInProgress and the input snapshot.
func (gm *GameMaster) advance(ctx context.Context, s GameState) (GameState, error) {
	if s.Phase == PhaseSetup || s.Phase == PhaseGameOver {
		return s, nil
	}
	if !gm.busy.CompareAndSwap(false, true) {
		DebugLog("advance", "Rejected overlapping step (phase %s, turn %d)", s.Phase, s.TurnIndex)
		return s, ErrStepInProgress
	}
	defer gm.busy.Store(false)

	next := s
	next.Players = slices.Clone(s.Players)
	next.ActiveSpeakerID = ""

	switch s.Phase {
	case PhaseDayDiscussion:
		next = gm.handleDayDiscussion(ctx, next)
	case PhaseDayVote:
		next = gm.handleDayVote(ctx, next)
	case PhaseNightAction:
		next = gm.handleNightAction(ctx, next)
	default:
		return s, fmt.Errorf("advance: unknown phase %q", s.Phase)
	}

	next.ActiveSpeakerID = ""
	return next, nil
}

// busyNow reports whether a step is currently in flight.
func (gm *GameMaster) busyNow() bool {
	return gm.busy.Load()
}

// pending publishes the snapshot that is waiting on actorID.
func (gm *GameMaster) pending(s GameState, actorID string) {
	if gm.onPending == nil {
		return
	}
	s.ActiveSpeakerID = actorID
	s.Players = slices.Clone(s.Players)
	gm.onPending(s)
}

// request builds what an agent sees for one decision.
func (gm *GameMaster) request(s GameState, actor Player, valid []string) DecisionRequest {
	return DecisionRequest{
		Actor:        actor,
		Players:      slices.Clone(s.Players),
		Log:          visibleLog(s.Log, actor.ID),
		Phase:        s.Phase,
		Day:          s.DayCount,
		ValidTargets: valid,
	}
}

// requestAction asks the agent for a target and validates it. A failed
// generation is recorded in the log and reported as ok == false.
func (gm *GameMaster) requestAction(ctx context.Context, s *GameState, actor Player) (ActionDecision, bool) {
	valid := validTargetIDs(s.Players, actor.ID)
	if len(valid) == 0 {
		s.addLog(errorEntry(*s, actor.ID, "(no valid target, action skipped)"))
		log.Printf("No valid target for %s (%s) in %s", actor.Name, actor.Role, s.Phase)
		return ActionDecision{}, false
	}

	gm.pending(*s, actor.ID)
	decision, err := gm.agent.GenerateAction(ctx, gm.request(*s, actor, valid))
	if err != nil {
		s.addLog(errorEntry(*s, actor.ID, fmt.Sprintf("(action error: %v)", err)))
		log.Printf("Action generation failed for %s (%s): %v", actor.Name, actor.Role, err)
		return ActionDecision{}, false
	}

	decision, corrected := validateTarget(decision, valid, gm.rng)
	if corrected {
		log.Printf("Auto-corrected invalid target from %s (%s) to %s", actor.Name, actor.Role, s.playerName(decision.TargetID))
	}
	return decision, true
}

// recordChoice stores actorID's target for this phase.
func (s *GameState) recordChoice(actorID, targetID string, protect bool) {
	for i := range s.Players {
		if s.Players[i].ID == actorID {
			s.Players[i].VoteTargetID = targetID
		}
		if protect && s.Players[i].ID == targetID {
			s.Players[i].Protected = true
		}
	}
}
