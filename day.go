package main

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// handleDayDiscussion either rolls the discussion over / into the vote, or
// lets the next living player speak.
func (gm *GameMaster) handleDayDiscussion(ctx context.Context, s GameState) GameState {
	alive := alivePlayers(s.Players)

	if s.TurnIndex >= len(alive) {
		if s.CurrentDiscussionRound < s.MaxDiscussionRounds {
			s.CurrentDiscussionRound++
			s.TurnIndex = 0
			s.addLog(systemEntry(s, fmt.Sprintf("The discussion continues (round %d/%d).",
				s.CurrentDiscussionRound, s.MaxDiscussionRounds)))
			DebugLog("handleDayDiscussion", "Day %d round %d", s.DayCount, s.CurrentDiscussionRound)
			return s
		}
		s.Phase = PhaseDayVote
		s.TurnIndex = 0
		s.addLog(systemEntry(s, "The discussion is over. We now move to the execution vote."))
		log.Printf("Day %d discussion ended, transitioning to vote", s.DayCount)
		return s
	}

	speaker := alive[s.TurnIndex]
	gm.pending(s, speaker.ID)

	text, err := gm.agent.GenerateUtterance(ctx, gm.request(s, speaker, nil))
	if err == nil && strings.TrimSpace(text) == "" {
		err = &GenerationError{PlayerID: speaker.ID, Reason: "empty utterance"}
	}
	if err != nil {
		s.addLog(errorEntry(s, speaker.ID, fmt.Sprintf("(error: %v)", err)))
		log.Printf("Utterance generation failed for %s: %v", speaker.Name, err)
	} else {
		s.addLog(chatEntry(s, speaker.ID, strings.TrimSpace(text)))
		DebugLog("handleDayDiscussion", "%s spoke on day %d", speaker.Name, s.DayCount)
	}

	s.TurnIndex++
	return s
}

// handleDayVote either tallies the vote, or collects the next living
// player's vote.
func (gm *GameMaster) handleDayVote(ctx context.Context, s GameState) GameState {
	alive := alivePlayers(s.Players)

	if s.TurnIndex >= len(alive) {
		if resolveDayVote(&s) {
			return s // game ended, no night
		}
		transitionToNight(&s)
		return s
	}

	voter := alive[s.TurnIndex]
	if decision, ok := gm.requestAction(ctx, &s, voter); ok {
		s.recordChoice(voter.ID, decision.TargetID, false)
		s.addLog(actionEntry(s, voter.ID, fmt.Sprintf("Votes for %s. Reason: %s",
			s.playerName(decision.TargetID), decision.Reasoning)))
		log.Printf("Player %s voted to execute %s", voter.Name, s.playerName(decision.TargetID))
	}

	s.TurnIndex++
	return s
}
