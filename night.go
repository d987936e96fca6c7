package main

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// handleNightAction either resolves the night, or lets the next living
// ability holder act.
func (gm *GameMaster) handleNightAction(ctx context.Context, s GameState) GameState {
	actors := nightActors(s.Players)

	if s.TurnIndex >= len(actors) {
		if resolveNight(&s) {
			return s
		}
		transitionToMorning(&s)
		return s
	}

	actor := actors[s.TurnIndex]
	if decision, ok := gm.requestAction(ctx, &s, actor); ok {
		s.recordChoice(actor.ID, decision.TargetID, actor.Role == RoleBodyguard)
		s.addLog(nightEntry(s, actor, decision))
		log.Printf("%s %s chose %s", actor.Role, actor.Name, s.playerName(decision.TargetID))
	}

	s.TurnIndex++
	return s
}

// nightSubscribers is who may read an actor's night entry: the werewolf
// team channel for werewolves, otherwise only the actor.
func nightSubscribers(s GameState, actor Player) []string {
	if actor.Role.IsWerewolf() {
		return livingWerewolfIDs(s.Players)
	}
	return []string{actor.ID}
}

// nightEntry describes a night action for its restricted audience.
func nightEntry(s GameState, actor Player, d ActionDecision) LogEntry {
	target, _ := s.findPlayer(d.TargetID)

	var content string
	switch actor.Role {
	case RoleSeer:
		verdict := "HUMAN (white)"
		if target.Role.IsWerewolf() {
			verdict = "a WEREWOLF (black)"
		}
		content = fmt.Sprintf("(Divination) %s is %s.", target.Name, verdict)
	case RoleWerewolf:
		content = fmt.Sprintf("(Attack) Targeting %s. Reason: %s", target.Name, d.Reasoning)
	case RoleBodyguard:
		content = fmt.Sprintf("(Guard) Protecting %s. Reason: %s", target.Name, d.Reasoning)
	case RoleVillager, RoleMedium:
		content = fmt.Sprintf("(Night) Chose %s.", target.Name)
	}
	// reasoning-free entries carry the correction themselves
	if d.Corrected && !strings.Contains(content, autoCorrectedPrefix) {
		content += " " + strings.TrimSpace(autoCorrectedPrefix)
	}

	return privateEntry(s, actor.ID, content, nightSubscribers(s, actor))
}
