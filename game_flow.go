package main

import (
	"fmt"
	"log"
)

// evaluateWinner is a pure function of the roster.
// Villagers win when no werewolf is alive; werewolves win once they are at
// least as many as everyone else alive.
func evaluateWinner(players []Player) Winner {
	var werewolfCount, villagerCount int
	for _, p := range players {
		if !p.IsAlive {
			continue
		}
		if p.Role.IsWerewolf() {
			werewolfCount++
		} else {
			villagerCount++
		}
	}

	if werewolfCount == 0 {
		return WinnerVillagers
	}
	if werewolfCount >= villagerCount {
		return WinnerWerewolves
	}
	return WinnerNone
}

// checkWinConditions evaluates the roster after an elimination and ends the
// game if a side has won. Returns true if so.
func checkWinConditions(s *GameState) bool {
	winner := evaluateWinner(s.Players)
	if winner == WinnerNone {
		return false
	}
	endGame(s, winner)
	return true
}

// endGame freezes the snapshot in GAME_OVER with a winner
func endGame(s *GameState, winner Winner) {
	s.Winner = winner
	s.Phase = PhaseGameOver
	s.ActiveSpeakerID = ""

	switch winner {
	case WinnerVillagers:
		s.addLog(systemEntry(*s, "The werewolves have been wiped out. The villagers win!"))
	case WinnerWerewolves:
		s.addLog(systemEntry(*s, "The werewolves now match the villagers. The werewolves win!"))
	}

	log.Printf("Game %s finished on day %d, winner: %s", s.GameID, s.DayCount, winner)
	DebugLog("endGame", "Game %s finished, winner: %s", s.GameID, winner)
}

// transitionToNight moves a finished vote into the night phase.
func transitionToNight(s *GameState) {
	s.Players = clearChoices(s.Players)
	s.Phase = PhaseNightAction
	s.TurnIndex = 0
	s.addLog(systemEntry(*s, "A dreadful night falls... Those with abilities, take your actions."))

	log.Printf("Day %d vote ended, transitioning to night", s.DayCount)
}

// transitionToMorning starts the next day after the night resolved.
func transitionToMorning(s *GameState) {
	s.Players = clearChoices(s.Players)
	s.DayCount++
	s.CurrentDiscussionRound = 1
	s.Phase = PhaseDayDiscussion
	s.TurnIndex = 0
	s.addLog(systemEntry(*s, fmt.Sprintf("It is the morning of day %d. Begin the discussion.", s.DayCount)))

	log.Printf("Night ended, transitioning to day %d", s.DayCount)
}

// clearChoices resets every player's vote target and protection.
func clearChoices(players []Player) []Player {
	next := make([]Player, len(players))
	copy(next, players)
	for i := range next {
		next[i].VoteTargetID = ""
		next[i].Protected = false
	}
	return next
}
