package main

import (
	"fmt"
	"log"
)

// voteTally is the result of counting a set of cast choices.
type voteTally struct {
	Counts   map[string]int
	Order    []string // candidates in order of their first vote
	MaxVotes int
	Leaders  []string // every candidate that reached MaxVotes
}

// IsTie reports whether more than one candidate reached the maximum.
func (t voteTally) IsTie() bool { return len(t.Leaders) > 1 }

// Winner returns the unique leader, or "" on a tie or when nobody voted.
func (t voteTally) Winner() string {
	if len(t.Leaders) != 1 {
		return ""
	}
	return t.Leaders[0]
}

// tallyChoices counts choices in two passes: the first accumulates counts,
// the second collects every candidate that attains the final maximum.
func tallyChoices(choices []string) voteTally {
	t := voteTally{Counts: map[string]int{}}
	for _, id := range choices {
		if id == "" {
			continue
		}
		if _, seen := t.Counts[id]; !seen {
			t.Order = append(t.Order, id)
		}
		t.Counts[id]++
		if t.Counts[id] > t.MaxVotes {
			t.MaxVotes = t.Counts[id]
		}
	}
	for _, id := range t.Order {
		if t.Counts[id] == t.MaxVotes {
			t.Leaders = append(t.Leaders, id)
		}
	}
	return t
}

// tallyDayVotes counts the day votes of living players.
func tallyDayVotes(players []Player) voteTally {
	var choices []string
	for _, p := range players {
		if p.IsAlive {
			choices = append(choices, p.VoteTargetID)
		}
	}
	return tallyChoices(choices)
}

// pluralityTarget returns the most chosen id. Ties go to the tied
// candidate that was chosen first.
func pluralityTarget(choices []string) string {
	t := tallyChoices(choices)
	if len(t.Leaders) == 0 {
		return ""
	}
	return t.Leaders[0]
}

// killPlayer marks the player dead on a copy of the roster.
func killPlayer(players []Player, id string) []Player {
	next := make([]Player, len(players))
	copy(next, players)
	for i := range next {
		if next[i].ID == id {
			next[i].IsAlive = false
		}
	}
	return next
}

// resolveDayVote executes the unique leader of the day's vote. It returns
// true when the execution ended the game.
func resolveDayVote(s *GameState) bool {
	tally := tallyDayVotes(s.Players)
	log.Printf("Day %d vote tally: %v (max %d, tie: %v)", s.DayCount, tally.Counts, tally.MaxVotes, tally.IsTie())

	victimID := tally.Winner()
	victim, ok := s.findPlayer(victimID)
	if victimID == "" || !ok {
		s.addLog(systemEntry(*s, "The vote was split. There will be no execution today."))
		DebugLog("resolveDayVote", "No execution on day %d", s.DayCount)
		return false
	}

	s.Players = killPlayer(s.Players, victim.ID)
	s.addLog(deathEntry(*s, fmt.Sprintf("By vote of the village, %s is executed.", victim.Name)))
	log.Printf("Village executed %s (%s) with %d votes", victim.Name, victim.Role, tally.MaxVotes)

	return checkWinConditions(s)
}

// resolveNight applies the werewolves' attack, honouring bodyguard
// protection. It returns true when the attack ended the game.
func resolveNight(s *GameState) bool {
	var wolfChoices []string
	protected := map[string]bool{}
	for _, p := range s.Players {
		if !p.IsAlive || p.VoteTargetID == "" {
			continue
		}
		switch p.Role {
		case RoleWerewolf:
			wolfChoices = append(wolfChoices, p.VoteTargetID)
		case RoleBodyguard:
			protected[p.VoteTargetID] = true
		}
	}

	victimID := pluralityTarget(wolfChoices)
	if victimID == "" {
		s.addLog(systemEntry(*s, "No one was attacked last night. A peaceful morning."))
		log.Printf("Night %d: no werewolf target", s.DayCount)
		return false
	}

	victim, ok := s.findPlayer(victimID)
	if !ok {
		s.addLog(systemEntry(*s, "No one was attacked last night. A peaceful morning."))
		return false
	}

	if protected[victimID] {
		s.addLog(systemEntry(*s, fmt.Sprintf("Last night %s was attacked, but survived!", victim.Name)))
		log.Printf("Night %d: bodyguard saved %s", s.DayCount, victim.Name)
		return false
	}

	s.Players = killPlayer(s.Players, victimID)
	s.addLog(deathEntry(*s, fmt.Sprintf("Last night, %s was found dead...", victim.Name)))
	log.Printf("Night %d: werewolves killed %s (%s)", s.DayCount, victim.Name, victim.Role)

	return checkWinConditions(s)
}
