package main

import (
	"slices"

	"github.com/google/uuid"
)

// appendLog returns a new log with entries added. The result never shares
// a backing array with history, so older snapshots keep their view.
func appendLog(history []LogEntry, entries ...LogEntry) []LogEntry {
	return append(slices.Clip(history), entries...)
}

// canSee determines if a viewer is allowed to see an entry.
// Entries without subscribers are public.
func canSee(entry LogEntry, viewerID string) bool {
	if len(entry.VisibleTo) == 0 {
		return true
	}
	return viewerID != "" && slices.Contains(entry.VisibleTo, viewerID)
}

func isPublic(entry LogEntry) bool {
	return len(entry.VisibleTo) == 0
}

// visibleLog returns, in order, the entries viewerID may see.
func visibleLog(history []LogEntry, viewerID string) []LogEntry {
	visible := make([]LogEntry, 0, len(history))
	for _, e := range history {
		if canSee(e, viewerID) {
			visible = append(visible, e)
		}
	}
	return visible
}

func newEntry(s GameState, speakerID, entryType, content string, visibleTo []string) LogEntry {
	return LogEntry{
		ID:        uuid.NewString(),
		Phase:     s.Phase,
		Day:       s.DayCount,
		SpeakerID: speakerID,
		Content:   content,
		Type:      entryType,
		VisibleTo: slices.Clone(visibleTo),
	}
}

func systemEntry(s GameState, content string) LogEntry {
	return newEntry(s, GameMasterID, EntrySystem, content, nil)
}

func deathEntry(s GameState, content string) LogEntry {
	return newEntry(s, GameMasterID, EntryDeath, content, nil)
}

func chatEntry(s GameState, speakerID, content string) LogEntry {
	return newEntry(s, speakerID, EntryChat, content, nil)
}

func actionEntry(s GameState, actorID, content string) LogEntry {
	return newEntry(s, actorID, EntryAction, content, nil)
}

// privateEntry is an action entry restricted to the given subscribers.
func privateEntry(s GameState, actorID, content string, visibleTo []string) LogEntry {
	return newEntry(s, actorID, EntryAction, content, visibleTo)
}

// errorEntry records a recovered provider failure against the actor.
func errorEntry(s GameState, actorID, content string) LogEntry {
	return newEntry(s, actorID, EntrySystem, content, nil)
}

// addLog appends entries to the snapshot's log.
func (s *GameState) addLog(entries ...LogEntry) {
	s.Log = appendLog(s.Log, entries...)
}

// GodViewer is the viewer id that sees every entry and every role.
const GodViewer = "god"

// projectState is the snapshot as viewerID may see it: the visible log,
// and roles hidden except the viewer's own, fellow werewolves for a
// werewolf, and everyone once the game is over.
func projectState(s GameState, viewerID string) GameState {
	if viewerID == GodViewer {
		return s
	}

	viewer, seated := s.findPlayer(viewerID)
	out := s
	out.Log = visibleLog(s.Log, viewerID)
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		self := seated && p.ID == viewer.ID
		packmate := seated && viewer.Role.IsWerewolf() && p.Role.IsWerewolf()
		if !(self || packmate || s.Phase == PhaseGameOver) {
			p.Role = ""
		}
		if !self {
			p.Protected = false
			if s.Phase == PhaseNightAction && !packmate {
				p.VoteTargetID = ""
			}
		}
		out.Players[i] = p
	}
	return out
}
