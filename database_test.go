package main

import (
	"errors"
	"slices"
	"testing"
)

func TestArchiveSnapshots(t *testing.T) {
	archive := openTestArchive(t)
	logger := NewTestLogger(t)
	logger.Debug("=== Testing archive snapshots ===")

	s := inPhase(newTestState(RoleVillager, RoleWerewolf, RoleSeer), PhaseNightAction)
	s.addLog(privateEntry(s, "p3", "(Divination) Bob is a WEREWOLF (black).", []string{"p3"}))
	if err := archive.saveSnapshot(s); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}

	// Saving the same snapshot again must not duplicate entries
	if err := archive.saveSnapshot(s); err != nil {
		t.Fatalf("saveSnapshot again: %v", err)
	}

	s.Players = killPlayer(s.Players, "p1")
	s.addLog(deathEntry(s, "Last night, Alice was found dead..."))
	endGame(&s, WinnerWerewolves)
	if err := archive.saveSnapshot(s); err != nil {
		t.Fatalf("saveSnapshot final: %v", err)
	}
	LogDBState("after final snapshot", archive.db)

	g, err := archive.getGame("test-game")
	if err != nil {
		t.Fatalf("getGame: %v", err)
	}
	if g.Phase != string(PhaseGameOver) || g.Winner != string(WinnerWerewolves) || g.Seats != 3 {
		t.Errorf("Unexpected game record %+v", g)
	}

	players, err := archive.getPlayers("test-game")
	if err != nil {
		t.Fatalf("getPlayers: %v", err)
	}
	if len(players) != 3 || players[0].IsAlive || players[1].Role != RoleWerewolf {
		t.Errorf("Unexpected archived roster %+v", players)
	}

	full, err := archive.getFullLog("test-game")
	if err != nil {
		t.Fatalf("getFullLog: %v", err)
	}
	if len(full) != len(s.Log) {
		t.Fatalf("Archived %d entries, snapshot has %d", len(full), len(s.Log))
	}
	for i := range full {
		if full[i].ID != s.Log[i].ID || full[i].Content != s.Log[i].Content {
			t.Errorf("Entry %d differs: %+v vs %+v", i, full[i], s.Log[i])
		}
	}
	if !slices.Equal(full[1].VisibleTo, []string{"p3"}) {
		t.Errorf("Subscribers should round-trip, got %v", full[1].VisibleTo)
	}

	public, err := archive.getLogForViewer("test-game", "")
	if err != nil {
		t.Fatalf("getLogForViewer: %v", err)
	}
	if len(public) != len(full)-1 {
		t.Errorf("Spectator should not see the divination")
	}
	seer, _ := archive.getLogForViewer("test-game", "p3")
	if len(seer) != len(full) {
		t.Errorf("Seer should see every entry")
	}
}

func TestArchiveListsGames(t *testing.T) {
	archive := openTestArchive(t)

	for _, id := range []string{"g1", "g2"} {
		s := newTestState(RoleVillager, RoleWerewolf)
		s.GameID = id
		if err := archive.saveSnapshot(s); err != nil {
			t.Fatalf("saveSnapshot %s: %v", id, err)
		}
	}

	games, err := archive.listGames()
	if err != nil {
		t.Fatalf("listGames: %v", err)
	}
	if len(games) != 2 || games[0].ID != "g2" {
		t.Errorf("Expected newest game first, got %+v", games)
	}

	if _, err := archive.getGame("missing"); !errors.Is(err, ErrNoGame) {
		t.Errorf("Expected ErrNoGame, got %v", err)
	}
}

func TestArchiveSkipsSetupState(t *testing.T) {
	archive := openTestArchive(t)

	if err := archive.saveSnapshot(newSetupState(1)); err != nil {
		t.Fatalf("saveSnapshot: %v", err)
	}
	games, _ := archive.listGames()
	if len(games) != 0 {
		t.Errorf("A state without a game id should not be archived")
	}
}
