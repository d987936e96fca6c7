package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTableStepWithoutGame(t *testing.T) {
	ctx := newTestContext(t, &scriptedAgent{}, nil)

	if _, err := ctx.table.Step(context.Background()); !errors.Is(err, ErrNoGame) {
		t.Errorf("Expected ErrNoGame before the first game, got %v", err)
	}
}

func TestTableRunArchivesWholeGame(t *testing.T) {
	ctx := newTestContext(t, newRandomAgent(3), nil)
	ctx.logger.Debug("=== Testing full game through the table ===")

	start, err := ctx.table.NewGame(nil)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if census := roleCensus(start.Players); census[RoleWerewolf] != 1 || len(start.Players) != 5 {
		t.Errorf("Table should use its configured roles, got %v", census)
	}

	final, err := ctx.table.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Phase != PhaseGameOver || final.Winner == WinnerNone {
		t.Fatalf("Run should end in GAME_OVER, got %s", final.Phase)
	}
	ctx.logger.Debug("Game %s won by %s", final.GameID, final.Winner)

	g, err := ctx.archive.getGame(final.GameID)
	if err != nil {
		t.Fatalf("getGame: %v", err)
	}
	if g.Winner != string(final.Winner) {
		t.Errorf("Archive winner %q, want %q", g.Winner, final.Winner)
	}
	full, _ := ctx.archive.getFullLog(final.GameID)
	if len(full) != len(final.Log) {
		t.Errorf("Archived %d entries, game has %d", len(full), len(final.Log))
	}

	again, err := ctx.table.Step(context.Background())
	if err != nil || len(again.Log) != len(final.Log) {
		t.Errorf("Stepping a finished game should be a no-op, got %v", err)
	}
}

func TestTableNewGameRejectsBadCounts(t *testing.T) {
	ctx := newTestContext(t, &scriptedAgent{}, nil)

	if _, err := ctx.table.NewGame(RoleCounts{RoleVillager: 0}); !errors.Is(err, ErrNoPlayers) {
		t.Errorf("Expected ErrNoPlayers, got %v", err)
	}
	if ctx.table.Snapshot().Phase != PhaseSetup {
		t.Errorf("A rejected game must not replace the current state")
	}
}

func TestTableRejectsOverlappingSteps(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	agent := &scriptedAgent{speak: func(DecisionRequest) (string, error) {
		entered <- struct{}{}
		<-release
		return "hello", nil
	}}
	ctx := newTestContext(t, agent, nil)
	if _, err := ctx.table.NewGame(nil); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := ctx.table.Step(context.Background())
		done <- err
	}()
	<-entered

	if !ctx.table.Busy() {
		t.Errorf("Table should report a step in flight")
	}
	if _, err := ctx.table.Step(context.Background()); !errors.Is(err, ErrStepInProgress) {
		t.Errorf("Expected ErrStepInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("First step failed: %v", err)
	}
	if got := ctx.table.Snapshot().TurnIndex; got != 1 {
		t.Errorf("Exactly one step should have been applied, turn %d", got)
	}
}

func TestTableDropsStepOfReplacedGame(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	agent := &scriptedAgent{speak: func(DecisionRequest) (string, error) {
		entered <- struct{}{}
		<-release
		return "hello", nil
	}}
	ctx := newTestContext(t, agent, nil)
	first, _ := ctx.table.NewGame(nil)

	done := make(chan struct{})
	go func() {
		ctx.table.Step(context.Background())
		close(done)
	}()
	<-entered

	second, err := ctx.table.NewGame(nil)
	if err != nil {
		t.Fatal(err)
	}
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("step never returned")
	}

	cur := ctx.table.Snapshot()
	if cur.GameID != second.GameID || cur.GameID == first.GameID {
		t.Errorf("Current game should be the replacement")
	}
	if len(cur.Log) != len(second.Log) {
		t.Errorf("Step result of the old game leaked into the new one")
	}
}

func TestAutoplayerStepsWhileEnabled(t *testing.T) {
	ctx := newTestContext(t, &scriptedAgent{}, nil)
	if _, err := ctx.table.NewGame(nil); err != nil {
		t.Fatal(err)
	}
	auto := newAutoplayer(ctx.table, time.Millisecond, false)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- auto.run(runCtx) }()

	time.Sleep(20 * time.Millisecond)
	if got := ctx.table.Snapshot().TurnIndex; got != 0 {
		t.Errorf("Paused autoplay should not step, turn %d", got)
	}

	auto.SetEnabled(true)
	deadline := time.Now().Add(5 * time.Second)
	for ctx.table.Snapshot().Phase != PhaseGameOver && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ctx.table.Snapshot().Phase != PhaseGameOver {
		t.Errorf("Autoplay should play the game to the end")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("run returned %v", err)
	}
}

func TestTableSetPlayerModelWaitsForStep(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	agent := &scriptedAgent{speak: func(DecisionRequest) (string, error) {
		entered <- struct{}{}
		<-release
		return "hold on", nil
	}}
	ctx := newTestContext(t, agent, nil)
	start, err := ctx.table.NewGame(nil)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		ctx.table.Step(context.Background())
		close(done)
	}()
	<-entered

	if _, err := ctx.table.SetPlayerModel(start.Players[0].ID, "gpt-4o"); !errors.Is(err, ErrStepInProgress) {
		t.Errorf("Model change during a step: got %v, want ErrStepInProgress", err)
	}
	close(release)
	<-done

	s, err := ctx.table.SetPlayerModel(start.Players[0].ID, "gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	if s.TurnIndex != 1 || s.Players[0].Model != "gpt-4o" {
		t.Errorf("Change should apply on top of the finished step, turn %d model %q", s.TurnIndex, s.Players[0].Model)
	}
}

func TestTableNewGameWithOptions(t *testing.T) {
	ctx := newTestContext(t, &scriptedAgent{}, nil)

	s, err := ctx.table.NewGameWith(GameOptions{DiscussionRounds: 4, SeatModels: map[int]string{0: "mistral"}})
	if err != nil {
		t.Fatal(err)
	}
	if s.MaxDiscussionRounds != 4 || len(s.Players) != 5 {
		t.Errorf("Expected 5 seats and 4 rounds, got %d seats %d rounds", len(s.Players), s.MaxDiscussionRounds)
	}
	if s.Players[0].Model != "mistral" || s.Players[1].Model != "test-model" {
		t.Errorf("Seat models: got %q and %q", s.Players[0].Model, s.Players[1].Model)
	}

	if _, err := ctx.table.NewGameWith(GameOptions{SeatModels: map[int]string{-1: "x"}}); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("Negative seat: got %v", err)
	}
	if cur := ctx.table.Snapshot(); cur.GameID != s.GameID {
		t.Errorf("A rejected game must not replace the current one")
	}
}
