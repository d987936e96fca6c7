package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	ErrUnknownPlayer  = errors.New("no such player")
	ErrInvalidSetting = errors.New("invalid game setting")
)

// TableSettings are the defaults a new game is built with.
type TableSettings struct {
	Roles            RoleCounts
	DiscussionRounds int
	Pools            PersonaPools
	Model            string
}

// Table owns the current game on behalf of every driver (HTTP API,
// websocket, console, autoplay). It steps the game master, archives each
// snapshot and pushes it to the hub.
type Table struct {
	gm       *GameMaster
	archive  *Archive // optional
	hub      *Hub     // optional
	settings TableSettings

	mu    sync.Mutex
	state GameState
	rng   *rand.Rand // guarded by mu

	stepping atomic.Bool
}

func newTable(gm *GameMaster, archive *Archive, hub *Hub, settings TableSettings, seed int64) *Table {
	t := &Table{
		gm:       gm,
		archive:  archive,
		hub:      hub,
		settings: settings,
		state:    newSetupState(settings.DiscussionRounds),
		rng:      rand.New(rand.NewSource(seed)),
	}
	if hub != nil {
		gm.onPending = hub.publish
	}
	return t
}

// Snapshot returns the current snapshot.
func (t *Table) Snapshot() GameState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// GameOptions override the table settings for one game. Zero values keep
// the table default. SeatModels is keyed by seat index.
type GameOptions struct {
	Roles            RoleCounts
	DiscussionRounds int
	Model            string
	SeatModels       map[int]string
}

// NewGame replaces the current game with a freshly built one. nil counts
// use the table's configured roles.
func (t *Table) NewGame(counts RoleCounts) (GameState, error) {
	return t.NewGameWith(GameOptions{Roles: counts})
}

// NewGameWith is NewGame with per-game rounds and seat models.
func (t *Table) NewGameWith(opts GameOptions) (GameState, error) {
	if opts.Roles == nil {
		opts.Roles = t.settings.Roles
	}
	if opts.DiscussionRounds < 0 {
		return GameState{}, fmt.Errorf("%w: discussion rounds %d", ErrInvalidSetting, opts.DiscussionRounds)
	}
	if opts.DiscussionRounds == 0 {
		opts.DiscussionRounds = t.settings.DiscussionRounds
	}
	if opts.Model == "" {
		opts.Model = t.settings.Model
	}

	t.mu.Lock()
	s, err := buildRoster(opts.Roles, opts.DiscussionRounds, t.settings.Pools, opts.Model, t.rng)
	if err != nil {
		t.mu.Unlock()
		return GameState{}, err
	}
	for seat, model := range opts.SeatModels {
		if seat < 0 || seat >= len(s.Players) {
			t.mu.Unlock()
			return GameState{}, fmt.Errorf("%w: seat %d of %d", ErrInvalidSetting, seat, len(s.Players))
		}
		s.Players[seat].Model = model
	}
	t.state = s
	t.mu.Unlock()

	t.commit(s)
	return s, nil
}

// SetPlayerModel changes the model one seat plays with, or every seat when
// playerID is empty. It is refused while a step is in flight so the change
// cannot be overwritten by the step's result.
func (t *Table) SetPlayerModel(playerID, model string) (GameState, error) {
	if model == "" {
		return t.Snapshot(), fmt.Errorf("%w: empty model", ErrInvalidSetting)
	}
	if !t.stepping.CompareAndSwap(false, true) {
		return t.Snapshot(), ErrStepInProgress
	}
	defer t.stepping.Store(false)

	t.mu.Lock()
	s := t.state
	if s.GameID == "" {
		t.mu.Unlock()
		return s, ErrNoGame
	}
	players := slices.Clone(s.Players)
	found := false
	for i := range players {
		if playerID == "" || players[i].ID == playerID {
			players[i].Model = model
			found = true
		}
	}
	if !found {
		t.mu.Unlock()
		return s, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	s.Players = players
	t.state = s
	t.mu.Unlock()

	DebugLog("Table.SetPlayerModel", "Seat %q now plays with %s", playerID, model)
	t.commit(s)
	return s, nil
}

// Step advances the current game by one unit of work. A step that is still
// waiting on its agent rejects the call with ErrStepInProgress.
func (t *Table) Step(ctx context.Context) (GameState, error) {
	if !t.stepping.CompareAndSwap(false, true) {
		return t.Snapshot(), ErrStepInProgress
	}
	defer t.stepping.Store(false)

	cur := t.Snapshot()
	if cur.GameID == "" {
		return cur, ErrNoGame
	}

	next, err := t.gm.advance(ctx, cur)
	if err != nil {
		return cur, err
	}

	t.mu.Lock()
	if t.state.GameID != cur.GameID {
		// a new game was started while this step was waiting
		t.mu.Unlock()
		DebugLog("Table.Step", "Dropped step result of replaced game %s", cur.GameID)
		return t.Snapshot(), nil
	}
	t.state = next
	t.mu.Unlock()

	t.commit(next)
	return next, nil
}

// Run steps until the game is over or ctx is done.
func (t *Table) Run(ctx context.Context) (GameState, error) {
	for {
		s, err := t.Step(ctx)
		if err != nil {
			return s, err
		}
		if s.Phase == PhaseGameOver {
			return s, nil
		}
		if err := ctx.Err(); err != nil {
			return s, err
		}
	}
}

// Busy reports whether a step is in flight.
func (t *Table) Busy() bool {
	return t.stepping.Load()
}

// commit archives and broadcasts a snapshot. Failures are logged only.
func (t *Table) commit(s GameState) {
	if t.archive != nil {
		if err := t.archive.saveSnapshot(s); err != nil {
			logError("Table.commit", err)
		} else {
			LogDBState("after "+string(s.Phase), t.archive.db)
		}
	}
	if t.hub != nil {
		t.hub.publish(s)
	}
}

// isUserError reports errors a driver should show rather than log.
func isUserError(err error) bool {
	var genErr *GenerationError
	return errors.Is(err, ErrStepInProgress) ||
		errors.Is(err, ErrNoGame) ||
		errors.Is(err, ErrNoPlayers) ||
		errors.Is(err, ErrInvalidRoleCount) ||
		errors.Is(err, ErrUnknownRole) ||
		errors.Is(err, ErrUnknownPlayer) ||
		errors.Is(err, ErrInvalidSetting) ||
		errors.As(err, &genErr)
}

func logStepError(driver string, err error) {
	if isUserError(err) {
		DebugLog(driver, "%v", err)
		return
	}
	log.Printf("%s: step failed: %v", driver, err)
}
