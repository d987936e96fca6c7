package main

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// Autoplayer advances the table on a timer while enabled. It is the
// unattended driver; pausing leaves the game exactly where it is.
type Autoplayer struct {
	table    *Table
	interval time.Duration
	enabled  atomic.Bool
	wake     chan struct{}
}

func newAutoplayer(table *Table, interval time.Duration, enabled bool) *Autoplayer {
	if interval <= 0 {
		interval = time.Second
	}
	a := &Autoplayer{table: table, interval: interval, wake: make(chan struct{}, 1)}
	a.enabled.Store(enabled)
	return a
}

func (a *Autoplayer) Enabled() bool { return a.enabled.Load() }

// SetEnabled turns autoplay on or off.
func (a *Autoplayer) SetEnabled(on bool) {
	if a.enabled.Swap(on) == on {
		return
	}
	if on {
		log.Printf("Autoplay resumed (every %s)", a.interval)
	} else {
		log.Printf("Autoplay paused")
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// run steps the table every interval until ctx is done. A game that is
// over or not yet started waits for a new one.
func (a *Autoplayer) run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.wake:
		case <-ticker.C:
		}
		if !a.enabled.Load() {
			continue
		}

		s := a.table.Snapshot()
		if s.GameID == "" || s.Phase == PhaseGameOver {
			continue
		}

		if _, err := a.table.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logStepError("Autoplayer", err)
		}
	}
}
