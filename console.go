package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	rl "github.com/chzyer/readline"
)

// console is the interactive stepping driver.
type console struct {
	table    *Table
	autoplay *Autoplayer
	out      io.Writer
}

func newConsoleCompleter() *rl.PrefixCompleter {
	return rl.NewPrefixCompleter(
		rl.PcItem("new"),
		rl.PcItem("model",
			rl.PcItem("all"),
		),
		rl.PcItem("step"),
		rl.PcItem("run"),
		rl.PcItem("auto",
			rl.PcItem("on"),
			rl.PcItem("off"),
		),
		rl.PcItem("status"),
		rl.PcItem("players"),
		rl.PcItem("log",
			rl.PcItem(GodViewer),
		),
		rl.PcItem("help"),
		rl.PcItem("quit"),
	)
}

// runConsole reads commands until quit, EOF or ctx is done.
func runConsole(ctx context.Context, table *Table, autoplay *Autoplayer) error {
	l, err := rl.NewEx(&rl.Config{
		Prompt:            "werewolf» ",
		AutoComplete:      newConsoleCompleter(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	c := &console{table: table, autoplay: autoplay, out: l.Stdout()}
	c.printStatus(table.Snapshot())

	for {
		line, err := l.Readline()
		if err == rl.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err != nil {
			return nil // io.EOF or closed
		}

		if quit := c.exec(ctx, line); quit {
			return nil
		}
	}
}

// exec runs one command line and reports whether the console should exit.
func (c *console) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true

	case "help", "?":
		fmt.Fprintln(c.out, "commands: new [roles] [rounds] | model <seat id|all> <model> | step [n] | run | auto on|off | status | players | log [viewer] | quit")

	case "new":
		var opts GameOptions
		if len(args) > 0 {
			var err error
			if opts.Roles, err = parseRoleCounts(args[0]); err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
				return false
			}
		}
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				fmt.Fprintf(c.out, "error: bad round count %q\n", args[1])
				return false
			}
			opts.DiscussionRounds = n
		}
		s, err := c.table.NewGameWith(opts)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		c.printEntries(s.Log)
		c.printStatus(s)

	case "model":
		if len(args) != 2 {
			fmt.Fprintln(c.out, "usage: model <seat id|all> <model>")
			return false
		}
		seat := args[0]
		if seat == "all" {
			seat = ""
		}
		if _, err := c.table.SetPlayerModel(seat, args[1]); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "%s now plays with %s\n", args[0], args[1])

	case "step", "s":
		n := 1
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
				n = v
			}
		}
		for range n {
			if !c.step(ctx) {
				break
			}
		}

	case "run":
		for c.step(ctx) {
		}

	case "auto":
		if c.autoplay == nil {
			fmt.Fprintln(c.out, "autoplay is not available")
			return false
		}
		switch {
		case len(args) == 0:
			fmt.Fprintf(c.out, "autoplay: %v\n", c.autoplay.Enabled())
		case args[0] == "on":
			c.autoplay.SetEnabled(true)
		case args[0] == "off":
			c.autoplay.SetEnabled(false)
		default:
			fmt.Fprintln(c.out, "usage: auto on|off")
		}

	case "status":
		c.printStatus(c.table.Snapshot())

	case "players":
		c.printPlayers(c.table.Snapshot())

	case "log":
		viewer := GodViewer
		if len(args) > 0 {
			viewer = args[0]
		}
		c.printEntries(projectState(c.table.Snapshot(), viewer).Log)

	default:
		fmt.Fprintf(c.out, "unknown command %q (try help)\n", cmd)
	}
	return false
}

// step advances once and prints what was added. It reports whether
// another step makes sense.
func (c *console) step(ctx context.Context) bool {
	before := len(c.table.Snapshot().Log)
	s, err := c.table.Step(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return false
	}
	if before <= len(s.Log) {
		c.printEntries(s.Log[before:])
	}
	if s.Phase == PhaseGameOver {
		c.printStatus(s)
		return false
	}
	return ctx.Err() == nil
}

func (c *console) printStatus(s GameState) {
	if s.GameID == "" {
		fmt.Fprintln(c.out, "no game yet, type: new")
		return
	}
	id := s.GameID
	if len(id) > 8 {
		id = id[:8]
	}
	fmt.Fprintf(c.out, "game %s | day %d | %s | round %d/%d | turn %d | alive %d/%d",
		id, s.DayCount, s.Phase, s.CurrentDiscussionRound, s.MaxDiscussionRounds,
		s.TurnIndex, len(alivePlayers(s.Players)), len(s.Players))
	if s.Winner != WinnerNone {
		fmt.Fprintf(c.out, " | winner %s", s.Winner)
	}
	fmt.Fprintln(c.out)
}

func (c *console) printPlayers(s GameState) {
	for i, p := range s.Players {
		status := "alive"
		if !p.IsAlive {
			status = "dead"
		}
		info := p.Role.info()
		fmt.Fprintf(c.out, "%2d %s %-10s %-9s %-5s %s\n", i+1, info.Emoji, p.Name, info.Label, status, p.ID)
	}
}

func (c *console) printEntries(entries []LogEntry) {
	s := c.table.Snapshot()
	for _, e := range entries {
		scope := ""
		if !isPublic(e) {
			scope = " (private)"
		}
		fmt.Fprintf(c.out, "[day %d %s] %s%s: %s\n", e.Day, e.Phase, s.playerName(e.SpeakerID), scope, e.Content)
	}
}
