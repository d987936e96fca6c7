package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fv := registerFlags(fs)
	fs.Parse(os.Args[1:])

	// Set up logging to both stdout and file
	logFile, err := os.OpenFile("werewolfgm.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	cfg := loadConfig(*fv.configPath, *fv.envPath)
	fv.applyTo(fs, &cfg)

	if cfg.Console {
		// keep the prompt readable, the file still gets everything
		log.SetOutput(logFile)
	}

	if err := InitAppLogger(cfg.toLogConfig()); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer CloseAppLogger()

	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}

	if err := run(cfg); err != nil {
		log.Printf("Exiting: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the game master, the archive and the configured drivers and
// blocks until they are done.
func run(cfg AppConfig) error {
	counts, err := parseRoleCounts(cfg.Roles)
	if err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	if err := counts.validate(); err != nil {
		return fmt.Errorf("roles: %w", err)
	}

	pools, err := loadPersonaPools(cfg.PoolsFile)
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Printf("Seed: %d", seed)

	archive, err := openArchive(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer archive.Close()
	LogDBState("after initDB", archive.db)

	agent := initAgent(cfg, appLogger, seed)
	gm := newGameMaster(agent, seed+1)
	hub := newHub()
	table := newTable(gm, archive, hub, TableSettings{
		Roles:            counts,
		DiscussionRounds: cfg.DiscussionRounds,
		Pools:            pools,
		Model:            cfg.AgentModel,
	}, seed+2)

	if _, err := table.NewGame(nil); err != nil {
		return err
	}

	autoplay := newAutoplayer(table, cfg.AutoplayInterval, cfg.Autoplay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grp, gctx := errgroup.WithContext(ctx)

	hub.start(gctx)
	defer hub.stop()
	grp.Go(func() error {
		return autoplay.run(gctx)
	})

	if cfg.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.Addr,
			Handler: newServer(table, archive, hub, autoplay, appLogger).routes(),
		}
		grp.Go(func() error {
			log.Printf("Server starting on %s", cfg.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		grp.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	switch {
	case cfg.Console:
		grp.Go(func() error {
			defer stop()
			return runConsole(gctx, table, autoplay)
		})
	case cfg.Addr == "" && !cfg.Autoplay:
		// headless: play one game to the end and exit
		grp.Go(func() error {
			defer stop()
			s, err := table.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("Game %s over after %d days, winner: %s", s.GameID, s.DayCount, s.Winner)
			return nil
		})
	}

	return grp.Wait()
}
