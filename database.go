package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoGame is returned when a game id is not in the archive, or no game
// has been started yet.
var ErrNoGame = errors.New("no such game")

// Archive keeps every snapshot's roster and log so finished games can be
// audited after the process has moved on.
type Archive struct {
	db *sqlx.DB
}

// GameRecord is one row of the game table.
type GameRecord struct {
	ID        string `db:"id" json:"id"`
	Phase     string `db:"phase" json:"phase"`
	DayCount  int    `db:"day_count" json:"day_count"`
	Winner    string `db:"winner" json:"winner"`
	Seats     int    `db:"seats" json:"seats"`
	CreatedAt string `db:"created_at" json:"created_at"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

type seatRow struct {
	GameID      string `db:"game_id"`
	PlayerID    string `db:"player_id"`
	Seat        int    `db:"seat"`
	Name        string `db:"name"`
	Role        string `db:"role"`
	IsAlive     bool   `db:"is_alive"`
	Avatar      string `db:"avatar"`
	Personality string `db:"personality"`
	Model       string `db:"model"`
}

type logRow struct {
	GameID    string `db:"game_id"`
	Seq       int    `db:"seq"`
	EntryID   string `db:"entry_id"`
	Phase     string `db:"phase"`
	Day       int    `db:"day"`
	SpeakerID string `db:"speaker_id"`
	Content   string `db:"content"`
	Type      string `db:"type"`
	VisibleTo string `db:"visible_to"` // JSON array, "" = public
}

func openArchive(dsn string) (*Archive, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dsn, err)
	}
	a := &Archive{db: db}
	if err := a.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) initDB() error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS game (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		day_count INTEGER NOT NULL DEFAULT 1,
		winner TEXT NOT NULL DEFAULT '',
		seats INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS game_player (
		game_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		seat INTEGER NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		is_alive INTEGER NOT NULL DEFAULT 1,
		avatar TEXT NOT NULL DEFAULT '',
		personality TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, player_id)
	);
	CREATE TABLE IF NOT EXISTS log_entry (
		game_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		entry_id TEXT NOT NULL UNIQUE,
		phase TEXT NOT NULL,
		day INTEGER NOT NULL,
		speaker_id TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		visible_to TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (game_id) REFERENCES game(id),
		UNIQUE(game_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_log_entry_game ON log_entry(game_id, seq);
	`
	if _, err := a.db.Exec(schema); err != nil {
		log.Printf("initDB error: %v", err)
		return err
	}
	log.Printf("Database initialized successfully")
	return nil
}

// saveSnapshot upserts the game row and seats, and appends the log entries
// not yet archived. Entries are immutable, so only the tail is written.
func (a *Archive) saveSnapshot(s GameState) error {
	if s.GameID == "" {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := a.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO game (id, phase, day_count, winner, seats, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			day_count = excluded.day_count,
			winner = excluded.winner,
			updated_at = excluded.updated_at`,
		s.GameID, s.Phase, s.DayCount, s.Winner, len(s.Players), now, now)
	if err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}

	for i, p := range s.Players {
		_, err := tx.NamedExec(`
			INSERT INTO game_player (game_id, player_id, seat, name, role, is_alive, avatar, personality, model)
			VALUES (:game_id, :player_id, :seat, :name, :role, :is_alive, :avatar, :personality, :model)
			ON CONFLICT(game_id, player_id) DO UPDATE SET is_alive = excluded.is_alive, model = excluded.model`,
			seatRow{
				GameID: s.GameID, PlayerID: p.ID, Seat: i, Name: p.Name, Role: string(p.Role),
				IsAlive: p.IsAlive, Avatar: p.Avatar, Personality: p.Personality, Model: p.Model,
			})
		if err != nil {
			return fmt.Errorf("upsert seat %s: %w", p.ID, err)
		}
	}

	var archived int
	if err := tx.Get(&archived, `SELECT COUNT(*) FROM log_entry WHERE game_id = ?`, s.GameID); err != nil {
		return fmt.Errorf("count log: %w", err)
	}
	for seq := archived; seq < len(s.Log); seq++ {
		row, err := toLogRow(s.GameID, seq, s.Log[seq])
		if err != nil {
			return err
		}
		_, err = tx.NamedExec(`
			INSERT OR IGNORE INTO log_entry (game_id, seq, entry_id, phase, day, speaker_id, content, type, visible_to)
			VALUES (:game_id, :seq, :entry_id, :phase, :day, :speaker_id, :content, :type, :visible_to)`, row)
		if err != nil {
			return fmt.Errorf("insert log entry %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

func toLogRow(gameID string, seq int, e LogEntry) (logRow, error) {
	row := logRow{
		GameID: gameID, Seq: seq, EntryID: e.ID, Phase: string(e.Phase), Day: e.Day,
		SpeakerID: e.SpeakerID, Content: e.Content, Type: e.Type,
	}
	if !isPublic(e) {
		b, err := json.Marshal(e.VisibleTo)
		if err != nil {
			return logRow{}, fmt.Errorf("encode visible_to: %w", err)
		}
		row.VisibleTo = string(b)
	}
	return row, nil
}

func (r logRow) entry() (LogEntry, error) {
	e := LogEntry{
		ID: r.EntryID, Phase: Phase(r.Phase), Day: r.Day,
		SpeakerID: r.SpeakerID, Content: r.Content, Type: r.Type,
	}
	if r.VisibleTo != "" {
		if err := json.Unmarshal([]byte(r.VisibleTo), &e.VisibleTo); err != nil {
			return LogEntry{}, fmt.Errorf("decode visible_to of %s: %w", r.EntryID, err)
		}
	}
	return e, nil
}

func (a *Archive) listGames() ([]GameRecord, error) {
	var games []GameRecord
	err := a.db.Select(&games, `
		SELECT id, phase, day_count, winner, seats, created_at, updated_at
		FROM game
		ORDER BY created_at DESC, rowid DESC`)
	return games, err
}

func (a *Archive) getGame(id string) (GameRecord, error) {
	var g GameRecord
	err := a.db.Get(&g, `
		SELECT id, phase, day_count, winner, seats, created_at, updated_at
		FROM game WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return GameRecord{}, ErrNoGame
	}
	return g, err
}

func (a *Archive) getPlayers(gameID string) ([]Player, error) {
	var rows []seatRow
	if err := a.db.Select(&rows, `
		SELECT game_id, player_id, seat, name, role, is_alive, avatar, personality, model
		FROM game_player WHERE game_id = ? ORDER BY seat`, gameID); err != nil {
		return nil, err
	}
	players := make([]Player, len(rows))
	for i, r := range rows {
		players[i] = Player{
			ID: r.PlayerID, Name: r.Name, Role: Role(r.Role), IsAlive: r.IsAlive,
			Avatar: r.Avatar, Personality: r.Personality, Model: r.Model,
		}
	}
	return players, nil
}

// getLogForViewer returns the archived log of a game as viewerID may see it.
// An empty viewerID sees only public entries.
func (a *Archive) getLogForViewer(gameID, viewerID string) ([]LogEntry, error) {
	entries, err := a.getFullLog(gameID)
	if err != nil {
		return nil, err
	}
	return visibleLog(entries, viewerID), nil
}

// getFullLog returns every archived entry, private ones included.
func (a *Archive) getFullLog(gameID string) ([]LogEntry, error) {
	var rows []logRow
	if err := a.db.Select(&rows, `
		SELECT game_id, seq, entry_id, phase, day, speaker_id, content, type, visible_to
		FROM log_entry WHERE game_id = ? ORDER BY seq`, gameID); err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
