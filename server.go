package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// Server is the HTTP driver: a JSON API over the table and the archive,
// plus the websocket feed.
type Server struct {
	table    *Table
	archive  *Archive
	hub      *Hub
	autoplay *Autoplayer
	logger   *AppLogger
}

func newServer(table *Table, archive *Archive, hub *Hub, autoplay *Autoplayer, logger *AppLogger) *Server {
	s := &Server{table: table, archive: archive, hub: hub, autoplay: autoplay, logger: logger}
	if hub != nil {
		hub.onMessage = s.handleWSMessage
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Wrap handlers with compression, caching control, and optional logging
	wrapHandler := func(pattern string, handler http.HandlerFunc) {
		var h http.Handler = handler
		h = compress(h)
		h = disableCaching(h)
		if s.logger != nil && s.logger.logRequests {
			h = &LoggingHandler{Handler: h, Logger: s.logger}
		}
		mux.Handle(pattern, h)
	}

	wrapHandler("GET /api/state", s.handleState)
	wrapHandler("POST /api/games", s.handleNewGame)
	wrapHandler("POST /api/step", s.handleStep)
	wrapHandler("POST /api/autoplay", s.handleAutoplay)
	wrapHandler("PATCH /api/games/current/players", s.handleSetModel)
	wrapHandler("PATCH /api/games/current/players/{id}", s.handleSetModel)
	wrapHandler("GET /api/games", s.handleListGames)
	wrapHandler("GET /api/games/{id}", s.handleGetGame)
	wrapHandler("GET /api/games/{id}/log", s.handleGameLog)

	if s.hub != nil {
		// no compression: the upgrade needs the raw connection
		mux.Handle("GET /ws", disableCaching(http.HandlerFunc(s.hub.handleWebSocket)))
	}
	return mux
}

type newGameRequest struct {
	Roles            string         `json:"roles,omitempty"`       // villager=3,werewolf=1
	RoleCounts       map[string]int `json:"role_counts,omitempty"` // {"WEREWOLF": 1, ...}
	DiscussionRounds int            `json:"discussion_rounds,omitempty"`
	Model            string         `json:"model,omitempty"`  // every seat
	Models           map[int]string `json:"models,omitempty"` // seat index -> model
}

func (r newGameRequest) options() (GameOptions, error) {
	counts, err := r.counts()
	if err != nil {
		return GameOptions{}, err
	}
	return GameOptions{
		Roles:            counts,
		DiscussionRounds: r.DiscussionRounds,
		Model:            r.Model,
		SeatModels:       r.Models,
	}, nil
}

func (r newGameRequest) counts() (RoleCounts, error) {
	if r.Roles != "" {
		return parseRoleCounts(r.Roles)
	}
	if len(r.RoleCounts) == 0 {
		return nil, nil
	}
	counts := RoleCounts{}
	for name, n := range r.RoleCounts {
		role := Role(strings.ToUpper(name))
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		counts[role] = n
	}
	return counts, nil
}

type setModelRequest struct {
	Model string `json:"model"`
}

type autoplayRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state := s.table.Snapshot()
	if state.GameID == "" {
		writeError(w, ErrNoGame)
		return
	}
	writeJSON(w, http.StatusOK, projectState(state, r.URL.Query().Get("viewer")))
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	opts, err := req.options()
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := s.table.NewGameWith(opts)
	if err != nil {
		writeError(w, err)
		return
	}
	DebugLog("handleNewGame", "Started game %s with %d seats", state.GameID, len(state.Players))
	writeJSON(w, http.StatusCreated, projectState(state, r.URL.Query().Get("viewer")))
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	// the step outlives a disconnecting client
	state, err := s.table.Step(context.WithoutCancel(r.Context()))
	if err != nil {
		logStepError("handleStep", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectState(state, r.URL.Query().Get("viewer")))
}

// handleSetModel switches the model of one seat, or of every seat when the
// path names none.
func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var req setModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	state, err := s.table.SetPlayerModel(r.PathValue("id"), req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projectState(state, r.URL.Query().Get("viewer")))
}

func (s *Server) handleAutoplay(w http.ResponseWriter, r *http.Request) {
	if s.autoplay == nil {
		http.Error(w, "autoplay not available", http.StatusNotFound)
		return
	}
	var req autoplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	s.autoplay.SetEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, autoplayRequest{Enabled: s.autoplay.Enabled()})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.archive.listGames()
	if err != nil {
		logError("handleListGames", err)
		writeError(w, err)
		return
	}
	if games == nil {
		games = []GameRecord{}
	}
	writeJSON(w, http.StatusOK, games)
}

type archivedGame struct {
	GameRecord
	Players []Player `json:"players"`
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	game, err := s.archive.getGame(id)
	if err != nil {
		writeError(w, err)
		return
	}
	players, err := s.archive.getPlayers(id)
	if err != nil {
		logError("handleGetGame", err)
		writeError(w, err)
		return
	}

	viewer := r.URL.Query().Get("viewer")
	if viewer != GodViewer && game.Phase != string(PhaseGameOver) {
		projected := projectState(GameState{Players: players, Phase: Phase(game.Phase)}, viewer)
		players = projected.Players
	}
	writeJSON(w, http.StatusOK, archivedGame{GameRecord: game, Players: players})
}

func (s *Server) handleGameLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.archive.getGame(id); err != nil {
		writeError(w, err)
		return
	}

	viewer := r.URL.Query().Get("viewer")
	var entries []LogEntry
	var err error
	if viewer == GodViewer {
		entries, err = s.archive.getFullLog(id)
	} else {
		entries, err = s.archive.getLogForViewer(id, viewer)
	}
	if err != nil {
		logError("handleGameLog", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleWSMessage runs a client command. Steps run outside the read loop
// so the connection keeps draining while the agent thinks.
func (s *Server) handleWSMessage(c *Client, msg WSMessage) {
	DebugLog("handleWSMessage", "Viewer %q sent %q", c.viewerID, msg.Action)

	switch msg.Action {
	case "step":
		go func() {
			if _, err := s.table.Step(context.Background()); err != nil {
				logStepError("handleWSMessage", err)
				s.hub.sendErrorNotice(c.viewerID, err.Error())
			}
		}()
	case "new_game":
		opts, err := newGameRequest{Roles: msg.Roles, DiscussionRounds: msg.DiscussionRounds,
			Model: msg.Model, Models: msg.Models}.options()
		if err != nil {
			s.hub.sendErrorNotice(c.viewerID, err.Error())
			return
		}
		if _, err := s.table.NewGameWith(opts); err != nil {
			s.hub.sendErrorNotice(c.viewerID, err.Error())
		}
	case "set_model":
		if _, err := s.table.SetPlayerModel(msg.PlayerID, msg.Model); err != nil {
			s.hub.sendErrorNotice(c.viewerID, err.Error())
		}
	case "autoplay", "pause":
		if s.autoplay == nil {
			s.hub.sendErrorNotice(c.viewerID, "autoplay not available")
			return
		}
		s.autoplay.SetEnabled(msg.Action == "autoplay")
		state := "off"
		if s.autoplay.Enabled() {
			state = "on"
		}
		s.hub.broadcastNotice(newNotice("info", "autoplay: "+state))
	default:
		log.Printf("Unknown WebSocket action: %q", msg.Action)
		s.hub.sendErrorNotice(c.viewerID, "unknown action "+msg.Action)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logError("writeJSON", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var genErr *GenerationError
	switch {
	case errors.Is(err, ErrStepInProgress):
		status = http.StatusConflict
	case errors.Is(err, ErrNoGame), errors.Is(err, ErrUnknownPlayer):
		status = http.StatusNotFound
	case errors.Is(err, ErrNoPlayers), errors.Is(err, ErrInvalidRoleCount), errors.Is(err, ErrUnknownRole),
		errors.Is(err, ErrInvalidSetting):
		status = http.StatusBadRequest
	case errors.As(err, &genErr):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func disableCaching(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache")

		next.ServeHTTP(w, r)
	})
}

// shouldCompress determines if a content type should be gzip compressed
func shouldCompress(contentType string) bool {
	for _, prefix := range []string{"text/", "application/json"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to handle conditional gzip compression
type responseWriter struct {
	http.ResponseWriter
	gz         *gzip.Writer
	acceptGzip bool
	headerSent bool
}

// WriteHeader checks content type and sets up compression if appropriate
func (w *responseWriter) WriteHeader(statusCode int) {
	if w.headerSent {
		return
	}
	w.headerSent = true

	if ct := w.Header().Get("Content-Type"); ct != "" && shouldCompress(ct) && w.acceptGzip {
		w.gz = gzip.NewWriter(w.ResponseWriter)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

// Write writes to gzip writer if it exists, otherwise to the wrapped writer
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.headerSent {
		w.WriteHeader(http.StatusOK)
	}
	if w.gz != nil {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Close closes the gzip writer if it exists
func (w *responseWriter) Close() error {
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// compress adds gzip compression to compressible responses
func compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{
			ResponseWriter: w,
			acceptGzip:     strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"),
		}
		defer wrapped.Close()

		next.ServeHTTP(wrapped, r)
	})
}
