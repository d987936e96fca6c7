package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// AppLogger provides the extended diagnostics sinks: model and API
// traffic, archive dumps and websocket frames. Each sink is a separate file
// under OutputDir and is only opened when enabled.
type AppLogger struct {
	outputDir   string
	logRequests bool
	logDB       bool
	logWS       bool
	debug       bool

	requestLog io.Writer
	dbLog      io.Writer
	wsLog      io.Writer
	files      []*os.File

	mu       sync.Mutex
	requests int
	frames   int
}

// Global application logger
var appLogger *AppLogger

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir   string
	LogRequests bool
	LogDB       bool
	LogWS       bool
	Debug       bool
}

// maxLoggedBody caps how much of a body lands in requests.log
const maxLoggedBody = 5000

const logTimeFormat = "15:04:05.000"

func NewAppLogger(config LogConfig) (*AppLogger, error) {
	al := &AppLogger{
		outputDir:   config.OutputDir,
		logRequests: config.LogRequests,
		logDB:       config.LogDB,
		logWS:       config.LogWS,
		debug:       config.Debug,
	}
	if al.outputDir == "" {
		return al, nil
	}

	sinks := []struct {
		on   bool
		name string
		dst  *io.Writer
	}{
		{al.logRequests, "requests.log", &al.requestLog},
		{al.logDB, "database.log", &al.dbLog},
		{al.logWS, "websocket.log", &al.wsLog},
	}
	for _, s := range sinks {
		if !s.on {
			continue
		}
		f, err := os.OpenFile(filepath.Join(al.outputDir, s.name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			al.Close()
			return nil, fmt.Errorf("open %s: %w", s.name, err)
		}
		al.files = append(al.files, f)
		*s.dst = f
	}
	return al, nil
}

// InitAppLogger initializes the global application logger
func InitAppLogger(config LogConfig) error {
	var err error
	appLogger, err = NewAppLogger(config)
	return err
}

func (al *AppLogger) Close() {
	for _, f := range al.files {
		f.Close()
	}
	al.files = nil
}

// exchange is one logged request/response pair.
type exchange struct {
	Method   string
	URL      string
	ReqBody  []byte
	Status   int
	Header   http.Header
	RespBody []byte
	Err      error
	Took     time.Duration
}

func writeBody(buf *bytes.Buffer, title string, body []byte) {
	if len(body) == 0 {
		return
	}
	fmt.Fprintf(buf, "--- %s ---\n", title)
	if len(body) > maxLoggedBody {
		buf.Write(body[:maxLoggedBody])
		fmt.Fprintf(buf, "\n... (truncated, %d bytes total)\n", len(body))
		return
	}
	buf.Write(body)
	buf.WriteString("\n")
}

// LogExchange appends one request/response pair to requests.log.
func (al *AppLogger) LogExchange(x exchange) {
	if !al.logRequests || al.requestLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	al.requests++

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n===== #%d [%s] %s %s (%s) =====\n",
		al.requests, time.Now().Format(logTimeFormat), x.Method, x.URL, x.Took.Round(time.Millisecond))
	writeBody(&buf, "request", x.ReqBody)

	switch {
	case x.Err != nil:
		fmt.Fprintf(&buf, "--- failed: %v ---\n", x.Err)
	case x.Status != 0:
		fmt.Fprintf(&buf, "--- %d %s ---\n", x.Status, http.StatusText(x.Status))
		keys := make([]string, 0, len(x.Header))
		for k := range x.Header {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "%s: %s\n", k, strings.Join(x.Header[k], ", "))
		}
	}
	if x.Header.Get("Content-Encoding") == "gzip" {
		fmt.Fprintf(&buf, "(gzip body, %d bytes)\n", len(x.RespBody))
	} else {
		writeBody(&buf, "response", x.RespBody)
	}

	al.requestLog.Write(buf.Bytes())
}

// LogWebSocket logs one websocket frame. An empty viewer is a spectator.
func (al *AppLogger) LogWebSocket(direction, viewerID, message string) {
	if !al.logWS || al.wsLog == nil {
		return
	}
	if viewerID == "" {
		viewerID = "spectator"
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	al.frames++
	fmt.Fprintf(al.wsLog, "[%s] #%d %s [%s]: %s\n",
		time.Now().Format(logTimeFormat), al.frames, direction, viewerID, message)
}

// archiveTables are dumped in this order, newest rows last.
var archiveTables = []struct{ name, order string }{
	{"game", "created_at, id"},
	{"game_player", "game_id, seat"},
	{"log_entry", "game_id, seq"},
}

// LogDB dumps the archive tables to database.log.
func (al *AppLogger) LogDB(context string, db *sqlx.DB) {
	if !al.logDB || al.dbLog == nil || db == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n===== ARCHIVE [%s] %s =====\n", time.Now().Format(logTimeFormat), context)

	for _, t := range archiveTables {
		rows, err := db.Queryx("SELECT * FROM " + t.name + " ORDER BY " + t.order)
		if err != nil {
			fmt.Fprintf(&buf, "%s: %v\n", t.name, err)
			continue
		}
		cols, _ := rows.Columns()
		fmt.Fprintf(&buf, "--- %s (%s) ---\n", t.name, strings.Join(cols, " | "))

		n := 0
		for rows.Next() {
			vals, err := rows.SliceScan()
			if err != nil {
				fmt.Fprintf(&buf, "scan: %v\n", err)
				continue
			}
			n++
			cells := make([]string, len(vals))
			for i, v := range vals {
				switch v := v.(type) {
				case nil:
					cells[i] = "NULL"
				case []byte:
					cells[i] = string(v)
				default:
					cells[i] = fmt.Sprint(v)
				}
			}
			fmt.Fprintf(&buf, "%s\n", strings.Join(cells, " | "))
		}
		rows.Close()
		fmt.Fprintf(&buf, "(%d rows)\n", n)
	}

	al.dbLog.Write(buf.Bytes())
}

// Debug logs a debug message if debug mode is enabled
func (al *AppLogger) Debug(context, format string, args ...any) {
	if !al.debug {
		return
	}
	log.Printf("[DEBUG] ["+context+"] "+format, args...)
}

// IsEnabled returns true if any logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logDB || al.logWS || al.debug
}

// ============================================================================
// HTTP Middleware
// ============================================================================

// readBody drains and restores a body so it can be both logged and sent.
func readBody(rc io.ReadCloser) ([]byte, io.ReadCloser) {
	if rc == nil || rc == http.NoBody {
		return nil, rc
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	return b, io.NopCloser(bytes.NewReader(b))
}

// LoggingRoundTripper logs every model provider request.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Logger    *AppLogger
}

func (l *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	x := exchange{Method: req.Method, URL: req.URL.Redacted()}
	x.ReqBody, req.Body = readBody(req.Body)

	start := time.Now()
	resp, err := l.Transport.RoundTrip(req)
	x.Took = time.Since(start)
	if err != nil {
		x.Err = err
		l.Logger.LogExchange(x)
		return resp, err
	}

	x.Status, x.Header = resp.StatusCode, resp.Header
	x.RespBody, resp.Body = readBody(resp.Body)
	l.Logger.LogExchange(x)
	return resp, nil
}

// capturingWriter passes a response through and keeps a copy of its head.
type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *capturingWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if room := maxLoggedBody + 1 - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// LoggingHandler logs API requests and responses.
type LoggingHandler struct {
	Handler http.Handler
	Logger  *AppLogger
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	x := exchange{Method: r.Method, URL: r.URL.String()}
	x.ReqBody, r.Body = readBody(r.Body)

	cw := &capturingWriter{ResponseWriter: w}
	start := time.Now()
	l.Handler.ServeHTTP(cw, r)

	x.Took = time.Since(start)
	x.Status, x.Header, x.RespBody = cw.status, w.Header(), cw.body.Bytes()
	l.Logger.LogExchange(x)
}

// ============================================================================
// Global helper functions
// ============================================================================

// LogWSMessage logs a WebSocket message using the global logger
func LogWSMessage(direction, viewerID, message string) {
	if appLogger != nil {
		appLogger.LogWebSocket(direction, viewerID, message)
	}
}

// LogDBState dumps the archive using the global logger
func LogDBState(context string, db *sqlx.DB) {
	if appLogger != nil {
		appLogger.LogDB(context, db)
	}
}

// DebugLog logs a debug message using the global logger
func DebugLog(context, format string, args ...any) {
	if appLogger != nil {
		appLogger.Debug(context, format, args...)
	}
}

// CloseAppLogger closes the global application logger
func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}

// logError reports an infrastructure failure that must not stop the game.
func logError(context string, err error) {
	log.Printf("ERROR [%s]: %v", context, err)
}
