// Roulette table server
//
// Every table is its own board, reachable at /table/:id. Each device that
// opens the page holds a websocket to the table and streams its touch (or
// mouse) input; the table streams back the board state and sound cues.
//
// Features:
// - WebSockets per table ID: /table/:id and /table/:id/ws
// - Touch ids are namespaced per connection, so two phones can both send id 0
// - A device's contacts are released when its connection drops
// - Tables auto-reaped after configurable idle timeout
// - Random 8-char table IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current table, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Seednode/roulette/gamelog"
	"github.com/Seednode/roulette/roulette"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

const (
	tableIDLength = 8
	writeWait     = 10 * time.Second
	maxMessage    = 1024
)

// Messages coming from clients
type ClientMessage struct {
	Type string  `json:"type"` // "press", "move", "release", "release_all", "restart", "start"
	ID   int64   `json:"id"`   // pointer id as reported by the browser
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Messages sent to clients
type ServerMessage struct {
	Type  string         `json:"type"`            // "state" or "cue"
	State *roulette.View `json:"state,omitempty"` // state
	Cue   roulette.Cue   `json:"cue,omitempty"`   // cue
}

type Client struct {
	conn    *websocket.Conn
	events  chan roulette.Event
	key     string
	ns      uint32
	pressed map[roulette.ContactID]bool
	log     zerolog.Logger
}

// contactID maps a browser pointer id into this connection's id space.
// Pointer ids are 32-bit; anything wider is refused.
func (c *Client) contactID(id int64) (roulette.ContactID, bool) {
	if id < math.MinInt32 || id > math.MaxInt32 {
		return 0, false
	}

	return roulette.ContactID(int64(c.ns)<<32 | int64(uint32(id))), true
}

// TableManager holds a set of tables keyed by table ID, so each
// /table/:id is its own isolated board.
type TableManager struct {
	mu          sync.Mutex
	tables      map[string]*roulette.Table
	idleTimeout time.Duration
	settings    roulette.Settings
	presetSlots int
	recorder    *gamelog.Recorder
	clock       clockwork.Clock
	log         zerolog.Logger

	conns atomic.Uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTableManager(ctx context.Context, cfg *Config, recorder *gamelog.Recorder, clock clockwork.Clock) *TableManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(ctx)

	tm := &TableManager{
		tables:      make(map[string]*roulette.Table),
		idleTimeout: cfg.sessionTimeout,
		settings:    cfg.roundSettings(),
		presetSlots: cfg.presetSlots,
		recorder:    recorder,
		clock:       clock,
		log:         cfg.log,
		ctx:         ctx,
		cancel:      cancel,
	}

	if tm.idleTimeout > 0 {
		tm.wg.Add(1)
		go tm.reaperLoop()
	}

	return tm
}

func (tm *TableManager) getTable(tableID string) *roulette.Table {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if t, ok := tm.tables[tableID]; ok {
		select {
		case <-t.Done():
		default:
			return t
		}
	}

	opts := roulette.TableOptions{
		Clock:  tm.clock,
		Logger: tm.log,
	}
	if tm.presetSlots > 0 {
		opts.Registry = roulette.NewPresetRegistry(roulette.PresetLayout(tm.presetSlots))
	}
	if tm.recorder != nil {
		opts.GameLog = tm.recorder.For(tableID)
	}

	t := roulette.NewTable(tm.ctx, tableID, tm.settings, opts)
	tm.tables[tableID] = t

	tm.log.Info().Str("table", tableID).Msg("TABLE: opened")

	return t
}

// Len is the number of open tables.
func (tm *TableManager) Len() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return len(tm.tables)
}

// newTableID generates a crypto-random table ID and ensures it doesn't
// collide with existing tables.
func (tm *TableManager) newTableID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, tableIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, tableIDLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		tm.mu.Lock()
		_, exists := tm.tables[id]
		tm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

func validTableID(id string) bool {
	if id == "" || len(id) > 32 {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}

// reaperLoop periodically closes tables that have been idle longer than idleTimeout.
func (tm *TableManager) reaperLoop() {
	defer tm.wg.Done()

	ticker := tm.clock.NewTicker(tm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-tm.ctx.Done():
			return
		case <-ticker.Chan():
			tm.reap()
		}
	}
}

func (tm *TableManager) reap() {
	cutoff := tm.clock.Now().Add(-tm.idleTimeout)

	var stale []*roulette.Table

	tm.mu.Lock()
	for id, t := range tm.tables {
		if t.LastActive().Before(cutoff) {
			delete(tm.tables, id)
			stale = append(stale, t)
		}
	}
	tm.mu.Unlock()

	for _, t := range stale {
		t.Close()
		tm.log.Info().Str("table", t.ID()).Msg("TABLE: closed after idle timeout")
	}
}

// Close shuts every table down and stops the reaper.
func (tm *TableManager) Close() {
	tm.cancel()
	tm.wg.Wait()

	tm.mu.Lock()
	tables := make([]*roulette.Table, 0, len(tm.tables))
	for id, t := range tm.tables {
		tables = append(tables, t)
		delete(tm.tables, id)
	}
	tm.mu.Unlock()

	for _, t := range tables {
		t.Close()
	}
}

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(cfg.corsOrigins) == 0 {
				return true
			}

			origin := r.Header.Get("Origin")

			return origin == "" || slices.Contains(cfg.corsOrigins, origin) || slices.Contains(cfg.corsOrigins, "*")
		},
	}
}

// WebSocket handler that picks the table based on :id
func serveWSForManager(cfg *Config, tm *TableManager) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tableID := ps.ByName("id")
		if !validTableID(tableID) {
			http.Error(w, "invalid table id", http.StatusBadRequest)
			return
		}

		table := tm.getTable(tableID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.log.Debug().Err(err).Str("ip", realIP(r)).Msg("SERVE: websocket upgrade failed")
			return
		}

		ns := tm.conns.Add(1)

		client := &Client{
			conn:    conn,
			events:  make(chan roulette.Event, 32),
			key:     strconv.FormatUint(uint64(ns), 10),
			ns:      ns,
			pressed: make(map[roulette.ContactID]bool),
			log:     cfg.log.With().Str("table", tableID).Str("conn", strconv.FormatUint(uint64(ns), 10)).Logger(),
		}

		if !table.Send(roulette.Subscribe{ID: client.key, Outbox: client.events}) {
			_ = conn.Close()
			return
		}

		client.log.Debug().Str("ip", realIP(r)).Msg("TABLE: device connected")

		go client.writePump()
		client.readPump(table)
	}
}

func (c *Client) readPump(t *roulette.Table) {
	defer func() {
		for id := range c.pressed {
			t.Send(roulette.Release{ID: id})
		}
		t.Send(roulette.Unsubscribe{ID: c.key})
		_ = c.conn.Close()

		c.log.Debug().Msg("TABLE: device disconnected")
	}()

	c.conn.SetReadLimit(maxMessage)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		id, ok := c.contactID(msg.ID)
		if !ok {
			c.log.Debug().Int64("id", msg.ID).Msg("TABLE: pointer id out of range")
			continue
		}

		switch msg.Type {
		case "press":
			c.pressed[id] = true
			t.Send(roulette.Press{ID: id, X: msg.X, Y: msg.Y})
		case "move":
			t.Send(roulette.Move{ID: id, X: msg.X, Y: msg.Y})
		case "release":
			delete(c.pressed, id)
			t.Send(roulette.Release{ID: id})
		case "release_all":
			for pressed := range c.pressed {
				t.Send(roulette.Release{ID: pressed})
			}
			clear(c.pressed)
		case "restart":
			clear(c.pressed)
			t.Send(roulette.Restart{})
		case "start":
			t.Send(roulette.Start{})
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for ev := range c.events {
		var msg ServerMessage

		switch ev.Kind {
		case roulette.EventState:
			view := ev.View
			msg = ServerMessage{Type: "state", State: &view}
		case roulette.EventCue:
			msg = ServerMessage{Type: "cue", Cue: ev.Cue}
		default:
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// QR handler: generates a PNG QR code for the current table URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !validTableID(ps.ByName("id")) {
		http.Error(w, "invalid table id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func getIndexHandler(cfg *Config) httprouter.Handle {
	index, err := assets.ReadFile("assets/roulette/index.html")
	if err != nil {
		panic("missing embedded table page: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validTableID(ps.ByName("id")) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(index)
	}
}

// redirectNewTable handles GET /table by generating a new random table ID
// (with server-side collision detection) and redirecting to /table/:id.
func redirectNewTable(cfg *Config, path string, tm *TableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		tableID := tm.newTableID()
		cfg.log.Debug().Str("table", tableID).Msg("TABLE: created")
		http.Redirect(w, r, cfg.prefix+path+"/"+tableID, http.StatusTemporaryRedirect)
	}
}

// registerTables sets up routes so that:
//   - $path              → redirects to new random table (8-char ID)
//   - $path/:id          → HTML client
//   - $path/:id/ws       → WebSocket for that table
//   - $path/:id/qr       → PNG QR code for that table URL
func registerTables(cfg *Config, path string, tm *TableManager, mux *httprouter.Router) {
	mux.GET(cfg.prefix+path, redirectNewTable(cfg, path, tm))

	mux.GET(cfg.prefix+path+"/:id", getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:id/ws", serveWSForManager(cfg, tm))

	mux.GET(cfg.prefix+path+"/:id/qr", qrHandler)
}
