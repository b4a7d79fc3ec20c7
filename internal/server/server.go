package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
	"github.com/shaunagostinho/sensordash/internal/render"
)

// OffsetSetter accepts operator offset changes; *acquire.Loop implements it.
type OffsetSetter interface {
	SetOffset(ch calib.Channel, offset float64) error
}

// Server is the dashboard's rendering sink. It keeps the latest snapshot
// and pushes it to WebSocket clients at the display refresh rate.
type Server struct {
	cfg     *Config
	offsets OffsetSetter
	webFS   fs.FS

	latest   atomic.Pointer[acquire.Snapshot]
	lastSent uint64

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Snapshot *acquire.Snapshot `json:"snapshot,omitempty"`
	Display  *DisplayConfig    `json:"display,omitempty"`
	Labels   []string          `json:"labels,omitempty"` // channel labels, then bank labels
	Stamp    int64             `json:"stamp"`            // Unix ms
}

// New creates a new Server. offsets may be nil, in which case offset
// changes are refused.
func New(cfg *Config, offsets OffsetSetter, webFS fs.FS) *Server {
	return &Server{
		cfg:     cfg,
		offsets: offsets,
		webFS:   webFS,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish stores the snapshot for the next broadcast. It never blocks.
func (s *Server) Publish(snap *acquire.Snapshot) { s.latest.Store(snap) }

// Latest returns the most recent snapshot, or nil before the first tick.
func (s *Server) Latest() *acquire.Snapshot { return s.latest.Load() }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}
	mux.HandleFunc("/ws", s.handleWS)

	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/offsets", s.handleOffsets)
	mux.HandleFunc("/api/state", s.handleState)

	mux.HandleFunc("/plot.png", s.handlePlot)
	mux.HandleFunc("/charts", s.handleCharts)
	return mux
}

// Run serves HTTP and broadcasts snapshots until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.broadcastLoop(ctx)

	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) broadcastLoop(ctx context.Context) {
	hz := s.cfg.DisplaySettings().RefreshHz
	if hz <= 0 {
		hz = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastLatest()
		}
	}
}

// broadcastLatest sends the newest snapshot if it has not been sent yet.
func (s *Server) broadcastLatest() {
	snap := s.latest.Load()
	if snap == nil || snap.Tick == s.lastSent {
		return
	}
	s.lastSent = snap.Tick
	s.broadcast(Frame{Snapshot: snap, Stamp: time.Now().UnixMilli()})
}

func labels() []string {
	out := make([]string, 0, calib.NumChannels)
	for _, ch := range calib.Channels {
		out = append(out, ch.Label())
	}
	return append(out, render.BankLabels()...)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", n)

	// Send display settings and the latest state so the page can draw at once.
	display := s.cfg.DisplaySettings()
	hello := Frame{
		Snapshot: s.latest.Load(),
		Display:  &display,
		Labels:   labels(),
		Stamp:    time.Now().UnixMilli(),
	}
	if data, err := json.Marshal(hello); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive; clients do not send commands)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		before := s.cfg.Offsets()
		restart, err := s.cfg.UpdateLive(body)
		if errors.Is(err, ErrCalibrationLocked) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		after := s.cfg.Offsets()
		for _, ch := range calib.Channels {
			if after[ch] != before[ch] && s.offsets != nil {
				if err := s.offsets.SetOffset(ch, after[ch]); err != nil {
					log.Printf("[config] %s offset not applied: %v", ch, err)
				}
			}
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		display := s.cfg.DisplaySettings()
		s.broadcast(Frame{Display: &display, Stamp: time.Now().UnixMilli()})

		if restart {
			log.Println("[config] saved; sensor, window and sink changes apply after restart")
		}
		writeJSON(w, map[string]any{"status": "ok", "restartRequired": restart})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// OffsetRequest is the body of POST /api/offsets. Omitted channels keep
// their offset.
type OffsetRequest struct {
	Distance *float64 `json:"distance,omitempty"`
	Yaw      *float64 `json:"yaw,omitempty"`
	Pitch    *float64 `json:"pitch,omitempty"`
}

func (o OffsetRequest) byChannel() [calib.NumChannels]*float64 {
	return [calib.NumChannels]*float64{o.Distance, o.Yaw, o.Pitch}
}

func offsetsJSON(offs [calib.NumChannels]float64) map[string]float64 {
	out := make(map[string]float64, calib.NumChannels)
	for _, ch := range calib.Channels {
		out[ch.String()] = offs[ch]
	}
	return out
}

func (s *Server) handleOffsets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, offsetsJSON(s.cfg.Offsets()))

	case http.MethodPost:
		if s.offsets == nil {
			http.Error(w, "acquisition not running", http.StatusServiceUnavailable)
			return
		}
		var req OffsetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		for _, ch := range calib.Channels {
			v := req.byChannel()[ch]
			if v == nil {
				continue
			}
			if err := s.offsets.SetOffset(ch, *v); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := s.cfg.SetOffset(ch, *v); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Printf("[server] %s offset -> %g", ch, *v)
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		writeJSON(w, offsetsJSON(s.cfg.Offsets()))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// latestOrUnavailable writes 503 when no tick has completed yet.
func (s *Server) latestOrUnavailable(w http.ResponseWriter) *acquire.Snapshot {
	snap := s.latest.Load()
	if snap == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
	}
	return snap
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if snap := s.latestOrUnavailable(w); snap != nil {
		writeJSON(w, snap)
	}
}

func (s *Server) layout() render.Layout {
	d := s.cfg.DisplaySettings()
	l := render.DefaultLayout()
	l.Distance = render.Axis(d.DistanceAxis)
	l.Yaw = render.Axis(d.YawAxis)
	l.Pitch = render.Axis(d.PitchAxis)
	l.Bank = render.Axis(d.BankAxis)
	return l
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	snap := s.latestOrUnavailable(w)
	if snap == nil {
		return
	}
	var buf bytes.Buffer
	if err := render.PNG(&buf, snap, s.layout()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	snap := s.latestOrUnavailable(w)
	if snap == nil {
		return
	}
	var buf bytes.Buffer
	if err := render.ChartsHTML(&buf, snap, s.layout()); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
