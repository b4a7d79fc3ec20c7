// Package logger records acquisition snapshots to CSV files.
package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
)

// Logger records timestamped telemetry rows to CSV files with automatic
// rotation. It is a downstream consumer: rows are a trace of what was
// displayed, not state the loop reads back.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	maxRows  int
	session  string

	file   *os.File
	writer *csv.Writer
	path   string
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool
	Path       string
	IntervalMs int
	// MaxRows rotates the file after this many rows; 0 selects the default.
	MaxRows int
}

const (
	defaultMaxRows = 100_000 // ~2.7 hrs at 10 Hz
	minInterval    = 5 * time.Millisecond
)

var csvHeader = []string{
	"timestamp", "tick", "stale",
	"distance", "yaw", "pitch",
	"distance_valid", "yaw_valid", "pitch_valid",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
}

// New creates a new Logger. Rows are written at most once per interval of
// snapshot time.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/sensordash"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < minInterval {
		interval = 100 * time.Millisecond
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		maxRows:  cfg.MaxRows,
		session:  uuid.NewString()[:8],
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Path returns the file currently being written, if any.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Consume writes a row for s if the minimum interval has elapsed.
func (l *Logger) Consume(s *acquire.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || s == nil {
		return
	}

	ts := s.Stamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if !l.lastTs.IsZero() && ts.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = ts

	if l.writer == nil || l.rows >= l.maxRows {
		if err := l.rotateFile(ts); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(buildRow(ts, s)); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("sensordash_%s_%s.csv", now.Format("2006-01-02_150405.000"), l.session)
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.path = path
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	l.path = ""
}

func buildRow(ts time.Time, s *acquire.Snapshot) []string {
	row := make([]string, 0, len(csvHeader))
	row = append(row,
		ts.Format(time.RFC3339Nano),
		strconv.FormatUint(s.Tick, 10),
		boolStr(s.Stale),
	)
	for _, ch := range calib.Channels {
		row = append(row, fmt.Sprintf("%.2f", s.Value(ch)))
	}
	for _, ch := range calib.Channels {
		row = append(row, boolStr(s.Valid[ch]))
	}
	for _, b := range s.RawBank {
		row = append(row, strconv.Itoa(int(b)))
	}
	return row
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
