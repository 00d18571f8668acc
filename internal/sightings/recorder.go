package sightings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/atc-bridge/internal/bridges/ble"
)

// ErrNotRunning is returned by Flush before Start or after Stop.
var ErrNotRunning = errors.New("sightings: recorder not running")

// DefaultFlushInterval is used when NewRecorder is given zero.
const DefaultFlushInterval = 30 * time.Second

// stopFlushTimeout bounds the final flush in Stop.
const stopFlushTimeout = 5 * time.Second

// Logger defines the logging interface used by this package.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Sighting is the stored state of one sensor.
type Sighting struct {
	Address     string    `json:"address"`
	DeviceID    string    `json:"device_id"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	AdvertCount int64     `json:"advert_count"`
	LastFormat  string    `json:"last_format"`
	LastRSSI    int       `json:"last_rssi"`
}

// pending accumulates sightings of one address between flushes.
type pending struct {
	firstSeen time.Time
	lastSeen  time.Time
	count     int64
	format    string
	rssi      int
}

// Recorder buffers sightings and flushes them to SQLite periodically.
type Recorder struct {
	db       *sql.DB
	devices  map[ble.Address]string
	interval time.Duration
	logger   Logger

	upsertStmt *sql.Stmt

	mu      sync.Mutex
	pending map[ble.Address]*pending

	runMu   sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder for the given devices.
//
// Parameters:
//   - db: Migrated database holding the device_sightings table
//   - devices: Configured devices; their ids are stored with each row
//   - interval: Flush interval; zero uses DefaultFlushInterval
func NewRecorder(db *sql.DB, devices *ble.DeviceTable, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ids := make(map[ble.Address]string)
	if devices != nil {
		for _, d := range devices.Devices() {
			ids[d.Address] = d.ID
		}
	}
	return &Recorder{
		db:       db,
		devices:  ids,
		interval: interval,
		pending:  make(map[ble.Address]*pending),
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Start prepares the upsert statement and begins periodic flushing.
func (r *Recorder) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return fmt.Errorf("sightings recorder already running")
	}

	stmt, err := r.db.PrepareContext(ctx, `
		INSERT INTO device_sightings (address, device_id, first_seen, last_seen, advert_count, last_format, last_rssi)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			device_id = excluded.device_id,
			last_seen = excluded.last_seen,
			advert_count = advert_count + excluded.advert_count,
			last_format = excluded.last_format,
			last_rssi = excluded.last_rssi
	`)
	if err != nil {
		return fmt.Errorf("preparing sighting upsert statement: %w", err)
	}

	r.upsertStmt = stmt
	r.done = make(chan struct{})
	r.running = true

	r.wg.Add(1)
	go r.flushLoop()

	r.log("sightings recorder started", "interval", r.interval)
	return nil
}

// Stop ends the flush loop, writes what is still buffered, and releases
// the prepared statement. Stop is idempotent.
func (r *Recorder) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	close(r.done)
	r.runMu.Unlock()

	r.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), stopFlushTimeout)
	defer cancel()
	if err := r.flush(ctx); err != nil {
		r.logError("final sightings flush", err)
	}

	r.runMu.Lock()
	r.running = false
	r.upsertStmt.Close() //nolint:errcheck // Best effort cleanup
	r.upsertStmt = nil
	r.runMu.Unlock()

	r.log("sightings recorder stopped")
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if err := r.flush(ctx); err != nil {
				r.logError("flushing sightings", err)
			}
			cancel()
		}
	}
}

// RecordEnqueued implements ble.Observer.
func (r *Recorder) RecordEnqueued(rec ble.Record, rssi int) {
	seen := rec.ObservedAt
	if seen.IsZero() {
		seen = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[rec.Address]
	if !ok {
		p = &pending{firstSeen: seen}
		r.pending[rec.Address] = p
	}
	p.lastSeen = seen
	p.count++
	p.format = rec.Format
	p.rssi = rssi
}

// AdvertSkipped implements ble.Observer.
func (r *Recorder) AdvertSkipped(string) {}

// DecodeFailed implements ble.Observer.
func (r *Recorder) DecodeFailed(ble.Address, error) {}

// Flush writes buffered sightings now.
func (r *Recorder) Flush(ctx context.Context) error {
	r.runMu.Lock()
	running := r.running
	r.runMu.Unlock()
	if !running {
		return ErrNotRunning
	}
	return r.flush(ctx)
}

func (r *Recorder) flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[ble.Address]*pending, len(batch))
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := r.write(ctx, batch); err != nil {
		r.requeue(batch)
		return err
	}
	return nil
}

func (r *Recorder) write(ctx context.Context, batch map[ble.Address]*pending) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning sightings transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	stmt := tx.StmtContext(ctx, r.upsertStmt)
	for addr, p := range batch {
		if _, err := stmt.ExecContext(ctx,
			addr.String(),
			r.devices[addr],
			p.firstSeen.UTC().Format(time.RFC3339Nano),
			p.lastSeen.UTC().Format(time.RFC3339Nano),
			p.count,
			p.format,
			p.rssi,
		); err != nil {
			return fmt.Errorf("upserting sighting %s: %w", addr, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sightings: %w", err)
	}
	return nil
}

// requeue merges a batch that failed to write back into the buffer.
func (r *Recorder) requeue(batch map[ble.Address]*pending) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for addr, old := range batch {
		cur, ok := r.pending[addr]
		if !ok {
			r.pending[addr] = old
			continue
		}
		cur.firstSeen = old.firstSeen
		cur.count += old.count
	}
}

// List returns every stored sighting ordered by address.
func (r *Recorder) List(ctx context.Context) ([]Sighting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT address, device_id, first_seen, last_seen, advert_count, last_format, last_rssi
		FROM device_sightings
		ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var s Sighting
		var first, last string
		if err := rows.Scan(&s.Address, &s.DeviceID, &first, &last, &s.AdvertCount, &s.LastFormat, &s.LastRSSI); err != nil {
			return nil, fmt.Errorf("scanning sighting: %w", err)
		}
		if s.FirstSeen, err = time.Parse(time.RFC3339Nano, first); err != nil {
			return nil, fmt.Errorf("parsing first_seen of %s: %w", s.Address, err)
		}
		if s.LastSeen, err = time.Parse(time.RFC3339Nano, last); err != nil {
			return nil, fmt.Errorf("parsing last_seen of %s: %w", s.Address, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sightings: %w", err)
	}
	return out, nil
}

// log logs an info message if logger is set.
func (r *Recorder) log(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error if logger is set.
func (r *Recorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
