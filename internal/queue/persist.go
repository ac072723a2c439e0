package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

const storeSchemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	seq     INTEGER PRIMARY KEY,
	kind    TEXT NOT NULL,
	ts      INTEGER NOT NULL,
	payload BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_ts ON items(ts);
`

// Store is the write-behind persistent backing of the queue. Writes happen
// on a dedicated goroutine so sqlite I/O never holds the sequencer loop;
// the lag is bounded by the queue's flush interval.
//
// Payloads are stored as zstd-compressed JSON.
type Store struct {
	conn    *sql.DB
	logger  *slog.Logger
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	writeCh chan []telemetry.QueuedItem
	done    chan struct{}
}

// OpenStore opens (or creates) the queue database and starts the writer.
func OpenStore(dsn string, logger *slog.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("queue: open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: ping store: %w", err)
	}
	if _, err := conn.Exec(storeSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: apply schema: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: zstd decoder: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		conn:    conn,
		logger:  logger,
		enc:     enc,
		dec:     dec,
		writeCh: make(chan []telemetry.QueuedItem, 64),
		done:    make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Append schedules a batch for persistence. Never blocks the caller: when
// the writer is saturated the batch is dropped with a warning, trading
// durability for sequencer liveness. The in-memory ring remains authoritative.
func (s *Store) Append(batch []telemetry.QueuedItem) {
	select {
	case s.writeCh <- batch:
	default:
		s.logger.Warn("queue: persistence writer saturated, batch dropped",
			slog.Int("items", len(batch)))
	}
}

func (s *Store) writer() {
	defer close(s.done)
	for batch := range s.writeCh {
		if err := s.insert(batch); err != nil {
			s.logger.Warn("queue: persist batch failed", slog.String("error", err.Error()))
		}
	}
}

func (s *Store) insert(batch []telemetry.QueuedItem) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO items (seq, kind, ts, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, it := range batch {
		raw, err := json.Marshal(it)
		if err != nil {
			continue
		}
		blob := s.enc.EncodeAll(raw, nil)
		if _, err := stmt.Exec(it.Seq, string(it.Kind), it.Timestamp(), blob); err != nil {
			return fmt.Errorf("insert seq %d: %w", it.Seq, err)
		}
	}
	return tx.Commit()
}

// Trim removes persisted items older than maxAge or beyond maxItems.
func (s *Store) Trim(maxItems int, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	if _, err := s.conn.Exec(`DELETE FROM items WHERE ts < ?`, cutoff); err != nil {
		return fmt.Errorf("queue: trim by age: %w", err)
	}
	_, err := s.conn.Exec(`
		DELETE FROM items WHERE seq <= (
			SELECT seq FROM items ORDER BY seq DESC LIMIT 1 OFFSET ?
		)`, maxItems)
	if err != nil {
		return fmt.Errorf("queue: trim by count: %w", err)
	}
	return nil
}

// Replay loads the retained tail of the persisted stream in seq order and
// returns it together with the maximum persisted seq, which restores the
// sequencer's lastSeq after a restart. Sequence numbers never wrap.
func (s *Store) Replay(maxItems int, maxAge time.Duration) ([]telemetry.QueuedItem, uint64, error) {
	var maxSeq sql.NullInt64
	if err := s.conn.QueryRow(`SELECT MAX(seq) FROM items`).Scan(&maxSeq); err != nil {
		return nil, 0, fmt.Errorf("queue: max seq: %w", err)
	}
	if !maxSeq.Valid {
		return nil, 0, nil
	}

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	rows, err := s.conn.Query(`
		SELECT payload FROM items
		WHERE ts >= ?
		ORDER BY seq DESC LIMIT ?`, cutoff, maxItems)
	if err != nil {
		return nil, 0, fmt.Errorf("queue: replay query: %w", err)
	}
	defer rows.Close()

	var reversed []telemetry.QueuedItem
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, 0, err
		}
		raw, err := s.dec.DecodeAll(blob, nil)
		if err != nil {
			s.logger.Warn("queue: replay decode failed", slog.String("error", err.Error()))
			continue
		}
		var it telemetry.QueuedItem
		if err := json.Unmarshal(raw, &it); err != nil {
			continue
		}
		reversed = append(reversed, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	items := make([]telemetry.QueuedItem, len(reversed))
	for i, it := range reversed {
		items[len(reversed)-1-i] = it
	}
	return items, uint64(maxSeq.Int64), nil
}

// Close drains the writer and closes the database.
func (s *Store) Close() error {
	close(s.writeCh)
	<-s.done
	s.enc.Close()
	s.dec.Close()
	return s.conn.Close()
}
