package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/kraken-replay/internal/model"
)

// Store writes and reads the captured book log.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	// Per-symbol sequence counters. Each counter is seeded from the table
	// on first use and owned by its symbol's mutex afterwards, so appends
	// for one symbol are serialized while symbols stay independent.
	seqMu sync.Mutex
	seqs  map[string]*symbolSeq
}

type symbolSeq struct {
	mu     sync.Mutex
	seeded bool
	next   int64
}

// New creates a Store on top of an existing connection pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger,
		seqs:   make(map[string]*symbolSeq),
	}
}

// Append writes one raw message and stamps it with the symbol's next
// sequence ID. The raw row must land before any derived rows, so callers
// write levels only after Append returns nil.
func (s *Store) Append(ctx context.Context, msg *model.RawMessage) error {
	seq := s.symbolSeq(msg.Symbol)
	seq.mu.Lock()
	defer seq.mu.Unlock()

	if !seq.seeded {
		if err := s.seedSequence(ctx, msg.Symbol, seq); err != nil {
			return err
		}
	}

	msg.SequenceID = seq.next

	ct, err := s.db.Exec(ctx, `
		INSERT INTO book_messages (event_time, received_time, channel, symbol, message_kind, checksum, payload, sequence_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_time, symbol, sequence_id) DO NOTHING
	`, msg.EventTime, msg.ReceivedTime, msg.Channel, msg.Symbol, string(msg.Kind), msg.Checksum, msg.Payload, msg.SequenceID)
	if err != nil {
		return classify("append", err)
	}
	if ct.RowsAffected() == 0 {
		// A retried append landed on a row a previous attempt already
		// committed. Nothing to redo.
		s.logger.Debug("append conflict", "symbol", msg.Symbol, "sequence_id", msg.SequenceID)
	}
	seq.next++
	return nil
}

// UpsertLevels writes the normalized projection rows derived from one raw
// message. Re-ingesting the same message is idempotent: the latest write
// for (event_time, symbol, side, price) wins.
func (s *Store) UpsertLevels(ctx context.Context, levels []model.BookLevel) error {
	if len(levels) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, l := range levels {
		batch.Queue(`
			INSERT INTO book_levels (event_time, symbol, side, price, quantity, message_kind, checksum)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_time, symbol, side, price) DO UPDATE
			SET quantity = EXCLUDED.quantity, message_kind = EXCLUDED.message_kind, checksum = EXCLUDED.checksum
		`, l.EventTime, l.Symbol, string(l.Side), l.Price, l.Quantity, string(l.Kind), l.Checksum)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range levels {
		if _, err := results.Exec(); err != nil {
			return classify("upsert_levels", err)
		}
	}

	return nil
}

// FindSnapshot locates the earliest snapshot for symbol at or after from.
// Returns ErrNoSnapshot when none exists.
func (s *Store) FindSnapshot(ctx context.Context, symbol string, from time.Time) (model.StartPoint, error) {
	var sp model.StartPoint
	err := s.db.QueryRow(ctx, `
		SELECT event_time, sequence_id
		FROM book_messages
		WHERE symbol = $1 AND message_kind = 'snapshot' AND event_time >= $2
		ORDER BY event_time ASC, sequence_id ASC
		LIMIT 1
	`, symbol, from).Scan(&sp.EventTime, &sp.SequenceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.StartPoint{}, ErrNoSnapshot
	}
	if err != nil {
		return model.StartPoint{}, classify("find_snapshot", err)
	}
	return sp, nil
}

func (s *Store) symbolSeq(symbol string) *symbolSeq {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	sq, ok := s.seqs[symbol]
	if !ok {
		sq = &symbolSeq{}
		s.seqs[symbol] = sq
	}
	return sq
}

// seedSequence resumes the counter after the highest sequence already
// stored for the symbol. Called with the symbol mutex held.
func (s *Store) seedSequence(ctx context.Context, symbol string, seq *symbolSeq) error {
	var max int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_id), 0) FROM book_messages WHERE symbol = $1`,
		symbol,
	).Scan(&max)
	if err != nil {
		return classify("seed_sequence", err)
	}
	seq.next = max + 1
	seq.seeded = true
	s.logger.Debug("sequence seeded", "symbol", symbol, "next", seq.next)
	return nil
}
