package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/kraken-replay/internal/model"
)

const defaultPageSize = 500

// ScanConfig configures an ordered walk over one symbol's raw log.
type ScanConfig struct {
	Symbol   string
	From     model.StartPoint // First record returned, inclusive
	Until    time.Time        // Exclusive upper bound; zero means unbounded
	PageSize int
}

// RawCursor pages through book_messages in (event_time, sequence_id) order.
// Pages are fetched lazily, so a session replaying a long range never holds
// more than one page of records in memory.
type RawCursor struct {
	db  *pgxpool.Pool
	cfg ScanConfig

	page []model.RawMessage
	idx  int

	last    model.StartPoint
	started bool
	done    bool
}

// Scan opens a cursor over cfg's range. No query runs until the first Next.
func (s *Store) Scan(cfg ScanConfig) *RawCursor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &RawCursor{db: s.db, cfg: cfg}
}

// Next returns the next record in log order, fetching a fresh page when the
// current one is exhausted. Returns ErrEndOfLog once the scan passes the
// last record captured so far.
func (c *RawCursor) Next(ctx context.Context) (model.RawMessage, error) {
	if c.idx >= len(c.page) {
		if c.done {
			return model.RawMessage{}, ErrEndOfLog
		}
		if err := c.fetchPage(ctx); err != nil {
			return model.RawMessage{}, err
		}
		if len(c.page) == 0 {
			c.done = true
			return model.RawMessage{}, ErrEndOfLog
		}
	}

	msg := c.page[c.idx]
	c.idx++
	c.last = msg.Position()
	return msg, nil
}

// Position returns the log position of the last record returned by Next.
func (c *RawCursor) Position() model.StartPoint {
	return c.last
}

func (c *RawCursor) fetchPage(ctx context.Context) error {
	query, args := c.pageQuery()

	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return classify("scan", err)
	}
	defer rows.Close()

	page := c.page[:0]
	for rows.Next() {
		var m model.RawMessage
		var kind string
		if err := rows.Scan(&m.EventTime, &m.ReceivedTime, &m.Channel, &m.Symbol, &kind, &m.Checksum, &m.Payload, &m.SequenceID); err != nil {
			return classify("scan", err)
		}
		m.Kind = model.MessageKind(kind)
		page = append(page, m)
	}
	if err := rows.Err(); err != nil {
		return classify("scan", err)
	}

	c.page = page
	c.idx = 0
	c.started = true
	return nil
}

// pageQuery builds the keyset query for the next page. The first page
// includes the starting record itself; later pages resume strictly after
// the last row returned.
func (c *RawCursor) pageQuery() (string, []any) {
	cmp := ">"
	after := c.last
	if !c.started {
		cmp = ">="
		after = c.cfg.From
	}

	var sb strings.Builder
	sb.WriteString(`SELECT event_time, received_time, channel, symbol, message_kind, checksum, payload, sequence_id FROM book_messages WHERE symbol = $1 AND (event_time, sequence_id) `)
	sb.WriteString(cmp)
	sb.WriteString(` ($2, $3)`)
	args := []any{c.cfg.Symbol, after.EventTime, after.SequenceID}

	if !c.cfg.Until.IsZero() {
		args = append(args, c.cfg.Until)
		fmt.Fprintf(&sb, ` AND event_time < $%d`, len(args))
	}

	args = append(args, c.cfg.PageSize)
	fmt.Fprintf(&sb, ` ORDER BY event_time ASC, sequence_id ASC LIMIT $%d`, len(args))

	return sb.String(), args
}
