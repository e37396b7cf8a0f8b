package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/kraken-replay/internal/model"
)

// ErrMalformed marks a frame that should have been book data but could not
// be parsed. Malformed frames are counted and dropped, never stored.
var ErrMalformed = errors.New("malformed book message")

// errSkip marks frames that are not book data at all: heartbeats, status
// messages, subscription acks. They pass through uncounted as errors.
var errSkip = errors.New("not a book message")

// bookEnvelope is the Kraken v2 book channel wire shape.
type bookEnvelope struct {
	Channel string     `json:"channel"`
	Type    string     `json:"type"`
	Data    []bookData `json:"data"`
}

type bookData struct {
	Symbol    string      `json:"symbol"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Checksum  *int64      `json:"checksum"`
	Timestamp string      `json:"timestamp"` // Updates only; snapshots carry none
}

type wireLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// classify parses one frame into a raw record plus its projection rows. The
// original bytes ride through untouched as the record's payload. Event time
// comes from the embedded exchange timestamp when present and parseable,
// otherwise from the local receive time.
func classify(data []byte, receivedAt time.Time) (model.RawMessage, []model.BookLevel, error) {
	var env bookEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.RawMessage{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Channel != "book" {
		return model.RawMessage{}, nil, errSkip
	}

	var kind model.MessageKind
	switch env.Type {
	case "snapshot":
		kind = model.KindSnapshot
	case "update":
		kind = model.KindUpdate
	default:
		return model.RawMessage{}, nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}

	if len(env.Data) == 0 {
		return model.RawMessage{}, nil, fmt.Errorf("%w: empty data array", ErrMalformed)
	}
	book := env.Data[0]
	if book.Symbol == "" {
		return model.RawMessage{}, nil, fmt.Errorf("%w: missing symbol", ErrMalformed)
	}

	eventTime := receivedAt
	if book.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, book.Timestamp); err == nil {
			eventTime = ts
		}
	}

	msg := model.RawMessage{
		EventTime:    eventTime,
		ReceivedTime: receivedAt,
		Channel:      env.Channel,
		Symbol:       book.Symbol,
		Kind:         kind,
		Checksum:     book.Checksum,
		Payload:      data,
	}

	levels := make([]model.BookLevel, 0, len(book.Bids)+len(book.Asks))
	for _, l := range book.Bids {
		levels = append(levels, model.BookLevel{
			EventTime: eventTime,
			Symbol:    book.Symbol,
			Side:      model.SideBid,
			Price:     l.Price,
			Quantity:  l.Qty,
			Kind:      kind,
			Checksum:  book.Checksum,
		})
	}
	for _, l := range book.Asks {
		levels = append(levels, model.BookLevel{
			EventTime: eventTime,
			Symbol:    book.Symbol,
			Side:      model.SideAsk,
			Price:     l.Price,
			Quantity:  l.Qty,
			Kind:      kind,
			Checksum:  book.Checksum,
		})
	}

	return msg, levels, nil
}
