package replay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/kraken-replay/internal/model"
	"github.com/rickgao/kraken-replay/internal/store"
)

// ErrStaleStartPoint means a previously prepared start point no longer
// addresses a snapshot, usually because the data was pruned between
// prepare and connect.
var ErrStaleStartPoint = errors.New("start point no longer addresses a snapshot")

// SnapshotFinder is the slice of the store the index reads through.
type SnapshotFinder interface {
	FindSnapshot(ctx context.Context, symbol string, from time.Time) (model.StartPoint, error)
}

// Index resolves requested dates to replayable start points.
type Index struct {
	finder SnapshotFinder
	logger *slog.Logger
}

// NewIndex creates an index reading through finder.
func NewIndex(finder SnapshotFinder, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{finder: finder, logger: logger}
}

// FindStartPoint locates the earliest snapshot for symbol at or after from.
// Returns store.ErrNoSnapshot when the log has none.
func (ix *Index) FindStartPoint(ctx context.Context, symbol string, from time.Time) (model.StartPoint, error) {
	sp, err := ix.finder.FindSnapshot(ctx, symbol, from)
	if err != nil {
		return model.StartPoint{}, err
	}

	ix.logger.Debug("start point resolved",
		"symbol", symbol,
		"requested", from,
		"snapshot", sp.EventTime,
	)
	return sp, nil
}

// Resolve checks that the snapshot promised at preparedAt still exists and
// returns its exact log position. A prepared timestamp that no longer lands
// on a snapshot is stale: the caller was promised that instant, not
// whatever happens to come after it.
func (ix *Index) Resolve(ctx context.Context, symbol string, preparedAt time.Time) (model.StartPoint, error) {
	sp, err := ix.finder.FindSnapshot(ctx, symbol, preparedAt)
	if errors.Is(err, store.ErrNoSnapshot) {
		return model.StartPoint{}, ErrStaleStartPoint
	}
	if err != nil {
		return model.StartPoint{}, err
	}

	if !sp.EventTime.Equal(preparedAt) {
		ix.logger.Warn("prepared snapshot no longer present",
			"symbol", symbol,
			"prepared_at", preparedAt,
			"next_snapshot", sp.EventTime,
		)
		return model.StartPoint{}, ErrStaleStartPoint
	}

	return sp, nil
}
