package source

import (
	"context"
	"maps"
	"sync"

	"tedgrid/internal/grid"
)

// Local serves a pre-supplied array. It is consumed once: the grid keeps the
// rows and pages, sorts and searches them in memory afterwards.
type Local struct {
	// IDField names the record field used as row id. Rows without it get
	// positional ids.
	IDField string

	mu       sync.Mutex
	records  []map[string]string
	consumed bool
}

func NewLocal(records []map[string]string) *Local {
	return &Local{IDField: "id", records: records}
}

func (l *Local) IsLocal() bool { return true }

func (l *Local) Fetch(ctx context.Context, req grid.Request) (*grid.RowSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.consumed {
		return nil, grid.ErrLocalSource
	}
	l.consumed = true

	rows := make([]*grid.Row, len(l.records))
	for i, rec := range l.records {
		rows[i] = grid.NewRow(rec[l.IDField], maps.Clone(rec))
	}
	return &grid.RowSet{Page: 1, Total: 1, Records: len(rows), Rows: rows}, nil
}
