package grid

import (
	"context"
	"maps"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeSource pages an in-memory record list like a remote endpoint would.
type fakeSource struct {
	mu       sync.Mutex
	records  []map[string]string
	children map[string][]map[string]string
	reqs     []Request
	err      error
	block    chan struct{}
	local    bool
	noIDs    bool

	inflight    int
	maxInflight int
}

func (f *fakeSource) IsLocal() bool { return f.local }

func (f *fakeSource) Fetch(ctx context.Context, req Request) (*RowSet, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.inflight++
	f.maxInflight = max(f.maxInflight, f.inflight)
	block, err := f.block, f.err
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Node != nil {
		return &RowSet{Rows: f.toRows(f.children[req.Node.ID])}, nil
	}
	recs := f.records
	if f.local || req.Rows <= 0 {
		return &RowSet{Page: 1, Total: 1, Records: len(recs), Rows: f.toRows(recs)}, nil
	}
	start := min((req.Page-1)*req.Rows, len(recs))
	end := min(start+req.Rows, len(recs))
	return &RowSet{
		Page:    req.Page,
		Total:   (len(recs) + req.Rows - 1) / req.Rows,
		Records: len(recs),
		Rows:    f.toRows(recs[start:end]),
	}, nil
}

func (f *fakeSource) toRows(recs []map[string]string) []*Row {
	rows := make([]*Row, len(recs))
	for i, rec := range recs {
		id := rec["id"]
		if f.noIDs {
			id = ""
		}
		rows[i] = NewRow(id, maps.Clone(rec))
	}
	return rows
}

func (f *fakeSource) requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.reqs...)
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakePersister struct {
	mu     sync.Mutex
	ops    []Operation
	err    error
	nextID string
}

func (p *fakePersister) Persist(ctx context.Context, op Operation) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
	if p.err != nil {
		return Result{}, p.err
	}
	if op.Kind == OperAdd {
		return Result{ID: p.nextID}, nil
	}
	return Result{}, nil
}

func (p *fakePersister) operations() []Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Operation(nil), p.ops...)
}

// makeRecords builds n records with ids 1..n, a name and a qty.
func makeRecords(n int) []map[string]string {
	recs := make([]map[string]string, n)
	for i := range recs {
		recs[i] = map[string]string{
			"id":   strconv.Itoa(i + 1),
			"name": "item " + strconv.Itoa(i+1),
			"qty":  strconv.Itoa(i % 7),
		}
	}
	return recs
}

func testColumns() []Column {
	return []Column{
		{Name: "id", Key: true, Sortable: true, Formatter: FormatInteger},
		{Name: "name", Sortable: true, Editable: true, EditRules: EditRules{Required: true}},
		{Name: "qty", Sortable: true, Editable: true, Formatter: FormatInteger, EditRules: EditRules{Number: true}},
	}
}

func newTestGrid(t *testing.T, cfg Config, src Source, opts ...GridOption) *Grid {
	t.Helper()
	if cfg.Columns == nil {
		cfg.Columns = testColumns()
	}
	g, err := New(cfg, src, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func mustLoad(t *testing.T, g *Grid) {
	t.Helper()
	if err := g.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}
