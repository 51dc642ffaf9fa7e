package grid

import (
	"sync"
	"time"
)

// Direction is a pager move.
type Direction int

const (
	PageFirst Direction = iota
	PagePrev
	PageNext
	PageLast
	PageGoto
)

func (d Direction) String() string {
	switch d {
	case PageFirst:
		return "first"
	case PagePrev:
		return "prev"
	case PageNext:
		return "next"
	case PageLast:
		return "last"
	case PageGoto:
		return "goto"
	}
	return "unknown"
}

// Pager owns the paging part of the grid state.
type Pager struct {
	Page         int
	RowsPerPage  int
	TotalPages   int
	TotalRecords int
}

func (p *Pager) lastPage() int {
	if p.TotalPages < 1 {
		return 1
	}
	return p.TotalPages
}

func (p *Pager) clamp(page int) int {
	if page > p.lastPage() {
		page = p.lastPage()
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Next moves the pager. n is only used with PageGoto. It reports whether the
// page changed, in which case a fetch is due.
func (p *Pager) Next(dir Direction, n int) (int, bool) {
	target := p.Page
	switch dir {
	case PageFirst:
		target = 1
	case PagePrev:
		target = p.Page - 1
	case PageNext:
		target = p.Page + 1
	case PageLast:
		target = p.lastPage()
	case PageGoto:
		target = n
	}
	target = p.clamp(target)
	changed := target != p.Page
	p.Page = target
	return target, changed
}

// SetRowsPerPage changes the page size and moves to the page that holds the
// record that was first on the old page.
func (p *Pager) SetRowsPerPage(n int) bool {
	if n <= 0 || n == p.RowsPerPage {
		return false
	}
	old := p.RowsPerPage
	if old <= 0 {
		old = n
	}
	first := old * (max(p.Page, 1) - 1)
	p.RowsPerPage = n
	if p.TotalRecords > 0 {
		p.TotalPages = (p.TotalRecords + n - 1) / n
	}
	p.Page = p.clamp(first/n + 1)
	return true
}

// update applies the envelope of a fetch. Missing totals default to one
// page holding the loaded rows.
func (p *Pager) update(rs *RowSet, loaded int) {
	if rs.Page > 0 {
		p.Page = rs.Page
	}
	p.TotalPages = rs.Total
	if p.TotalPages < 1 {
		p.TotalPages = 1
	}
	p.TotalRecords = rs.Records
	if p.TotalRecords <= 0 {
		p.TotalRecords = loaded
	}
}

// FirstRecord is the 1-based position of the first row of the current page.
func (p *Pager) FirstRecord() int {
	if p.TotalRecords == 0 {
		return 0
	}
	return (p.Page-1)*p.RowsPerPage + 1
}

// Window translates a scroll position into the range of pages that must be
// loaded to fill the viewport. Heights are in rows or pixels, as long as
// they agree.
func (p *Pager) Window(scrollTop, rowHeight, viewport int) (first, last int) {
	if rowHeight <= 0 || p.RowsPerPage <= 0 {
		return 1, 1
	}
	top := max(scrollTop, 0) / rowHeight
	bottom := (max(scrollTop, 0) + max(viewport, 1) - 1) / rowHeight
	return p.clamp(top/p.RowsPerPage + 1), p.clamp(bottom/p.RowsPerPage + 1)
}

// NeedsFetch reports whether the viewport reaches past the loaded rows while
// the source still has more.
func (p *Pager) NeedsFetch(scrollTop, rowHeight, viewport, loaded int) bool {
	if rowHeight <= 0 {
		return false
	}
	bottom := (max(scrollTop, 0) + max(viewport, 1) - 1) / rowHeight
	return bottom >= loaded && loaded < p.TotalRecords
}

// ScrollDebouncer delays a scroll triggered fetch until the position has
// settled. A position that is superseded before the timer fires is dropped.
type ScrollDebouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	last  int
	fn    func(pos int)
}

func NewScrollDebouncer(delay time.Duration, fn func(pos int)) *ScrollDebouncer {
	return &ScrollDebouncer{delay: delay, fn: fn}
}

// Scrolled records a new scroll position.
func (d *ScrollDebouncer) Scrolled(pos int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = pos
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(pos) })
}

func (d *ScrollDebouncer) fire(pos int) {
	d.mu.Lock()
	stale := pos != d.last
	d.mu.Unlock()
	if stale {
		return
	}
	d.fn(pos)
}

// Stop cancels a pending fire.
func (d *ScrollDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
