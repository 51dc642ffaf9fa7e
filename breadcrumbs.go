package main

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// BreadcrumbType represents the type of breadcrumb event
type BreadcrumbType string

const (
	BreadcrumbKeyboard   BreadcrumbType = "keyboard"
	BreadcrumbNavigation BreadcrumbType = "navigation"
	BreadcrumbFetch      BreadcrumbType = "fetch"
	BreadcrumbEdit       BreadcrumbType = "edit"
)

// BreadcrumbEntry represents a single breadcrumb event
type BreadcrumbEntry struct {
	Type      BreadcrumbType
	Message   string
	Data      map[string]any
	Timestamp time.Time
	Level     sentry.Level
	// Repeat counts identical events folded into this entry.
	Repeat int
}

// BreadcrumbBuffer is a thread-safe ring of recent user and grid events.
// Repeats of the same key or the same navigation within aggregateWindow are
// folded into one entry.
type BreadcrumbBuffer struct {
	mu           sync.Mutex
	entries      []BreadcrumbEntry
	maxSize      int
	currentIndex int
	count        int
	now          func() time.Time
}

const aggregateWindow = 100 * time.Millisecond

func NewBreadcrumbBuffer(maxSize int) *BreadcrumbBuffer {
	return &BreadcrumbBuffer{
		entries: make([]BreadcrumbEntry, maxSize),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (b *BreadcrumbBuffer) last() *BreadcrumbEntry {
	if b.count == 0 {
		return nil
	}
	return &b.entries[(b.currentIndex-1+b.maxSize)%b.maxSize]
}

func (b *BreadcrumbBuffer) addEntry(entry BreadcrumbEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry.Timestamp = b.now()
	entry.Repeat = 1
	if last := b.last(); canAggregate(last, &entry) {
		last.Repeat++
		last.Timestamp = entry.Timestamp
		return
	}

	b.entries[b.currentIndex] = entry
	b.currentIndex = (b.currentIndex + 1) % b.maxSize
	if b.count < b.maxSize {
		b.count++
	}
}

func canAggregate(last, current *BreadcrumbEntry) bool {
	if last == nil || last.Type != current.Type || last.Message != current.Message {
		return false
	}
	if current.Timestamp.Sub(last.Timestamp) > aggregateWindow {
		return false
	}
	return current.Type == BreadcrumbKeyboard || current.Type == BreadcrumbNavigation
}

// RecordKeyboard records a key press in the viewer.
func (b *BreadcrumbBuffer) RecordKeyboard(key string) {
	b.addEntry(BreadcrumbEntry{
		Type:    BreadcrumbKeyboard,
		Message: "Key: " + key,
		Level:   sentry.LevelDebug,
		Data:    map[string]any{"key": key},
	})
}

// RecordNavigation records a mode change such as entering search.
func (b *BreadcrumbBuffer) RecordNavigation(mode, description string) {
	b.addEntry(BreadcrumbEntry{
		Type:    BreadcrumbNavigation,
		Message: fmt.Sprintf("Navigation: %s - %s", mode, description),
		Level:   sentry.LevelInfo,
		Data:    map[string]any{"mode": mode, "description": description},
	})
}

// RecordFetch records a grid load with its page and sort.
func (b *BreadcrumbBuffer) RecordFetch(gridName string, page, rows int, sort string) {
	b.addEntry(BreadcrumbEntry{
		Type:    BreadcrumbFetch,
		Message: fmt.Sprintf("Fetch: %s page %d", gridName, page),
		Level:   sentry.LevelInfo,
		Data:    map[string]any{"grid": gridName, "page": page, "rows": rows, "sort": sort},
	})
}

// RecordEdit records an editor transition or submit.
func (b *BreadcrumbBuffer) RecordEdit(gridName, action, rowID string) {
	b.addEntry(BreadcrumbEntry{
		Type:    BreadcrumbEdit,
		Message: fmt.Sprintf("Edit: %s %s", action, rowID),
		Level:   sentry.LevelInfo,
		Data:    map[string]any{"grid": gridName, "action": action, "row": rowID},
	})
}

// snapshot returns the buffered entries oldest first.
func (b *BreadcrumbBuffer) snapshot() []BreadcrumbEntry {
	entries := make([]BreadcrumbEntry, 0, b.count)
	start := 0
	if b.count == b.maxSize {
		start = b.currentIndex
	}
	for i := range b.count {
		entries = append(entries, b.entries[(start+i)%b.maxSize])
	}
	return entries
}

func (e BreadcrumbEntry) breadcrumb() *sentry.Breadcrumb {
	message, data := e.Message, e.Data
	if e.Repeat > 1 {
		message = fmt.Sprintf("%s (x%d)", e.Message, e.Repeat)
		data = maps.Clone(e.Data)
		data["count"] = e.Repeat
	}
	return &sentry.Breadcrumb{
		Message:   message,
		Category:  string(e.Type),
		Data:      data,
		Timestamp: e.Timestamp,
		Level:     e.Level,
	}
}

// Flush moves the buffered breadcrumbs to the Sentry scope and empties the buffer.
func (b *BreadcrumbBuffer) Flush() {
	b.mu.Lock()
	entries := b.snapshot()
	b.entries = make([]BreadcrumbEntry, b.maxSize)
	b.currentIndex = 0
	b.count = 0
	b.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		for _, e := range entries {
			scope.AddBreadcrumb(e.breadcrumb(), 100)
		}
	})
}

// breadcrumbs is nil unless telemetry is enabled.
var breadcrumbs *BreadcrumbBuffer

func InitBreadcrumbs(maxSize int) {
	breadcrumbs = NewBreadcrumbBuffer(maxSize)
}

func recordKey(key string) {
	if breadcrumbs != nil {
		breadcrumbs.RecordKeyboard(key)
	}
}

func recordNavigation(mode, description string) {
	if breadcrumbs != nil {
		breadcrumbs.RecordNavigation(mode, description)
	}
}

func recordEdit(gridName, action, rowID string) {
	if breadcrumbs != nil {
		breadcrumbs.RecordEdit(gridName, action, rowID)
	}
}

func recordFetch(gridName string, page, rows int, sort string) {
	if breadcrumbs != nil {
		breadcrumbs.RecordFetch(gridName, page, rows, sort)
	}
}
