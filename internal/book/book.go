package book

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/taehong0-0/mpdex/internal/model"
)

// ErrGap is returned when a delta's first update id does not follow the
// book's last applied id. The caller must refetch a snapshot before
// applying further deltas.
var ErrGap = errors.New("book: update sequence gap")

// MaxLevels caps the retained depth per side.
const MaxLevels = 50

// Level is one wire-format depth level: price and size as decimal strings.
type Level struct {
	Price string
	Size  string
}

// Book is a thread-safe local orderbook for one symbol. Levels are keyed by
// their wire price string so delta removals match exactly regardless of
// float formatting.
type Book struct {
	mu           sync.Mutex
	symbol       string
	bids         map[string]float64
	asks         map[string]float64
	lastUpdateID int64
	ready        bool
	updatedAt    int64
}

// New returns an empty, not-ready book for symbol.
func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   make(map[string]float64),
		asks:   make(map[string]float64),
	}
}

// ApplySnapshot replaces the book wholesale and marks it ready. Feeds
// without update ids pass 0.
func (b *Book) ApplySnapshot(bids, asks []Level, lastUpdateID, ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[string]float64, len(bids))
	b.asks = make(map[string]float64, len(asks))
	applyLevels(b.bids, bids)
	applyLevels(b.asks, asks)
	b.trimLocked()
	b.lastUpdateID = lastUpdateID
	b.updatedAt = ts
	b.ready = true
}

// ApplyDelta applies an incremental update covering ids [firstID, finalID].
// Deltas entirely at or before the last applied id are skipped. A delta
// starting past lastUpdateID+1 invalidates the book and returns ErrGap;
// the book stays unusable until the next ApplySnapshot.
func (b *Book) ApplyDelta(firstID, finalID int64, bids, asks []Level, ts int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return ErrGap
	}
	if finalID <= b.lastUpdateID {
		return nil
	}
	if firstID > b.lastUpdateID+1 {
		b.invalidateLocked()
		return ErrGap
	}
	applyLevels(b.bids, bids)
	applyLevels(b.asks, asks)
	b.trimLocked()
	b.lastUpdateID = finalID
	b.updatedAt = ts
	return nil
}

// trimLocked caps each side at MaxLevels, dropping the worst-priced
// levels so the maps stay bounded under long delta streams.
func (b *Book) trimLocked() {
	trimSide(b.bids, true)
	trimSide(b.asks, false)
}

func trimSide(m map[string]float64, keepHighest bool) {
	if len(m) <= MaxLevels {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, _ := strconv.ParseFloat(keys[i], 64)
		pj, _ := strconv.ParseFloat(keys[j], 64)
		if keepHighest {
			return pi > pj
		}
		return pi < pj
	})
	for _, k := range keys[MaxLevels:] {
		delete(m, k)
	}
}

// applyLevels upserts each level into m; a zero size removes the level.
func applyLevels(m map[string]float64, levels []Level) {
	for _, lv := range levels {
		sz, err := strconv.ParseFloat(lv.Size, 64)
		if err != nil {
			continue
		}
		if sz == 0 {
			delete(m, lv.Price)
			continue
		}
		m[lv.Price] = sz
	}
}

// Invalidate clears the book and marks it not ready.
func (b *Book) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidateLocked()
}

func (b *Book) invalidateLocked() {
	b.bids = make(map[string]float64)
	b.asks = make(map[string]float64)
	b.ready = false
}

// Ready reports whether the book has a valid snapshot applied.
func (b *Book) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Snapshot returns the current book sorted best-first (bids descending,
// asks ascending), truncated to depth levels per side. depth <= 0 or
// depth > MaxLevels uses MaxLevels. ok is false while the book is not
// ready.
func (b *Book) Snapshot(depth int) (snap model.BookSnapshot, ok bool) {
	if depth <= 0 || depth > MaxLevels {
		depth = MaxLevels
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return model.BookSnapshot{}, false
	}

	return model.BookSnapshot{
		Symbol:       b.symbol,
		Bids:         sortedLevels(b.bids, true, depth),
		Asks:         sortedLevels(b.asks, false, depth),
		LastUpdateID: b.lastUpdateID,
		Timestamp:    b.updatedAt,
	}, true
}

func sortedLevels(m map[string]float64, descending bool, depth int) []model.BookLevel {
	out := make([]model.BookLevel, 0, len(m))
	for ps, sz := range m {
		px, err := strconv.ParseFloat(ps, 64)
		if err != nil {
			continue
		}
		out = append(out, model.BookLevel{Price: px, Size: sz})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	if len(out) > depth {
		out = out[:depth]
	}
	return out
}
