// Package queue implements the sequencer and in-memory event store: a
// single-writer actor that assigns dense monotonic sequence numbers,
// deduplicates, enforces retention bounds, and fans out to long-poll
// waiters and push subscribers.
//
// Concurrency model: one internal goroutine owns all mutable state (ring,
// sequence counters, dedup indexes, waiters, subscribers). Public methods
// communicate with the loop through channels, so no mutexes are required.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/apperr"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

// Options bound the queue.
type Options struct {
	MaxItems      int           // retention bound on the ring (default 200_000)
	MaxAge        time.Duration // retention bound on item age (default 7 days)
	InflightCap   int           // pending submissions before BACKPRESSURE (default 1000)
	DedupWindow   time.Duration // entry content dedup window (default 60s)
	FlushInterval time.Duration // write-behind persistence lag (default 2s)
}

func (o *Options) applyDefaults() {
	if o.MaxItems <= 0 {
		o.MaxItems = 200_000
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 7 * 24 * time.Hour
	}
	if o.InflightCap <= 0 {
		o.InflightCap = 1000
	}
	if o.DedupWindow <= 0 {
		o.DedupWindow = 60 * time.Second
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
}

// ReadResult is the response to a ReadSince call. Cursor is the highest
// sequence currently stored, not just the highest returned.
type ReadResult struct {
	Entries []telemetry.Entry `json:"entries"`
	Events  []telemetry.Event `json:"events"`
	Cursor  uint64            `json:"cursor"`
}

// Stats is a snapshot of queue state for the health report.
type Stats struct {
	Length   int    `json:"queue_length"`
	FirstSeq uint64 `json:"first_seq"`
	LastSeq  uint64 `json:"sequence"`
	Entries  int    `json:"entries"`
	Events   int    `json:"events"`
	Evicted  uint64 `json:"evicted"`
	Deduped  uint64 `json:"deduped"`
	Acked    uint64 `json:"acked_cursor"`
}

type submitReq struct {
	item  telemetry.QueuedItem
	reply chan submitResp
}

type submitResp struct {
	seq uint64
	err error
}

type readReq struct {
	since uint64
	reply chan readResp
}

type readResp struct {
	res ReadResult
	err error
}

// Queue is the sequencer and event store.
type Queue struct {
	opts   Options
	logger *slog.Logger
	store  *Store // nil when running without persistence

	submitCh      chan submitReq
	readCh        chan readReq
	ackCh         chan uint64
	statsCh       chan chan Stats
	waitCh        chan chan struct{}
	unwaitCh      chan chan struct{}
	subscribeCh   chan chan telemetry.QueuedItem
	unsubscribeCh chan chan telemetry.QueuedItem

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates the queue and starts its actor loop. store may be nil for
// tests that do not need durability; when present, persisted items within
// the retention bounds are replayed so lastSeq survives restarts.
func New(opts Options, store *Store, logger *slog.Logger) *Queue {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		opts:          opts,
		logger:        logger,
		store:         store,
		submitCh:      make(chan submitReq, opts.InflightCap),
		readCh:        make(chan readReq),
		ackCh:         make(chan uint64),
		statsCh:       make(chan chan Stats),
		waitCh:        make(chan chan struct{}),
		unwaitCh:      make(chan chan struct{}),
		subscribeCh:   make(chan chan telemetry.QueuedItem),
		unsubscribeCh: make(chan chan telemetry.QueuedItem),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.stopped)

	var (
		ring     []telemetry.QueuedItem
		lastSeq  uint64
		firstSeq uint64 = 1
		evicted  uint64
		deduped  uint64
		acked    uint64
	)

	// Seen prompt ids are rejected for the process lifetime; entry content
	// hashes only within the dedup window.
	promptSeq := make(map[string]uint64)
	entrySeen := make(map[string]time.Time)

	waiters := make(map[chan struct{}]struct{})
	subscribers := make(map[chan telemetry.QueuedItem]struct{})

	var pending []telemetry.QueuedItem

	if q.store != nil {
		replayed, maxSeq, err := q.store.Replay(q.opts.MaxItems, q.opts.MaxAge)
		if err != nil {
			q.logger.Warn("queue: replay failed", slog.String("error", err.Error()))
		} else if maxSeq > 0 {
			ring = replayed
			lastSeq = maxSeq
			firstSeq = maxSeq + 1
			if len(ring) > 0 {
				firstSeq = ring[0].Seq
			}
			for _, it := range ring {
				if it.Kind == telemetry.KindEvent && it.Event != nil && it.Event.Type == telemetry.EventPromptCreated {
					promptSeq[it.Event.ID] = it.Seq
				}
			}
			q.logger.Info("queue: replayed",
				slog.Int("items", len(ring)),
				slog.Uint64("last_seq", lastSeq))
		}
	}

	evict := func(now time.Time) {
		cutoff := now.Add(-q.opts.MaxAge).UnixMilli()
		drop := 0
		for drop < len(ring) {
			if len(ring)-drop > q.opts.MaxItems || ring[drop].Timestamp() < cutoff {
				drop++
				continue
			}
			break
		}
		if drop > 0 {
			ring = append(ring[:0:0], ring[drop:]...)
			evicted += uint64(drop)
			if len(ring) > 0 {
				firstSeq = ring[0].Seq
			} else {
				firstSeq = lastSeq + 1
			}
		}
	}

	readSince := func(since uint64) (ReadResult, error) {
		res := ReadResult{Entries: []telemetry.Entry{}, Events: []telemetry.Event{}, Cursor: lastSeq}
		if res.Cursor < since {
			res.Cursor = since
		}
		// since=0 is the full-reload request and is never truncated; any
		// other cursor below the retained window must reconcile by full
		// reload.
		if since > 0 && since+1 < firstSeq {
			return res, fmt.Errorf("since %d below first retained seq %d: %w", since, firstSeq, apperr.ErrTruncated)
		}
		for _, it := range ring {
			if it.Seq <= since {
				continue
			}
			switch it.Kind {
			case telemetry.KindEntry:
				if it.Entry != nil {
					res.Entries = append(res.Entries, *it.Entry)
				}
			case telemetry.KindEvent:
				if it.Event != nil {
					res.Events = append(res.Events, *it.Event)
				}
			}
		}
		return res, nil
	}

	flushTicker := time.NewTicker(q.opts.FlushInterval)
	defer flushTicker.Stop()

	flush := func() {
		if q.store == nil || len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		q.store.Append(batch)
	}

	for {
		select {
		case <-q.stopCh:
			flush()
			for ch := range subscribers {
				close(ch)
			}
			for ch := range waiters {
				close(ch)
			}
			return

		case req := <-q.submitCh:
			now := time.Now()
			item := req.item

			// Dedup by (kind, stable key).
			if item.Kind == telemetry.KindEvent && item.Event != nil && item.Event.Type == telemetry.EventPromptCreated {
				if seq, ok := promptSeq[item.Event.ID]; ok {
					deduped++
					req.reply <- submitResp{seq: seq}
					continue
				}
			}
			if item.Kind == telemetry.KindEntry && item.Entry != nil {
				key := item.Entry.FilePath + "\x00" + telemetry.ContentHash(item.Entry.AfterCode)
				if seen, ok := entrySeen[key]; ok && now.Sub(seen) < q.opts.DedupWindow {
					deduped++
					req.reply <- submitResp{seq: lastSeq}
					continue
				}
				entrySeen[key] = now
				// Drop stale window entries opportunistically.
				if len(entrySeen) > 4096 {
					for k, t := range entrySeen {
						if now.Sub(t) >= q.opts.DedupWindow {
							delete(entrySeen, k)
						}
					}
				}
			}

			lastSeq++
			item.Seq = lastSeq
			if item.Kind == telemetry.KindEntry && item.Entry != nil && item.Entry.Timestamp == 0 {
				item.Entry.Timestamp = now.UnixMilli()
			}
			if item.Kind == telemetry.KindEvent && item.Event != nil {
				if item.Event.Timestamp == 0 {
					item.Event.Timestamp = now.UnixMilli()
				}
				if item.Event.Type == telemetry.EventPromptCreated {
					promptSeq[item.Event.ID] = item.Seq
				}
			}

			ring = append(ring, item)
			evict(now)
			pending = append(pending, item)

			// Wake long-poll waiters (one wakeup each) and push to live
			// subscribers without ever blocking the loop.
			for ch := range waiters {
				close(ch)
				delete(waiters, ch)
			}
			for ch := range subscribers {
				select {
				case ch <- item:
				default:
					// Subscriber buffer full; it resynchronises via its
					// cursor, so skipping here is safe.
				}
			}

			req.reply <- submitResp{seq: item.Seq}

		case req := <-q.readCh:
			res, err := readSince(req.since)
			req.reply <- readResp{res: res, err: err}

		case cursor := <-q.ackCh:
			if cursor > acked {
				acked = cursor
			}

		case reply := <-q.statsCh:
			entries, events := 0, 0
			for _, it := range ring {
				if it.Kind == telemetry.KindEntry {
					entries++
				} else {
					events++
				}
			}
			reply <- Stats{
				Length:   len(ring),
				FirstSeq: firstSeq,
				LastSeq:  lastSeq,
				Entries:  entries,
				Events:   events,
				Evicted:  evicted,
				Deduped:  deduped,
				Acked:    acked,
			}

		case ch := <-q.waitCh:
			waiters[ch] = struct{}{}

		case ch := <-q.unwaitCh:
			delete(waiters, ch)

		case ch := <-q.subscribeCh:
			subscribers[ch] = struct{}{}

		case ch := <-q.unsubscribeCh:
			if _, ok := subscribers[ch]; ok {
				delete(subscribers, ch)
				close(ch)
			}

		case <-flushTicker.C:
			flush()
			evict(time.Now())
		}
	}
}

// SubmitEntry sequences a content-bearing entry.
func (q *Queue) SubmitEntry(e *telemetry.Entry) (uint64, error) {
	return q.submit(telemetry.QueuedItem{Kind: telemetry.KindEntry, Entry: e})
}

// SubmitEvent sequences a typed notification.
func (q *Queue) SubmitEvent(ev *telemetry.Event) (uint64, error) {
	return q.submit(telemetry.QueuedItem{Kind: telemetry.KindEvent, Event: ev})
}

func (q *Queue) submit(item telemetry.QueuedItem) (uint64, error) {
	req := submitReq{item: item, reply: make(chan submitResp, 1)}
	select {
	case q.submitCh <- req:
	case <-q.stopped:
		return 0, fmt.Errorf("queue stopped: %w", apperr.ErrUnavailable)
	default:
		// The loop cannot keep up with submissions; refuse rather than
		// drop silently.
		return 0, fmt.Errorf("submission queue full: %w", apperr.ErrBackpressure)
	}
	select {
	case resp := <-req.reply:
		return resp.seq, resp.err
	case <-q.stopped:
		return 0, fmt.Errorf("queue stopped: %w", apperr.ErrUnavailable)
	}
}

// ReadSince returns all items with seq > since plus the current cursor.
func (q *Queue) ReadSince(since uint64) (ReadResult, error) {
	req := readReq{since: since, reply: make(chan readResp, 1)}
	select {
	case q.readCh <- req:
	case <-q.stopped:
		return ReadResult{}, fmt.Errorf("queue stopped: %w", apperr.ErrUnavailable)
	}
	resp := <-req.reply
	return resp.res, resp.err
}

// WaitSince behaves like ReadSince, but when no items are newer than since
// it suspends until a new item is sequenced, the timeout elapses, or ctx is
// cancelled. Each call receives at most one wakeup.
func (q *Queue) WaitSince(ctx context.Context, since uint64, timeout time.Duration) (ReadResult, error) {
	res, err := q.ReadSince(since)
	if err != nil || len(res.Entries) > 0 || len(res.Events) > 0 {
		return res, err
	}

	wake := make(chan struct{})
	select {
	case q.waitCh <- wake:
	case <-q.stopped:
		return res, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wake:
	case <-timer.C:
		q.cancelWait(wake)
	case <-ctx.Done():
		q.cancelWait(wake)
		return res, nil
	case <-q.stopped:
		return res, nil
	}
	return q.ReadSince(since)
}

func (q *Queue) cancelWait(ch chan struct{}) {
	select {
	case q.unwaitCh <- ch:
	case <-q.stopped:
	}
}

// Ack records the highest cursor a consumer reports as durably processed.
// Advisory only: eviction is purely retention-driven.
func (q *Queue) Ack(cursor uint64) {
	select {
	case q.ackCh <- cursor:
	case <-q.stopped:
	}
}

// Subscribe registers a push subscriber. Items arrive in strictly
// increasing seq order; a full buffer skips rather than blocks.
func (q *Queue) Subscribe() chan telemetry.QueuedItem {
	ch := make(chan telemetry.QueuedItem, 256)
	select {
	case q.subscribeCh <- ch:
	case <-q.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a push subscriber and closes its channel.
func (q *Queue) Unsubscribe(ch chan telemetry.QueuedItem) {
	select {
	case q.unsubscribeCh <- ch:
	case <-q.stopped:
	}
}

// Stats returns a snapshot of queue state.
func (q *Queue) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case q.statsCh <- reply:
	case <-q.stopped:
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-q.stopped:
		return Stats{}
	}
}

// Close flushes pending persistence and stops the actor loop.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.stopCh)
	}
	<-q.stopped
}
