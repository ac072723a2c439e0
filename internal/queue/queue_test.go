package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/apperr"
	"github.com/hamidahoderinwale/cursor-telemetry-sub016/internal/telemetry"
)

func testQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	q := New(opts, nil, nil)
	t.Cleanup(q.Close)
	return q
}

func entry(path, content string) *telemetry.Entry {
	return &telemetry.Entry{
		ID:         telemetry.NewID(),
		Timestamp:  telemetry.NowMillis(),
		FilePath:   path,
		AfterCode:  content,
		ChangeType: telemetry.ChangeModified,
		Source:     "test",
	}
}

func promptEvent(id string) *telemetry.Event {
	return &telemetry.Event{
		ID:        id,
		Timestamp: telemetry.NowMillis(),
		Type:      telemetry.EventPromptCreated,
		Details:   map[string]any{"text": "do the thing"},
	}
}

func TestSubmitAssignsDenseSequence(t *testing.T) {
	q := testQueue(t, Options{})

	for i := 1; i <= 5; i++ {
		seq, err := q.SubmitEntry(entry(fmt.Sprintf("file%d.go", i), fmt.Sprintf("content %d", i)))
		if err != nil {
			t.Fatalf("SubmitEntry: %v", err)
		}
		if seq != uint64(i) {
			t.Errorf("seq = %d, want %d", seq, i)
		}
	}

	res, err := q.ReadSince(0)
	if err != nil {
		t.Fatalf("ReadSince(0): %v", err)
	}
	if len(res.Entries) != 5 {
		t.Fatalf("entries = %d, want 5", len(res.Entries))
	}
	if res.Cursor != 5 {
		t.Errorf("cursor = %d, want 5", res.Cursor)
	}
}

func TestReadSinceSkipsConsumed(t *testing.T) {
	q := testQueue(t, Options{})

	for i := 0; i < 4; i++ {
		if _, err := q.SubmitEntry(entry(fmt.Sprintf("f%d.go", i), fmt.Sprintf("c%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	res, err := q.ReadSince(2)
	if err != nil {
		t.Fatalf("ReadSince(2): %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(res.Entries))
	}
	if res.Entries[0].FilePath != "f2.go" {
		t.Errorf("first entry = %q, want f2.go", res.Entries[0].FilePath)
	}
	if res.Cursor != 4 {
		t.Errorf("cursor = %d, want 4", res.Cursor)
	}
}

func TestReadSinceCursorAheadOfStream(t *testing.T) {
	q := testQueue(t, Options{})
	if _, err := q.SubmitEntry(entry("a.go", "x")); err != nil {
		t.Fatal(err)
	}

	// A consumer cursor ahead of the stream is echoed back, never rewound.
	res, err := q.ReadSince(10)
	if err != nil {
		t.Fatalf("ReadSince(10): %v", err)
	}
	if len(res.Entries) != 0 || len(res.Events) != 0 {
		t.Fatalf("expected empty result, got %d entries %d events", len(res.Entries), len(res.Events))
	}
	if res.Cursor != 10 {
		t.Errorf("cursor = %d, want 10", res.Cursor)
	}
}

func TestRetentionTruncatesOldCursors(t *testing.T) {
	q := testQueue(t, Options{MaxItems: 3})

	for i := 1; i <= 5; i++ {
		if _, err := q.SubmitEntry(entry(fmt.Sprintf("f%d.go", i), fmt.Sprintf("c%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	// Seqs 1 and 2 are evicted; a consumer at cursor 1 cannot resume.
	_, err := q.ReadSince(1)
	if !errors.Is(err, apperr.ErrTruncated) {
		t.Fatalf("ReadSince(1) err = %v, want ErrTruncated", err)
	}

	// Cursor 2 can resume: seq 3 is the first retained item.
	res, err := q.ReadSince(2)
	if err != nil {
		t.Fatalf("ReadSince(2): %v", err)
	}
	if len(res.Entries) != 3 {
		t.Errorf("entries = %d, want 3", len(res.Entries))
	}

	// since=0 is the full-reload request and is never truncated.
	res, err = q.ReadSince(0)
	if err != nil {
		t.Fatalf("ReadSince(0): %v", err)
	}
	if len(res.Entries) != 3 {
		t.Errorf("full reload entries = %d, want 3", len(res.Entries))
	}
	if res.Cursor != 5 {
		t.Errorf("cursor = %d, want 5", res.Cursor)
	}

	st := q.Stats()
	if st.Evicted != 2 {
		t.Errorf("evicted = %d, want 2", st.Evicted)
	}
	if st.FirstSeq != 3 {
		t.Errorf("firstSeq = %d, want 3", st.FirstSeq)
	}
}

func TestPromptDedupByID(t *testing.T) {
	q := testQueue(t, Options{})

	seq1, err := q.SubmitEvent(promptEvent("prompt-1"))
	if err != nil {
		t.Fatal(err)
	}
	seq2, err := q.SubmitEvent(promptEvent("prompt-1"))
	if err != nil {
		t.Fatal(err)
	}
	if seq1 != seq2 {
		t.Errorf("duplicate prompt got seq %d, want %d", seq2, seq1)
	}

	res, _ := q.ReadSince(0)
	if len(res.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(res.Events))
	}
	if st := q.Stats(); st.Deduped != 1 {
		t.Errorf("deduped = %d, want 1", st.Deduped)
	}
}

func TestEntryContentDedupWindow(t *testing.T) {
	q := testQueue(t, Options{DedupWindow: time.Hour})

	if _, err := q.SubmitEntry(entry("a.go", "same content")); err != nil {
		t.Fatal(err)
	}
	if _, err := q.SubmitEntry(entry("a.go", "same content")); err != nil {
		t.Fatal(err)
	}
	// Same content on a different path is a distinct change.
	if _, err := q.SubmitEntry(entry("b.go", "same content")); err != nil {
		t.Fatal(err)
	}

	res, _ := q.ReadSince(0)
	if len(res.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(res.Entries))
	}
	if st := q.Stats(); st.Deduped != 1 {
		t.Errorf("deduped = %d, want 1", st.Deduped)
	}
}

func TestWaitSinceWakesOnSubmit(t *testing.T) {
	q := testQueue(t, Options{})

	type result struct {
		res ReadResult
		err error
	}
	got := make(chan result, 1)
	go func() {
		res, err := q.WaitSince(context.Background(), 0, 5*time.Second)
		got <- result{res, err}
	}()

	// Give the waiter time to register before submitting.
	time.Sleep(50 * time.Millisecond)
	if _, err := q.SubmitEntry(entry("woke.go", "x")); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("WaitSince: %v", r.err)
		}
		if len(r.res.Entries) != 1 || r.res.Entries[0].FilePath != "woke.go" {
			t.Fatalf("unexpected result: %+v", r.res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitSince never woke")
	}
}

func TestWaitSinceTimesOutEmpty(t *testing.T) {
	q := testQueue(t, Options{})

	start := time.Now()
	res, err := q.WaitSince(context.Background(), 0, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitSince: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("returned before timeout")
	}
	if len(res.Entries) != 0 || len(res.Events) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestWaitSinceReturnsImmediatelyWhenBehind(t *testing.T) {
	q := testQueue(t, Options{})
	if _, err := q.SubmitEntry(entry("a.go", "x")); err != nil {
		t.Fatal(err)
	}

	res, err := q.WaitSince(context.Background(), 0, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitSince: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}
}

func TestSubscribeReceivesSequencedItems(t *testing.T) {
	q := testQueue(t, Options{})
	ch := q.Subscribe()
	defer q.Unsubscribe(ch)

	if _, err := q.SubmitEntry(entry("live.go", "x")); err != nil {
		t.Fatal(err)
	}

	select {
	case item := <-ch:
		if item.Seq != 1 {
			t.Errorf("seq = %d, want 1", item.Seq)
		}
		if item.Entry == nil || item.Entry.FilePath != "live.go" {
			t.Errorf("unexpected item: %+v", item)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber never received item")
	}
}

func TestAckIsAdvisory(t *testing.T) {
	q := testQueue(t, Options{})
	for i := 0; i < 3; i++ {
		if _, err := q.SubmitEntry(entry(fmt.Sprintf("f%d.go", i), fmt.Sprintf("c%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	q.Ack(3)

	// Acked items stay readable: eviction is retention-driven only.
	res, err := q.ReadSince(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 3 {
		t.Errorf("entries = %d, want 3", len(res.Entries))
	}
	if st := q.Stats(); st.Acked != 3 {
		t.Errorf("acked = %d, want 3", st.Acked)
	}

	// A lower ack never regresses the recorded cursor.
	q.Ack(1)
	if st := q.Stats(); st.Acked != 3 {
		t.Errorf("acked after regression = %d, want 3", st.Acked)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	q := New(Options{}, nil, nil)
	q.Close()

	_, err := q.SubmitEntry(entry("late.go", "x"))
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}

	// Close is idempotent.
	q.Close()
}

func TestStatsCounts(t *testing.T) {
	q := testQueue(t, Options{})
	if _, err := q.SubmitEntry(entry("a.go", "x")); err != nil {
		t.Fatal(err)
	}
	if _, err := q.SubmitEvent(promptEvent("p1")); err != nil {
		t.Fatal(err)
	}

	st := q.Stats()
	if st.Length != 2 || st.Entries != 1 || st.Events != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.LastSeq != 2 {
		t.Errorf("lastSeq = %d, want 2", st.LastSeq)
	}
}
