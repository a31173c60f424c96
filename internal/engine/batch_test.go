package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/law-makers/cartelera/pkg/models"
)

func batchFixture(n int) (map[string]string, []models.ItemReference) {
	pages := map[string]string{}
	items := make([]models.ItemReference, n)
	for i := 0; i < n; i++ {
		title := fmt.Sprintf("Film%02d", i)
		url := "https://cines.example.com/peliculas/" + title
		items[i] = models.ItemReference{Title: title, URL: url}
		// every fifth page is missing and fails navigation
		if i%5 != 4 {
			pages[url] = detailHTML(title, true)
		}
	}
	return pages, items
}

func TestRunBatchReturnsOneOutcomePerItem(t *testing.T) {
	pages, items := batchFixture(20)
	nav := newFakeNav(pages)
	w := &memWriter{}
	var reported atomic.Int32
	e, err := New(Options{
		Navigator: nav,
		Writer:    w,
		Images:    &fakeImages{},
		OnOutcome: func(models.Outcome) { reported.Add(1) },
	})
	if err != nil {
		t.Fatal(err)
	}

	outcomes := e.RunBatch(context.Background(), items, 5)

	if len(outcomes) != len(items) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(items))
	}
	ok, failed := 0, 0
	for i, o := range outcomes {
		if o.Item.URL != items[i].URL {
			t.Errorf("outcome %d is for %s, want %s", i, o.Item.URL, items[i].URL)
		}
		if o.Succeeded() {
			ok++
		} else {
			failed++
		}
	}
	if ok != 16 || failed != 4 {
		t.Errorf("ok=%d failed=%d, want 16/4", ok, failed)
	}
	if int(reported.Load()) != len(items) {
		t.Errorf("OnOutcome called %d times", reported.Load())
	}
	if nav.violations.Load() != 0 {
		t.Errorf("%d navigator calls without the lock", nav.violations.Load())
	}
	if len(w.records) != 16 || len(w.failures) != 4 {
		t.Errorf("records=%d failures=%d", len(w.records), len(w.failures))
	}
}

func TestRunBatchEmpty(t *testing.T) {
	e := newTestEngine(t, newFakeNav(nil), &memWriter{}, nil)
	if got := e.RunBatch(context.Background(), nil, 4); len(got) != 0 {
		t.Errorf("got %d outcomes", len(got))
	}
}

func TestRunBatchZeroWorkers(t *testing.T) {
	pages, items := batchFixture(3)
	e := newTestEngine(t, newFakeNav(pages), &memWriter{}, nil)
	if got := e.RunBatch(context.Background(), items, 0); len(got) != 3 {
		t.Errorf("got %d outcomes", len(got))
	}
}

func TestRunBatchCancelledBeforeSubmission(t *testing.T) {
	pages, items := batchFixture(10)
	e, err := New(Options{
		Navigator:     newFakeNav(pages),
		Writer:        &memWriter{},
		SubmitStagger: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(75*time.Millisecond, cancel)
	outcomes := e.RunBatch(ctx, items, 2)

	if len(outcomes) != len(items) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(items))
	}
	cancelled := 0
	for _, o := range outcomes {
		if CodeOf(o.Err) == ErrCodeCancelled {
			cancelled++
		}
	}
	if cancelled == 0 || cancelled == len(items) {
		t.Errorf("cancelled = %d, want some but not all", cancelled)
	}
	if CodeOf(outcomes[0].Err) == ErrCodeCancelled {
		t.Error("first item was submitted before cancel")
	}
}
