package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"quotedesk/internal/domain"
	"quotedesk/internal/storage/memory"
)

func seed(t *testing.T, n int) *memory.Repo {
	t.Helper()
	r := memory.New()
	r.PutQuote(domain.Quote{ID: "q1", BaseCurrency: "USD"})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// insert newest first to check ordering
	for i := n; i >= 1; i-- {
		if err := r.CreateOption(context.Background(), domain.QuoteHotelOption{
			ID: fmt.Sprintf("o%d", i), QuoteID: "q1", CurrencyCode: "USD",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("CreateOption: %v", err)
		}
	}
	return r
}

func countSelected(t *testing.T, r *memory.Repo) (int, string) {
	t.Helper()
	opts, err := r.ListOptions(context.Background(), "q1")
	if err != nil {
		t.Fatalf("ListOptions: %v", err)
	}
	n, id := 0, ""
	for _, o := range opts {
		if o.IsSelected {
			n++
			id = o.ID
		}
	}
	return n, id
}

func TestListOptions_CreationOrder(t *testing.T) {
	r := seed(t, 3)
	opts, _ := r.ListOptions(context.Background(), "q1")
	for i, o := range opts {
		if want := fmt.Sprintf("o%d", i+1); o.ID != want {
			t.Fatalf("pos %d: want %s got %s", i, want, o.ID)
		}
	}
}

func TestSetSelection_MovesFlagAndPointer(t *testing.T) {
	r := seed(t, 3)
	ctx := context.Background()
	at := time.Now().UTC()
	if err := r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q1", OptionID: "o2", At: at}); err != nil {
		t.Fatalf("select o2: %v", err)
	}
	if err := r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q1", OptionID: "o3", At: at}); err != nil {
		t.Fatalf("select o3: %v", err)
	}
	if n, id := countSelected(t, r); n != 1 || id != "o3" {
		t.Fatalf("want exactly o3 selected, got %d (%s)", n, id)
	}
	q, _ := r.GetQuote(ctx, "q1")
	if q.SelectedHotelOptionID == nil || *q.SelectedHotelOptionID != "o3" || q.ClientSelectionDate == nil {
		t.Fatalf("pointer not written: %+v", q)
	}
}

func TestSetSelection_ForeignOptionLeavesStateUntouched(t *testing.T) {
	r := seed(t, 2)
	r.PutQuote(domain.Quote{ID: "q2", BaseCurrency: "USD"})
	ctx := context.Background()
	_ = r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q1", OptionID: "o1", At: time.Now()})
	rev, _ := r.QuoteRevision(ctx, "q1")

	err := r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q2", OptionID: "o2", At: time.Now()})
	if !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("want ErrOptionNotFound, got %v", err)
	}
	if n, id := countSelected(t, r); n != 1 || id != "o1" {
		t.Fatalf("state changed: %d %s", n, id)
	}
	if after, _ := r.QuoteRevision(ctx, "q1"); after != rev {
		t.Fatalf("revision moved %d -> %d", rev, after)
	}
}

func TestSetSelection_CancelledContextWritesNothing(t *testing.T) {
	r := seed(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q1", OptionID: "o1", At: time.Now()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if n, _ := countSelected(t, r); n != 0 {
		t.Fatalf("cancelled selection was written")
	}
}

func TestDeleteOption_ClearsSelectionPointer(t *testing.T) {
	r := seed(t, 2)
	ctx := context.Background()
	_ = r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q1", OptionID: "o1", At: time.Now()})
	if err := r.DeleteOption(ctx, "q1", "o1"); err != nil {
		t.Fatalf("DeleteOption: %v", err)
	}
	q, _ := r.GetQuote(ctx, "q1")
	if q.SelectedHotelOptionID != nil || q.ClientSelectionDate != nil {
		t.Fatalf("pointer left dangling: %+v", q)
	}
	opts, _ := r.ListOptions(ctx, "q1")
	if len(opts) != 1 || opts[0].ID != "o2" {
		t.Fatalf("remaining options: %+v", opts)
	}
	if err := r.DeleteOption(ctx, "q1", "o1"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("second delete: want ErrOptionNotFound, got %v", err)
	}
}

func TestSetSelection_ConcurrentSelectorsKeepExactlyOne(t *testing.T) {
	r := seed(t, 5)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("o%d", i%5+1)
			if err := r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q1", OptionID: id, At: time.Now()}); err != nil {
				t.Errorf("select %s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()
	n, id := countSelected(t, r)
	if n != 1 {
		t.Fatalf("want exactly one selected, got %d", n)
	}
	q, _ := r.GetQuote(ctx, "q1")
	if *q.SelectedHotelOptionID != id {
		t.Fatalf("pointer %s disagrees with flag %s", *q.SelectedHotelOptionID, id)
	}
}

func TestSelectionSnapshot_NeverSeesAGapDuringSelection(t *testing.T) {
	r := seed(t, 4)
	ctx := context.Background()
	_ = r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q1", OptionID: "o1", At: time.Now()})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			id := fmt.Sprintf("o%d", i%4+1)
			_ = r.SetSelection(ctx, domain.SelectionCommand{QuoteID: "q1", OptionID: id, At: time.Now()})
		}
	}()
	for i := 0; i < 2000; i++ {
		snap, err := r.SelectionSnapshot(ctx, "q1")
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if snap.OptionID == nil || !snap.Flagged {
			close(stop)
			wg.Wait()
			t.Fatalf("read %d saw no selected option: %+v", i, snap)
		}
	}
	close(stop)
	wg.Wait()
}
