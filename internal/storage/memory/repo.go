// Package memory is an in-process repository used for the dev store and
// unit tests. One mutex serializes writers, which gives the same
// all-or-nothing selection semantics as the MySQL transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"quotedesk/internal/domain"
)

type Repo struct {
	mu      sync.RWMutex
	quotes  map[string]domain.Quote
	options map[string][]domain.QuoteHotelOption // by quote id
}

func New() *Repo {
	return &Repo{
		quotes:  map[string]domain.Quote{},
		options: map[string][]domain.QuoteHotelOption{},
	}
}

// PutQuote stores q as the quote builder would, bumping its revision.
func (r *Repo) PutQuote(q domain.Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.quotes[q.ID]; ok {
		q.Revision = prev.Revision + 1
	} else if q.Revision == 0 {
		q.Revision = 1
	}
	r.quotes[q.ID] = cloneQuote(q)
}

func (r *Repo) GetQuote(ctx context.Context, id string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quotes[id]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, id)
	}
	return cloneQuote(q), nil
}

func (r *Repo) QuoteRevision(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quotes[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, id)
	}
	return q.Revision, nil
}

func (r *Repo) ListOptions(ctx context.Context, quoteID string) ([]domain.QuoteHotelOption, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.quotes[quoteID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, quoteID)
	}
	src := r.options[quoteID]
	out := make([]domain.QuoteHotelOption, 0, len(src))
	for _, o := range src {
		out = append(out, cloneOption(o))
	}
	return out, nil
}

func (r *Repo) GetOption(ctx context.Context, quoteID, optionID string) (domain.QuoteHotelOption, error) {
	if err := ctx.Err(); err != nil {
		return domain.QuoteHotelOption{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.options[quoteID] {
		if o.ID == optionID {
			return cloneOption(o), nil
		}
	}
	return domain.QuoteHotelOption{}, fmt.Errorf("%w: %s on quote %s", domain.ErrOptionNotFound, optionID, quoteID)
}

func (r *Repo) SelectionSnapshot(ctx context.Context, quoteID string) (domain.SelectionSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.SelectionSnapshot{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quotes[quoteID]
	if !ok {
		return domain.SelectionSnapshot{}, fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, quoteID)
	}
	c := cloneQuote(q)
	snap := domain.SelectionSnapshot{OptionID: c.SelectedHotelOptionID, SelectedAt: c.ClientSelectionDate, Feedback: c.ClientFeedback}
	if snap.OptionID != nil {
		for _, o := range r.options[quoteID] {
			if o.ID == *snap.OptionID {
				snap.Flagged = o.IsSelected
				break
			}
		}
	}
	return snap, nil
}

func (r *Repo) CreateOption(ctx context.Context, o domain.QuoteHotelOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[o.QuoteID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, o.QuoteID)
	}
	for _, ex := range r.options[o.QuoteID] {
		if ex.ID == o.ID {
			return fmt.Errorf("%w: option %s already exists", domain.ErrValidation, o.ID)
		}
	}
	o.IsSelected = false
	list := append(r.options[o.QuoteID], cloneOption(o))
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	r.options[o.QuoteID] = list
	q.Revision++
	r.quotes[o.QuoteID] = q
	return nil
}

func (r *Repo) SetSelection(ctx context.Context, cmd domain.SelectionCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// checked under the lock: past this point the write always completes
	if err := ctx.Err(); err != nil {
		return err
	}
	q, ok := r.quotes[cmd.QuoteID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, cmd.QuoteID)
	}
	list := r.options[cmd.QuoteID]
	idx := -1
	for i := range list {
		if list[i].ID == cmd.OptionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s on quote %s", domain.ErrOptionNotFound, cmd.OptionID, cmd.QuoteID)
	}
	for i := range list {
		list[i].IsSelected = i == idx
	}
	id := cmd.OptionID
	at := cmd.At
	q.SelectedHotelOptionID = &id
	q.ClientSelectionDate = &at
	if cmd.Feedback != nil {
		fb := *cmd.Feedback
		q.ClientFeedback = &fb
	}
	q.Revision++
	r.quotes[cmd.QuoteID] = q
	return nil
}

func (r *Repo) DeleteOption(ctx context.Context, quoteID, optionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	q, ok := r.quotes[quoteID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, quoteID)
	}
	list := r.options[quoteID]
	idx := -1
	for i := range list {
		if list[i].ID == optionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s on quote %s", domain.ErrOptionNotFound, optionID, quoteID)
	}
	r.options[quoteID] = append(list[:idx:idx], list[idx+1:]...)
	if q.SelectedHotelOptionID != nil && *q.SelectedHotelOptionID == optionID {
		q.SelectedHotelOptionID = nil
		q.ClientSelectionDate = nil
	}
	q.Revision++
	r.quotes[quoteID] = q
	return nil
}

func cloneQuote(q domain.Quote) domain.Quote {
	out := q
	c := q.Components
	if c.Rooms != nil {
		out.Components.Rooms = append([]domain.RoomArrangement{}, c.Rooms...)
	}
	if c.Transport != nil {
		out.Components.Transport = append([]domain.TransportItem{}, c.Transport...)
	}
	if c.Transfers != nil {
		out.Components.Transfers = append([]domain.TransferItem{}, c.Transfers...)
	}
	if c.Activities != nil {
		out.Components.Activities = append([]domain.ActivityItem{}, c.Activities...)
	}
	if q.SelectedHotelOptionID != nil {
		s := *q.SelectedHotelOptionID
		out.SelectedHotelOptionID = &s
	}
	if q.ClientSelectionDate != nil {
		t := *q.ClientSelectionDate
		out.ClientSelectionDate = &t
	}
	if q.ClientFeedback != nil {
		f := *q.ClientFeedback
		out.ClientFeedback = &f
	}
	return out
}

func cloneOption(o domain.QuoteHotelOption) domain.QuoteHotelOption {
	out := o
	if o.RoomArrangements != nil {
		out.RoomArrangements = append([]domain.RoomArrangement{}, o.RoomArrangements...)
	}
	return out
}

// SeedDemo loads one quote with two options for the dev store.
func SeedDemo(r *Repo) {
	d := decimal.RequireFromString
	now := time.Now().UTC()
	r.PutQuote(domain.Quote{
		ID:           "demo",
		BaseCurrency: "KES",
		Markup:       domain.MarkupPolicy{Type: domain.MarkupPercentage, Value: d("10")},
		Components: domain.Components{
			Rooms:     []domain.RoomArrangement{{RoomType: "double", Nights: 3, Rooms: 2, RatePerNight: d("10000")}},
			Transport: []domain.TransportItem{{Mode: "road", Passengers: 3, UnitCost: d("5000")}},
		},
	})
	for i, name := range []string{"Lodge A", "Tented Camp B"} {
		_ = r.CreateOption(context.Background(), domain.QuoteHotelOption{
			ID:           fmt.Sprintf("demo-opt-%d", i+1),
			QuoteID:      "demo",
			HotelID:      fmt.Sprintf("hotel-%d", i+1),
			OptionName:   name,
			TotalPrice:   d("60000").Add(decimal.NewFromInt(int64(i) * 9000)),
			CurrencyCode: "KES",
			CreatedAt:    now.Add(time.Duration(i) * time.Second),
		})
	}
}
