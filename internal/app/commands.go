package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"quotedesk/internal/adapters/observability"
	"quotedesk/internal/domain"
	"quotedesk/internal/pricing"
)

const (
	SurfaceAuthor = "author"
	SurfaceClient = "client"

	MaxFeedbackRunes = 2000
)

// SelectionManager owns the per-quote selection state machine. Storage is
// the only source of truth; nothing here caches selection state.
type SelectionManager struct {
	options domain.OptionRepository
	pub     domain.SelectionPublisher // optional
	now     func() time.Time

	mu     sync.RWMutex // guards closed against sends on events
	closed bool
	events chan selectionJob
	done   chan struct{}
}

type selectionJob struct {
	cmd     domain.SelectionCommand
	surface string
}

const (
	eventQueueSize = 256
	publishTimeout = 5 * time.Second
)

// NewSelectionManager starts a single relay goroutine when pub is set.
// Events leave the request path through a bounded queue; Close drains it.
func NewSelectionManager(o domain.OptionRepository, pub domain.SelectionPublisher) *SelectionManager {
	m := &SelectionManager{options: o, pub: pub, now: time.Now, done: make(chan struct{})}
	if pub == nil {
		close(m.done)
		return m
	}
	m.events = make(chan selectionJob, eventQueueSize)
	go m.relay()
	return m
}

// WithClock swaps the time source; used by tests.
func (m *SelectionManager) WithClock(now func() time.Time) *SelectionManager {
	m.now = now
	return m
}

// Close stops accepting events and waits for queued ones to be published.
func (m *SelectionManager) Close() {
	m.mu.Lock()
	if !m.closed && m.events != nil {
		close(m.events)
	}
	m.closed = true
	m.mu.Unlock()
	<-m.done
}

func (m *SelectionManager) ListOptions(ctx context.Context, quoteID string) ([]domain.QuoteHotelOption, error) {
	return m.options.ListOptions(ctx, quoteID)
}

// Current reports the committed selection from one consistent read. A
// pointer to an option that is gone, or whose flag is not set, reads as
// Unselected.
func (m *SelectionManager) Current(ctx context.Context, quoteID string) (domain.Selection, error) {
	snap, err := m.options.SelectionSnapshot(ctx, quoteID)
	if err != nil {
		return domain.Selection{}, err
	}
	out := domain.Selection{QuoteID: quoteID, State: domain.Unselected}
	if snap.OptionID == nil {
		return out, nil
	}
	if !snap.Flagged {
		log.Warn().
			Str("quote_id", quoteID).
			Str("option_id", *snap.OptionID).
			Msg("dangling selection pointer; reporting unselected")
		return out, nil
	}
	out.State = domain.Selected
	out.OptionID = snap.OptionID
	out.SelectedAt = snap.SelectedAt
	out.Feedback = snap.Feedback
	return out, nil
}

// SelectOption is the authoring surface of the transition.
func (m *SelectionManager) SelectOption(ctx context.Context, quoteID, optionID string) (domain.Selection, error) {
	return m.transition(ctx, quoteID, optionID, nil, SurfaceAuthor)
}

// SubmitSelection is the client surface: same transition, plus optional
// free-text feedback (blank means none).
func (m *SelectionManager) SubmitSelection(ctx context.Context, quoteID, optionID, feedback string) (domain.Selection, error) {
	var fb *string
	if t := strings.TrimSpace(feedback); t != "" {
		if utf8.RuneCountInString(t) > MaxFeedbackRunes {
			return domain.Selection{}, fmt.Errorf("%w: feedback longer than %d characters", domain.ErrValidation, MaxFeedbackRunes)
		}
		fb = &t
	}
	return m.transition(ctx, quoteID, optionID, fb, SurfaceClient)
}

func (m *SelectionManager) transition(ctx context.Context, quoteID, optionID string, fb *string, surface string) (domain.Selection, error) {
	if quoteID == "" || optionID == "" {
		return domain.Selection{}, fmt.Errorf("%w: quote and option ids are required", domain.ErrValidation)
	}
	cmd := domain.SelectionCommand{QuoteID: quoteID, OptionID: optionID, At: m.now().UTC(), Feedback: fb}
	err := m.options.SetSelection(ctx, cmd)
	observability.ObserveSelection(surface, err)
	if err != nil {
		ev := log.Warn()
		if errors.Is(err, domain.ErrPersistence) {
			ev = log.Error()
		}
		ev.Err(err).Str("quote_id", quoteID).Str("option_id", optionID).Str("surface", surface).Msg("selection rejected")
		return domain.Selection{}, err
	}
	log.Info().Str("quote_id", quoteID).Str("option_id", optionID).Str("surface", surface).Msg("option selected")

	m.enqueue(selectionJob{cmd: cmd, surface: surface})

	id := optionID
	at := cmd.At
	return domain.Selection{QuoteID: quoteID, State: domain.Selected, OptionID: &id, SelectedAt: &at, Feedback: fb}, nil
}

// enqueue never blocks the caller; a full queue drops the event.
func (m *SelectionManager) enqueue(job selectionJob) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.events == nil {
		return
	}
	if m.closed {
		log.Warn().Str("quote_id", job.cmd.QuoteID).Msg("selection event dropped: relay closed")
		return
	}
	select {
	case m.events <- job:
	default:
		log.Warn().Str("quote_id", job.cmd.QuoteID).Msg("selection event dropped: queue full")
	}
}

func (m *SelectionManager) relay() {
	defer close(m.done)
	for job := range m.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		m.publish(ctx, job.cmd, job.surface)
		cancel()
	}
}

// publish is best-effort: the selection is already committed.
func (m *SelectionManager) publish(ctx context.Context, cmd domain.SelectionCommand, surface string) {
	o, err := m.options.GetOption(ctx, cmd.QuoteID, cmd.OptionID)
	if err != nil {
		log.Warn().Err(err).Str("quote_id", cmd.QuoteID).Msg("selection event skipped: option reload failed")
		return
	}
	ev := domain.OptionSelectedEvent{
		QuoteID:      cmd.QuoteID,
		OptionID:     o.ID,
		HotelID:      o.HotelID,
		OptionName:   o.OptionName,
		TotalPrice:   o.TotalPrice.String(),
		CurrencyCode: o.CurrencyCode,
		Surface:      surface,
		Feedback:     cmd.Feedback,
		SelectedAt:   cmd.At,
	}
	if err := m.pub.PublishOptionSelected(ctx, ev); err != nil {
		log.Warn().Err(err).Str("quote_id", cmd.QuoteID).Msg("selection event publish failed")
	}
}

// NewOption is the authoring input for a comparison option. A nil
// TotalPrice is derived from the room arrangements.
type NewOption struct {
	QuoteID          string
	HotelID          string
	OptionName       string
	CurrencyCode     string
	TotalPrice       *decimal.Decimal
	RoomArrangements []domain.RoomArrangement
}

type OptionService struct {
	options domain.OptionRepository
	rates   *pricing.Table
	now     func() time.Time
	newID   func() string
}

func NewOptionService(o domain.OptionRepository, rates *pricing.Table) *OptionService {
	return &OptionService{options: o, rates: rates, now: time.Now, newID: uuid.NewString}
}

func (s *OptionService) Create(ctx context.Context, in NewOption) (domain.QuoteHotelOption, error) {
	if strings.TrimSpace(in.HotelID) == "" || strings.TrimSpace(in.OptionName) == "" {
		return domain.QuoteHotelOption{}, fmt.Errorf("%w: hotel id and option name are required", domain.ErrValidation)
	}
	if _, err := s.rates.Lookup(in.CurrencyCode); err != nil {
		return domain.QuoteHotelOption{}, err
	}
	price := pricing.Aggregate(domain.Components{Rooms: in.RoomArrangements}).Subtotal
	if in.TotalPrice != nil {
		price = *in.TotalPrice
	}
	o := domain.QuoteHotelOption{
		ID:               s.newID(),
		QuoteID:          in.QuoteID,
		HotelID:          strings.TrimSpace(in.HotelID),
		OptionName:       strings.TrimSpace(in.OptionName),
		TotalPrice:       price,
		CurrencyCode:     in.CurrencyCode,
		RoomArrangements: in.RoomArrangements,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.options.CreateOption(ctx, o); err != nil {
		return domain.QuoteHotelOption{}, err
	}
	log.Info().Str("quote_id", o.QuoteID).Str("option_id", o.ID).Msg("option created")
	return o, nil
}

// Delete removes an option; the repository clears the quote's selection
// pointer in the same transaction when it referenced this option.
func (s *OptionService) Delete(ctx context.Context, quoteID, optionID string) error {
	if err := s.options.DeleteOption(ctx, quoteID, optionID); err != nil {
		return err
	}
	log.Info().Str("quote_id", quoteID).Str("option_id", optionID).Msg("option deleted")
	return nil
}
