package domain

import "context"

type QuoteRepository interface {
	GetQuote(ctx context.Context, id string) (Quote, error)
	// QuoteRevision is a cheap read of the quote's write counter.
	QuoteRevision(ctx context.Context, id string) (int64, error)
}

type OptionRepository interface {
	// ListOptions returns options in creation order (created_at, id).
	ListOptions(ctx context.Context, quoteID string) ([]QuoteHotelOption, error)
	GetOption(ctx context.Context, quoteID, optionID string) (QuoteHotelOption, error)
	CreateOption(ctx context.Context, o QuoteHotelOption) error

	// SetSelection flips the selected flag to cmd.OptionID and writes the
	// quote's selection pointer as one atomic unit. Returns ErrOptionNotFound
	// if the option does not belong to the quote.
	SetSelection(ctx context.Context, cmd SelectionCommand) error

	// SelectionSnapshot reads the pointer and the pointed-at option's flag
	// in one consistent view, never straddling a SetSelection commit.
	SelectionSnapshot(ctx context.Context, quoteID string) (SelectionSnapshot, error)

	// DeleteOption removes the option and, in the same unit, clears the
	// quote's selection pointer if it referenced the option.
	DeleteOption(ctx context.Context, quoteID, optionID string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type SelectionPublisher interface {
	PublishOptionSelected(ctx context.Context, ev OptionSelectedEvent) error
}
