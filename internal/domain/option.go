package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteHotelOption is one of the competing packages on a quote. At most one
// option per quote has IsSelected set.
type QuoteHotelOption struct {
	ID               string            `json:"id"`
	QuoteID          string            `json:"quote_id"`
	HotelID          string            `json:"hotel_id"`
	OptionName       string            `json:"option_name"`
	TotalPrice       decimal.Decimal   `json:"total_price"`
	CurrencyCode     string            `json:"currency_code"`
	IsSelected       bool              `json:"is_selected"`
	RoomArrangements []RoomArrangement `json:"room_arrangements"`
	CreatedAt        time.Time         `json:"created_at"`
}

type SelectionState string

const (
	Unselected SelectionState = "unselected"
	Selected   SelectionState = "selected"
)

type Selection struct {
	QuoteID    string         `json:"quote_id"`
	State      SelectionState `json:"state"`
	OptionID   *string        `json:"option_id,omitempty"`
	SelectedAt *time.Time     `json:"selected_at,omitempty"`
	Feedback   *string        `json:"feedback,omitempty"`
}

// SelectionSnapshot is the quote's selection pointer and the flag of the
// option it points at, read together in one consistent view.
type SelectionSnapshot struct {
	OptionID   *string
	SelectedAt *time.Time
	Feedback   *string
	// Flagged reports that the pointed-at option exists and is selected.
	Flagged bool
}

// SelectionCommand is what the repository commits atomically.
// Feedback nil leaves any previously recorded feedback untouched.
type SelectionCommand struct {
	QuoteID  string
	OptionID string
	At       time.Time
	Feedback *string
}

// OptionSelectedEvent is published after a selection commits, for the
// booking-conversion collaborator.
type OptionSelectedEvent struct {
	QuoteID      string    `json:"quote_id"`
	OptionID     string    `json:"option_id"`
	HotelID      string    `json:"hotel_id"`
	OptionName   string    `json:"option_name"`
	TotalPrice   string    `json:"total_price"`
	CurrencyCode string    `json:"currency_code"`
	Surface      string    `json:"surface"` // author|client
	Feedback     *string   `json:"feedback,omitempty"`
	SelectedAt   time.Time `json:"selected_at"`
}
