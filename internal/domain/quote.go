package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryAccommodation Category = "accommodation"
	CategoryTransport     Category = "transport"
	CategoryTransfers     Category = "transfers"
	CategoryActivities    Category = "activities"
)

// Categories is the display order of cost categories.
var Categories = []Category{CategoryAccommodation, CategoryTransport, CategoryTransfers, CategoryActivities}

// CostComponent is implemented only by the four line-item kinds below.
type CostComponent interface {
	Category() Category
	TotalCost() decimal.Decimal
	costComponent()
}

type RoomArrangement struct {
	RoomType     string          `json:"room_type"`
	Nights       int             `json:"nights"`
	Rooms        int             `json:"rooms"`
	RatePerNight decimal.Decimal `json:"rate_per_night"`
}

func (RoomArrangement) Category() Category { return CategoryAccommodation }
func (r RoomArrangement) TotalCost() decimal.Decimal {
	return r.RatePerNight.Mul(decimal.NewFromInt(int64(r.Nights) * int64(r.Rooms)))
}
func (RoomArrangement) costComponent() {}

type TransportItem struct {
	Mode        string          `json:"mode"`
	Description string          `json:"description,omitempty"`
	Passengers  int             `json:"passengers"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

func (TransportItem) Category() Category { return CategoryTransport }
func (t TransportItem) TotalCost() decimal.Decimal {
	return t.UnitCost.Mul(decimal.NewFromInt(int64(t.Passengers)))
}
func (TransportItem) costComponent() {}

type TransferItem struct {
	Description string          `json:"description"`
	Vehicles    int             `json:"vehicles"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

func (TransferItem) Category() Category { return CategoryTransfers }
func (t TransferItem) TotalCost() decimal.Decimal {
	return t.UnitCost.Mul(decimal.NewFromInt(int64(t.Vehicles)))
}
func (TransferItem) costComponent() {}

type ActivityItem struct {
	Name         string          `json:"name"`
	Participants int             `json:"participants"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

func (ActivityItem) Category() Category { return CategoryActivities }
func (a ActivityItem) TotalCost() decimal.Decimal {
	return a.UnitCost.Mul(decimal.NewFromInt(int64(a.Participants)))
}
func (ActivityItem) costComponent() {}

// Components groups a quote's line items. A nil slice is an absent category.
type Components struct {
	Rooms      []RoomArrangement
	Transport  []TransportItem
	Transfers  []TransferItem
	Activities []ActivityItem
}

// All flattens the components in category order.
func (c Components) All() []CostComponent {
	out := make([]CostComponent, 0, len(c.Rooms)+len(c.Transport)+len(c.Transfers)+len(c.Activities))
	for _, r := range c.Rooms {
		out = append(out, r)
	}
	for _, t := range c.Transport {
		out = append(out, t)
	}
	for _, t := range c.Transfers {
		out = append(out, t)
	}
	for _, a := range c.Activities {
		out = append(out, a)
	}
	return out
}

type MarkupType string

const (
	MarkupPercentage MarkupType = "percentage"
	MarkupFixed      MarkupType = "fixed"
)

func ParseMarkupType(s string) (MarkupType, error) {
	switch MarkupType(strings.ToLower(strings.TrimSpace(s))) {
	case MarkupPercentage:
		return MarkupPercentage, nil
	case MarkupFixed:
		return MarkupFixed, nil
	}
	return "", fmt.Errorf("%w: unknown markup type %q", ErrInvalidMarkup, s)
}

type MarkupPolicy struct {
	Type  MarkupType
	Value decimal.Decimal
}

// Quote is the slice of a quote record the pricing and selection core reads.
// SelectedHotelOptionID and ClientSelectionDate are written only by the
// selection transition (or cleared when the selected option is deleted).
type Quote struct {
	ID                    string
	BaseCurrency          string
	Markup                MarkupPolicy
	Components            Components
	SelectedHotelOptionID *string
	ClientSelectionDate   *time.Time
	ClientFeedback        *string
	Revision              int64
}

// QuoteTotals is a computed snapshot; every amount is in DisplayCurrency.
type QuoteTotals struct {
	PerCategory     map[Category]decimal.Decimal `json:"per_category"`
	Subtotal        decimal.Decimal              `json:"subtotal"`
	MarkupAmount    decimal.Decimal              `json:"markup_amount"`
	GrandTotal      decimal.Decimal              `json:"grand_total"`
	BaseCurrency    string                       `json:"base_currency"`
	DisplayCurrency string                       `json:"display_currency"`
}
