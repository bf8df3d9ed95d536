// Package payload decodes stored cost-component JSON into the typed
// component structs. It is the only place that knows the legacy field
// spellings; everything past it sees canonical types.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"quotedesk/internal/domain"
)

/********** alias registries (single source of truth) **********/

// First entry is the canonical name written by Encode*; the rest are
// spellings found in older rows.
var roomAliases = map[string][]string{
	"room_type": {"room_type", "roomType", "type", "name"},
	"nights":    {"nights", "num_nights", "numberOfNights"},
	"rooms":     {"rooms", "room_count", "numberOfRooms", "quantity"},
	"rate":      {"rate_per_night", "ratePerNight", "baseRate", "base_rate", "rate"},
}

var transportAliases = map[string][]string{
	"mode":        {"mode", "transport_type", "type"},
	"description": {"description", "details", "route"},
	"qty":         {"passengers", "pax", "quantity"},
	"unit":        {"unit_cost", "unitCost", "cost_per_person", "price"},
	"total":       {"total_cost", "totalCost", "total"},
}

var transferAliases = map[string][]string{
	"description": {"description", "name", "route"},
	"qty":         {"vehicles", "quantity", "count"},
	"unit":        {"unit_cost", "unitCost", "cost", "price"},
	"total":       {"total_cost", "totalCost", "total"},
}

var activityAliases = map[string][]string{
	"name":  {"name", "activity_name", "title"},
	"qty":   {"participants", "pax", "quantity"},
	"unit":  {"unit_cost", "unitCost", "cost_per_person", "price"},
	"total": {"total_cost", "totalCost", "total"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return s
		}
	}
	return ""
}

// groupedRe matches strings with thousands separators, e.g. "10,000.50".
var groupedRe = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)

// parseMoneyString accepts plain decimals and comma-grouped thousands. Any
// other comma is ambiguous ("12,5" could mean 12.5 or 125) and is rejected.
func parseMoneyString(v string) (decimal.Decimal, error) {
	s := strings.TrimSpace(v)
	if strings.Contains(s, ",") {
		if !groupedRe.MatchString(s) {
			return decimal.Decimal{}, fmt.Errorf("ambiguous amount %q", v)
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	return decimal.NewFromString(s)
}

// decimalAlias: number from the alias set (json.Number/float64/string like "10,000").
func decimalAlias(m map[string]any, aliases map[string][]string, key string) (decimal.Decimal, bool, error) {
	for _, p := range aliases[key] {
		switch v := lookupAny(m, p).(type) {
		case nil:
			continue
		case json.Number:
			d, err := decimal.NewFromString(v.String())
			if err != nil {
				return decimal.Decimal{}, false, fmt.Errorf("%s: %w", p, err)
			}
			return d, true, nil
		case float64:
			return decimal.NewFromFloat(v), true, nil
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			d, err := parseMoneyString(v)
			if err != nil {
				return decimal.Decimal{}, false, fmt.Errorf("%s: %w", p, err)
			}
			return d, true, nil
		default:
			return decimal.Decimal{}, false, fmt.Errorf("%s: unexpected %T", p, v)
		}
	}
	return decimal.Decimal{}, false, nil
}

// intAlias: whole number from the alias set; fractional values are rejected.
func intAlias(m map[string]any, aliases map[string][]string, key string) (int, bool, error) {
	d, ok, err := decimalAlias(m, aliases, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if !d.IsInteger() {
		return 0, false, fmt.Errorf("%s: %s is not a whole number", key, d)
	}
	n, err := strconv.Atoi(d.String())
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

func malformed(kind string, i int, format string, args ...any) error {
	return fmt.Errorf("%w: %s[%d]: %s", domain.ErrMalformedComponent, kind, i, fmt.Sprintf(format, args...))
}

// decodeList parses a JSON array of objects. Empty input and null mean the
// category is absent and yield nil.
func decodeList(kind string, raw []byte) ([]map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedComponent, kind, err)
	}
	return items, nil
}

// unitAndQty resolves the priced quantity of a per-unit line item. A legacy
// record carrying only a total is migrated to quantity 1 at that price.
func unitAndQty(kind string, i int, m map[string]any, aliases map[string][]string) (decimal.Decimal, int, error) {
	unit, hasUnit, err := decimalAlias(m, aliases, "unit")
	if err != nil {
		return decimal.Decimal{}, 0, malformed(kind, i, "%v", err)
	}
	qty, hasQty, err := intAlias(m, aliases, "qty")
	if err != nil {
		return decimal.Decimal{}, 0, malformed(kind, i, "%v", err)
	}
	if hasUnit {
		if !hasQty {
			return decimal.Decimal{}, 0, malformed(kind, i, "missing quantity")
		}
		return unit, qty, nil
	}
	total, hasTotal, err := decimalAlias(m, aliases, "total")
	if err != nil {
		return decimal.Decimal{}, 0, malformed(kind, i, "%v", err)
	}
	if !hasTotal {
		return decimal.Decimal{}, 0, malformed(kind, i, "missing unit cost")
	}
	if hasQty && qty != 1 {
		return decimal.Decimal{}, 0, malformed(kind, i, "total without unit cost needs quantity 1, got %d", qty)
	}
	return total, 1, nil
}

/********** decoders **********/

func DecodeRooms(raw []byte) ([]domain.RoomArrangement, error) {
	items, err := decodeList("rooms", raw)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]domain.RoomArrangement, 0, len(items))
	for i, m := range items {
		rate, ok, err := decimalAlias(m, roomAliases, "rate")
		if err != nil {
			return nil, malformed("rooms", i, "%v", err)
		}
		if !ok {
			return nil, malformed("rooms", i, "missing rate per night")
		}
		nights, ok, err := intAlias(m, roomAliases, "nights")
		if err != nil {
			return nil, malformed("rooms", i, "%v", err)
		}
		if !ok {
			return nil, malformed("rooms", i, "missing nights")
		}
		rooms, ok, err := intAlias(m, roomAliases, "rooms")
		if err != nil {
			return nil, malformed("rooms", i, "%v", err)
		}
		if !ok {
			return nil, malformed("rooms", i, "missing room count")
		}
		out = append(out, domain.RoomArrangement{
			RoomType:     firstNonEmptyAlias(m, roomAliases, "room_type"),
			Nights:       nights,
			Rooms:        rooms,
			RatePerNight: rate,
		})
	}
	return out, nil
}

func DecodeTransport(raw []byte) ([]domain.TransportItem, error) {
	items, err := decodeList("transport", raw)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]domain.TransportItem, 0, len(items))
	for i, m := range items {
		unit, qty, err := unitAndQty("transport", i, m, transportAliases)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.TransportItem{
			Mode:        firstNonEmptyAlias(m, transportAliases, "mode"),
			Description: firstNonEmptyAlias(m, transportAliases, "description"),
			Passengers:  qty,
			UnitCost:    unit,
		})
	}
	return out, nil
}

func DecodeTransfers(raw []byte) ([]domain.TransferItem, error) {
	items, err := decodeList("transfers", raw)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]domain.TransferItem, 0, len(items))
	for i, m := range items {
		unit, qty, err := unitAndQty("transfers", i, m, transferAliases)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.TransferItem{
			Description: firstNonEmptyAlias(m, transferAliases, "description"),
			Vehicles:    qty,
			UnitCost:    unit,
		})
	}
	return out, nil
}

func DecodeActivities(raw []byte) ([]domain.ActivityItem, error) {
	items, err := decodeList("activities", raw)
	if err != nil || items == nil {
		return nil, err
	}
	out := make([]domain.ActivityItem, 0, len(items))
	for i, m := range items {
		unit, qty, err := unitAndQty("activities", i, m, activityAliases)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ActivityItem{
			Name:         firstNonEmptyAlias(m, activityAliases, "name"),
			Participants: qty,
			UnitCost:     unit,
		})
	}
	return out, nil
}

// RawComponents is the four JSON columns as stored.
type RawComponents struct {
	Rooms, Transport, Transfers, Activities []byte
}

func DecodeComponents(r RawComponents) (domain.Components, error) {
	var (
		c   domain.Components
		err error
	)
	if c.Rooms, err = DecodeRooms(r.Rooms); err != nil {
		return domain.Components{}, err
	}
	if c.Transport, err = DecodeTransport(r.Transport); err != nil {
		return domain.Components{}, err
	}
	if c.Transfers, err = DecodeTransfers(r.Transfers); err != nil {
		return domain.Components{}, err
	}
	if c.Activities, err = DecodeActivities(r.Activities); err != nil {
		return domain.Components{}, err
	}
	return c, nil
}

// Encode writes canonical JSON; nil slices stay NULL.
func Encode[T any](items []T) ([]byte, error) {
	if items == nil {
		return nil, nil
	}
	return json.Marshal(items)
}

func EncodeComponents(c domain.Components) (RawComponents, error) {
	var (
		r   RawComponents
		err error
	)
	if r.Rooms, err = Encode(c.Rooms); err != nil {
		return RawComponents{}, err
	}
	if r.Transport, err = Encode(c.Transport); err != nil {
		return RawComponents{}, err
	}
	if r.Transfers, err = Encode(c.Transfers); err != nil {
		return RawComponents{}, err
	}
	if r.Activities, err = Encode(c.Activities); err != nil {
		return RawComponents{}, err
	}
	return r, nil
}
