package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"quotedesk/internal/app"
	"quotedesk/internal/domain"
	"quotedesk/internal/payload"
	"quotedesk/internal/pricing"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type Handlers struct {
	Totals          *app.TotalsService
	Selection       *app.SelectionManager
	Options         *app.OptionService
	Rates           *pricing.Table
	DefaultCurrency string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// MountHandlers registers the authoring API and the read-only client view.
// submit wraps the client selection endpoint, usually with RateLimit.
func (s *Server) MountHandlers(h *Handlers, submit func(http.Handler) http.Handler) {
	if submit == nil {
		submit = func(next http.Handler) http.Handler { return next }
	}
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/currencies", h.listCurrencies)

	s.mux.Route("/v1/quotes/{id}", func(r chi.Router) {
		r.Get("/totals", h.getTotals)
		r.Get("/options", h.listOptions)
		r.Post("/options", h.createOption)
		r.Delete("/options/{optionID}", h.deleteOption)
		r.Post("/options/{optionID}/select", h.selectOption)
		r.Get("/selection", h.getSelection)
	})

	// client view: listing plus a single submission endpoint, nothing else
	s.mux.Route("/v1/client/quotes/{id}", func(r chi.Router) {
		r.Get("/options", h.listOptions)
		r.With(submit).Post("/selection", h.submitSelection)
	})
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMalformedComponent):
		return http.StatusUnprocessableEntity, "Malformed Cost Component"
	case errors.Is(err, domain.ErrUnsupportedCurrency):
		return http.StatusBadRequest, "Unsupported Currency"
	case errors.Is(err, domain.ErrInvalidMarkup):
		return http.StatusBadRequest, "Invalid Markup"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "Invalid Request"
	case errors.Is(err, domain.ErrQuoteNotFound):
		return http.StatusNotFound, "Quote Not Found"
	case errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusNotFound, "Option Not Found"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable, "Storage Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := statusFor(err)
	detail := err.Error()
	if status >= 500 {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		// storage internals stay out of responses
		detail = ""
	}
	writeProblem(w, status, title, detail)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeCached writes v as JSON with a weak ETag, answering 304 on a match.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func writeValue(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	writeJSON(w, status, body)
}

func (h *Handlers) displayCurrency(r *http.Request) string {
	if c := strings.TrimSpace(r.URL.Query().Get("currency")); c != "" {
		return strings.ToUpper(c)
	}
	return h.DefaultCurrency
}

// decodeBody reads a JSON body into dst and runs struct validation.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: body: %v", domain.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

/********** currencies **********/

type currencyDTO struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	RateToUSD string `json:"rate_to_usd"`
	Decimals  int32  `json:"decimals"`
}

func (h *Handlers) listCurrencies(w http.ResponseWriter, r *http.Request) {
	cs := h.Rates.ListSupported()
	out := make([]currencyDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, currencyDTO{Code: c.Code, Name: c.Name, Symbol: c.Symbol, RateToUSD: c.RateToUSD.String(), Decimals: c.Decimals})
	}
	writeCached(w, r, out)
}

/********** totals **********/

type formattedTotals struct {
	PerCategory  map[domain.Category]string `json:"per_category"`
	Subtotal     string                     `json:"subtotal"`
	MarkupAmount string                     `json:"markup_amount"`
	GrandTotal   string                     `json:"grand_total"`
}

type totalsResponse struct {
	QuoteID string `json:"quote_id"`
	domain.QuoteTotals
	Formatted formattedTotals `json:"formatted"`
}

func (h *Handlers) getTotals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	display := h.displayCurrency(r)
	qt, err := h.Totals.Totals(r.Context(), id, display)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := formattedTotals{
		PerCategory:  make(map[domain.Category]string, len(qt.PerCategory)),
		Subtotal:     h.Rates.Format(qt.Subtotal, display),
		MarkupAmount: h.Rates.Format(qt.MarkupAmount, display),
		GrandTotal:   h.Rates.Format(qt.GrandTotal, display),
	}
	for c, v := range qt.PerCategory {
		f.PerCategory[c] = h.Rates.Format(v, display)
	}
	writeCached(w, r, totalsResponse{QuoteID: id, QuoteTotals: qt, Formatted: f})
}

/********** options **********/

type optionsResponse struct {
	QuoteID string             `json:"quote_id"`
	Items   []app.PricedOption `json:"items"`
}

func (h *Handlers) listOptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	items, err := h.Options.ListPriced(r.Context(), id, h.displayCurrency(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, optionsResponse{QuoteID: id, Items: items})
}

type createOptionRequest struct {
	HotelID          string           `json:"hotel_id" validate:"required,max=64"`
	OptionName       string           `json:"option_name" validate:"required,max=200"`
	CurrencyCode     string           `json:"currency_code" validate:"required,len=3"`
	TotalPrice       *decimal.Decimal `json:"total_price"`
	RoomArrangements json.RawMessage  `json:"room_arrangements"`
}

func (h *Handlers) createOption(w http.ResponseWriter, r *http.Request) {
	var req createOptionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// arrangements go through the same alias-tolerant decoder as stored rows
	rooms, err := payload.DecodeRooms(req.RoomArrangements)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Options.Create(r.Context(), app.NewOption{
		QuoteID:          chi.URLParam(r, "id"),
		HotelID:          req.HotelID,
		OptionName:       req.OptionName,
		CurrencyCode:     strings.ToUpper(req.CurrencyCode),
		TotalPrice:       req.TotalPrice,
		RoomArrangements: rooms,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/quotes/%s/options/%s", o.QuoteID, o.ID))
	writeValue(w, http.StatusCreated, o)
}

func (h *Handlers) deleteOption(w http.ResponseWriter, r *http.Request) {
	if err := h.Options.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "optionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/********** selection **********/

func (h *Handlers) selectOption(w http.ResponseWriter, r *http.Request) {
	sel, err := h.Selection.SelectOption(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "optionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, sel)
}

func (h *Handlers) getSelection(w http.ResponseWriter, r *http.Request) {
	sel, err := h.Selection.Current(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// selection changes must be visible immediately; no ETag here
	w.Header().Set("Cache-Control", "no-store")
	writeValue(w, http.StatusOK, sel)
}

type submitSelectionRequest struct {
	OptionID string `json:"option_id" validate:"required,max=64"`
	Feedback string `json:"feedback"`
}

func (h *Handlers) submitSelection(w http.ResponseWriter, r *http.Request) {
	var req submitSelectionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sel, err := h.Selection.SubmitSelection(r.Context(), chi.URLParam(r, "id"), req.OptionID, req.Feedback)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, sel)
}
