package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quotedesk/internal/domain"
	"quotedesk/internal/payload"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// persist tags a driver error as a persistence failure, keeping the cause.
func persist(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// withTx runs fn in a transaction. Any error, including a cancelled ctx,
// rolls back so nothing fn wrote becomes visible.
func (r *Repo) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persist(op+": begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return persist(op+": commit", err)
	}
	return nil
}

// UpsertQuote is the quote builder's write path; it bumps the revision and
// leaves selection columns alone.
func (r *Repo) UpsertQuote(ctx context.Context, q domain.Quote) error {
	raw, err := payload.EncodeComponents(q.Components)
	if err != nil {
		return fmt.Errorf("encode components: %w", err)
	}
	_, err = r.db.ExecContext(ctx, upsertQuoteSQL,
		q.ID,
		q.BaseCurrency,
		string(q.Markup.Type),
		q.Markup.Value,
		valJSON(raw.Rooms),
		valJSON(raw.Transport),
		valJSON(raw.Transfers),
		valJSON(raw.Activities),
	)
	if err != nil {
		return persist("upsert quote", err)
	}
	return nil
}

func (r *Repo) GetQuote(ctx context.Context, id string) (domain.Quote, error) {
	var (
		q          domain.Quote
		markupType string
		raw        payload.RawComponents
		selected   sql.NullString
		selectedAt sql.NullTime
		feedback   sql.NullString
	)
	err := r.db.QueryRowContext(ctx, getQuoteSQL, id).Scan(
		&q.ID,
		&q.BaseCurrency,
		&markupType,
		&q.Markup.Value,
		&raw.Rooms, &raw.Transport, &raw.Transfers, &raw.Activities,
		&selected,
		&selectedAt,
		&feedback,
		&q.Revision,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, id)
		}
		return domain.Quote{}, persist("get quote", err)
	}
	if q.Markup.Type, err = domain.ParseMarkupType(markupType); err != nil {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", id, err)
	}
	if q.Components, err = payload.DecodeComponents(raw); err != nil {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", id, err)
	}
	if selected.Valid {
		s := selected.String
		q.SelectedHotelOptionID = &s
	}
	if selectedAt.Valid {
		t := selectedAt.Time.UTC()
		q.ClientSelectionDate = &t
	}
	if feedback.Valid {
		f := feedback.String
		q.ClientFeedback = &f
	}
	return q, nil
}

func (r *Repo) QuoteRevision(ctx context.Context, id string) (int64, error) {
	var rev int64
	if err := r.db.QueryRowContext(ctx, quoteRevisionSQL, id).Scan(&rev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, id)
		}
		return 0, persist("quote revision", err)
	}
	return rev, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanOption(s rowScanner) (domain.QuoteHotelOption, error) {
	var (
		o     domain.QuoteHotelOption
		sel   bool
		rooms []byte
	)
	if err := s.Scan(
		&o.ID, &o.QuoteID, &o.HotelID, &o.OptionName,
		&o.TotalPrice, &o.CurrencyCode, &sel, &rooms, &o.CreatedAt,
	); err != nil {
		return domain.QuoteHotelOption{}, err
	}
	o.IsSelected = sel
	o.CreatedAt = o.CreatedAt.UTC()
	ra, err := payload.DecodeRooms(rooms)
	if err != nil {
		return domain.QuoteHotelOption{}, fmt.Errorf("option %s: %w", o.ID, err)
	}
	o.RoomArrangements = ra
	return o, nil
}

func (r *Repo) ListOptions(ctx context.Context, quoteID string) ([]domain.QuoteHotelOption, error) {
	rows, err := r.db.QueryContext(ctx, listOptionsSQL, quoteID)
	if err != nil {
		return nil, persist("list options", err)
	}
	defer rows.Close()

	out := []domain.QuoteHotelOption{}
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedComponent) {
				return nil, err
			}
			return nil, persist("scan option", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, persist("list options", err)
	}
	if len(out) == 0 {
		// distinguish "no options yet" from "no such quote"
		if _, err := r.QuoteRevision(ctx, quoteID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) GetOption(ctx context.Context, quoteID, optionID string) (domain.QuoteHotelOption, error) {
	o, err := scanOption(r.db.QueryRowContext(ctx, getOptionSQL, quoteID, optionID))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.QuoteHotelOption{}, fmt.Errorf("%w: %s on quote %s", domain.ErrOptionNotFound, optionID, quoteID)
		case errors.Is(err, domain.ErrMalformedComponent):
			return domain.QuoteHotelOption{}, err
		}
		return domain.QuoteHotelOption{}, persist("get option", err)
	}
	return o, nil
}

func (r *Repo) CreateOption(ctx context.Context, o domain.QuoteHotelOption) error {
	rooms, err := payload.Encode(o.RoomArrangements)
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}
	return r.withTx(ctx, "create option", func(tx *sql.Tx) error {
		if err := lockQuote(ctx, tx, o.QuoteID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertOptionSQL,
			o.ID, o.QuoteID, o.HotelID, o.OptionName,
			o.TotalPrice, o.CurrencyCode, valJSON(rooms), o.CreatedAt.UTC(),
		); err != nil {
			return persist("insert option", err)
		}
		if _, err := tx.ExecContext(ctx, bumpRevisionSQL, o.QuoteID); err != nil {
			return persist("bump revision", err)
		}
		return nil
	})
}

func lockQuote(ctx context.Context, tx *sql.Tx, quoteID string) error {
	var id string
	if err := tx.QueryRowContext(ctx, lockQuoteSQL, quoteID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, quoteID)
		}
		return persist("lock quote", err)
	}
	return nil
}

// SetSelection serializes on the quote row lock, so concurrent selectors for
// one quote commit one after another and the last commit wins.
func (r *Repo) SetSelection(ctx context.Context, cmd domain.SelectionCommand) error {
	return r.withTx(ctx, "set selection", func(tx *sql.Tx) error {
		if err := lockQuote(ctx, tx, cmd.QuoteID); err != nil {
			return err
		}
		var one int
		if err := tx.QueryRowContext(ctx, optionBelongsSQL, cmd.OptionID, cmd.QuoteID).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s on quote %s", domain.ErrOptionNotFound, cmd.OptionID, cmd.QuoteID)
			}
			return persist("check option", err)
		}
		if _, err := tx.ExecContext(ctx, flipSelectionSQL, cmd.OptionID, cmd.QuoteID); err != nil {
			return persist("flip selection", err)
		}
		if _, err := tx.ExecContext(ctx, writeSelectionPointerSQL,
			cmd.OptionID, cmd.At.UTC(), valStr(cmd.Feedback), cmd.QuoteID,
		); err != nil {
			return persist("write selection pointer", err)
		}
		return nil
	})
}

func (r *Repo) SelectionSnapshot(ctx context.Context, quoteID string) (domain.SelectionSnapshot, error) {
	var (
		selected   sql.NullString
		selectedAt sql.NullTime
		feedback   sql.NullString
		snap       domain.SelectionSnapshot
	)
	err := r.db.QueryRowContext(ctx, selectionSnapshotSQL, quoteID).Scan(&selected, &selectedAt, &feedback, &snap.Flagged)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SelectionSnapshot{}, fmt.Errorf("%w: %s", domain.ErrQuoteNotFound, quoteID)
		}
		return domain.SelectionSnapshot{}, persist("selection snapshot", err)
	}
	if selected.Valid {
		s := selected.String
		snap.OptionID = &s
	}
	if selectedAt.Valid {
		t := selectedAt.Time.UTC()
		snap.SelectedAt = &t
	}
	if feedback.Valid {
		f := feedback.String
		snap.Feedback = &f
	}
	return snap, nil
}

func (r *Repo) DeleteOption(ctx context.Context, quoteID, optionID string) error {
	return r.withTx(ctx, "delete option", func(tx *sql.Tx) error {
		if err := lockQuote(ctx, tx, quoteID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, deleteOptionSQL, optionID, quoteID)
		if err != nil {
			return persist("delete option", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return persist("delete option", err)
		} else if n == 0 {
			return fmt.Errorf("%w: %s on quote %s", domain.ErrOptionNotFound, optionID, quoteID)
		}
		res, err = tx.ExecContext(ctx, clearSelectionIfOptionDeletedSQL, quoteID, optionID)
		if err != nil {
			return persist("clear selection", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := tx.ExecContext(ctx, bumpRevisionSQL, quoteID); err != nil {
				return persist("bump revision", err)
			}
		}
		return nil
	})
}
