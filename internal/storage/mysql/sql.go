package mysql

// Quote writes from the builder never touch the selection columns.
const upsertQuoteSQL = `
INSERT INTO quotes
  (id, base_currency, markup_type, markup_value, room_arrangements, transport, transfers, activities)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  base_currency     = VALUES(base_currency),
  markup_type       = VALUES(markup_type),
  markup_value      = VALUES(markup_value),
  room_arrangements = VALUES(room_arrangements),
  transport         = VALUES(transport),
  transfers         = VALUES(transfers),
  activities        = VALUES(activities),
  revision          = revision + 1
`

const getQuoteSQL = `
SELECT
  id,
  base_currency,
  markup_type,
  markup_value,
  room_arrangements,
  transport,
  transfers,
  activities,
  selected_hotel_option_id,
  client_selection_date,
  client_feedback,
  revision
FROM quotes
WHERE id = ?
`

const quoteRevisionSQL = `SELECT revision FROM quotes WHERE id = ?`

const lockQuoteSQL = `SELECT id FROM quotes WHERE id = ? FOR UPDATE`

const optionColumns = `id, quote_id, hotel_id, option_name, total_price, currency_code, is_selected, room_arrangements, created_at`

const listOptionsSQL = `
SELECT ` + optionColumns + `
FROM quote_hotel_options
WHERE quote_id = ?
ORDER BY created_at ASC, id ASC
`

const getOptionSQL = `
SELECT ` + optionColumns + `
FROM quote_hotel_options
WHERE quote_id = ? AND id = ?
`

const insertOptionSQL = `
INSERT INTO quote_hotel_options
  (id, quote_id, hotel_id, option_name, total_price, currency_code, is_selected, room_arrangements, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, 0, ?, ?)
`

const optionBelongsSQL = `SELECT 1 FROM quote_hotel_options WHERE id = ? AND quote_id = ?`

// One statement clears every sibling and sets the target, so no reader can
// see zero or two selected rows for the quote.
const flipSelectionSQL = `
UPDATE quote_hotel_options
SET is_selected = (id = ?)
WHERE quote_id = ?
`

const writeSelectionPointerSQL = `
UPDATE quotes
SET selected_hotel_option_id = ?,
    client_selection_date    = ?,
    client_feedback          = COALESCE(?, client_feedback),
    revision                 = revision + 1
WHERE id = ?
`

const deleteOptionSQL = `DELETE FROM quote_hotel_options WHERE id = ? AND quote_id = ?`

const clearSelectionIfOptionDeletedSQL = `
UPDATE quotes
SET selected_hotel_option_id = NULL,
    client_selection_date    = NULL,
    revision                 = revision + 1
WHERE id = ? AND selected_hotel_option_id = ?
`

const bumpRevisionSQL = `UPDATE quotes SET revision = revision + 1 WHERE id = ?`

// One statement, so InnoDB reads pointer and flag from a single snapshot.
const selectionSnapshotSQL = `
SELECT
  q.selected_hotel_option_id,
  q.client_selection_date,
  q.client_feedback,
  COALESCE(o.is_selected, FALSE)
FROM quotes q
LEFT JOIN quote_hotel_options o
  ON o.id = q.selected_hotel_option_id AND o.quote_id = q.id
WHERE q.id = ?
`
