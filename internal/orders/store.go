package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/db"
	"github.com/sells-group/taxpoint/internal/model"
)

// OrderStore persists and queries order rows.
type OrderStore struct {
	pool db.Pool
}

// NewOrderStore wraps a database pool.
func NewOrderStore(pool db.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

var orderCopyColumns = []string{
	"user_id", "latitude", "longitude", "subtotal", "timestamp",
	"reporting_code", "jurisdictions", "composite_tax_rate",
	"tax_amount", "total_amount",
	"state_rate", "county_rate", "city_rate", "special_rates",
}

// BulkInsert writes computed orders in one COPY. Rows are attributed to the
// importing user.
func (s *OrderStore) BulkInsert(ctx context.Context, userID int64, computed []*Computed) (int64, error) {
	if len(computed) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(computed))
	for _, c := range computed {
		payload, err := json.Marshal(c.Jurisdictions)
		if err != nil {
			return 0, eris.Wrap(err, "orders: marshal jurisdictions")
		}
		rows = append(rows, []any{
			userID, c.Latitude, c.Longitude, c.Subtotal, c.Timestamp,
			c.ReportingCode, payload, c.CompositeTaxRate,
			c.TaxAmount, c.TotalAmount,
			c.StateRate, c.CountyRate, c.CityRate, c.SpecialRates,
		})
	}

	n, err := db.CopyFrom(ctx, s.pool, "orders", orderCopyColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "orders: bulk insert")
	}
	return n, nil
}

const insertOrderSQL = `
INSERT INTO orders (
    user_id, latitude, longitude, subtotal, timestamp,
    reporting_code, jurisdictions, composite_tax_rate,
    tax_amount, total_amount,
    state_rate, county_rate, city_rate, special_rates
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id, created_at`

// Insert writes a single computed order and returns the stored row.
func (s *OrderStore) Insert(ctx context.Context, userID *int64, c *Computed) (*model.Order, error) {
	payload, err := json.Marshal(c.Jurisdictions)
	if err != nil {
		return nil, eris.Wrap(err, "orders: marshal jurisdictions")
	}

	order := &model.Order{
		UserID:           userID,
		Latitude:         c.Latitude,
		Longitude:        c.Longitude,
		Subtotal:         c.Subtotal,
		Timestamp:        c.Timestamp,
		ReportingCode:    c.ReportingCode,
		Jurisdictions:    c.Jurisdictions,
		CompositeTaxRate: c.CompositeTaxRate,
		TaxAmount:        c.TaxAmount,
		TotalAmount:      c.TotalAmount,
		StateRate:        c.StateRate,
		CountyRate:       c.CountyRate,
		CityRate:         c.CityRate,
		SpecialRates:     c.SpecialRates,
	}
	err = s.pool.QueryRow(ctx, insertOrderSQL,
		userID, c.Latitude, c.Longitude, c.Subtotal, c.Timestamp,
		c.ReportingCode, payload, c.CompositeTaxRate,
		c.TaxAmount, c.TotalAmount,
		c.StateRate, c.CountyRate, c.CityRate, c.SpecialRates,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "orders: insert")
	}
	return order, nil
}

// OrderFilter narrows List results. Nil fields are unconstrained.
type OrderFilter struct {
	ReportingCode *string
	From          *time.Time
	To            *time.Time
	MinSubtotal   *decimal.Decimal
	MaxSubtotal   *decimal.Decimal
	Limit         int
	Offset        int
}

const listOrdersSQL = `
SELECT o.id, o.user_id, o.latitude, o.longitude, o.subtotal, o.timestamp,
       o.reporting_code, o.jurisdictions, o.composite_tax_rate,
       o.tax_amount, o.total_amount,
       o.state_rate, o.county_rate, o.city_rate, o.special_rates,
       o.created_at, u.login
FROM orders o
LEFT JOIN users u ON u.id = o.user_id
WHERE ($1::varchar IS NULL OR o.reporting_code = $1)
  AND ($2::timestamptz IS NULL OR o.timestamp >= $2)
  AND ($3::timestamptz IS NULL OR o.timestamp <= $3)
  AND ($4::numeric IS NULL OR o.subtotal >= $4)
  AND ($5::numeric IS NULL OR o.subtotal <= $5)
ORDER BY o.id DESC
LIMIT $6 OFFSET $7`

// List returns orders newest first, decorated with the author login.
func (s *OrderStore) List(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, listOrdersSQL,
		filter.ReportingCode, filter.From, filter.To,
		filter.MinSubtotal, filter.MaxSubtotal,
		limit, filter.Offset)
	if err != nil {
		return nil, eris.Wrap(err, "orders: list")
	}
	defer rows.Close()

	var result []model.Order
	for rows.Next() {
		var o model.Order
		var payload []byte
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.Latitude, &o.Longitude, &o.Subtotal, &o.Timestamp,
			&o.ReportingCode, &payload, &o.CompositeTaxRate,
			&o.TaxAmount, &o.TotalAmount,
			&o.StateRate, &o.CountyRate, &o.CityRate, &o.SpecialRates,
			&o.CreatedAt, &o.AuthorLogin,
		); err != nil {
			return nil, eris.Wrap(err, "orders: scan")
		}
		if err := json.Unmarshal(payload, &o.Jurisdictions); err != nil {
			return nil, eris.Wrap(err, "orders: decode jurisdictions")
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "orders: list rows")
	}
	return result, nil
}

const ordersInRangeSQL = `
SELECT timestamp, total_amount, tax_amount
FROM orders
WHERE timestamp >= $1 AND timestamp < $2
ORDER BY timestamp`

// StatPoint is the minimal projection the stats aggregation needs.
type StatPoint struct {
	Timestamp   time.Time
	TotalAmount decimal.Decimal
	TaxAmount   decimal.Decimal
}

// InRange streams the stat projection of orders in [from, to).
func (s *OrderStore) InRange(ctx context.Context, from, to time.Time) ([]StatPoint, error) {
	rows, err := s.pool.Query(ctx, ordersInRangeSQL, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "orders: range query")
	}
	defer rows.Close()

	var points []StatPoint
	for rows.Next() {
		var p StatPoint
		if err := rows.Scan(&p.Timestamp, &p.TotalAmount, &p.TaxAmount); err != nil {
			return nil, eris.Wrap(err, "orders: scan stat point")
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "orders: range rows")
	}
	return points, nil
}

// TaskStore persists import task records.
type TaskStore struct {
	pool db.Pool
}

// NewTaskStore wraps a database pool.
func NewTaskStore(pool db.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

const createTaskSQL = `
INSERT INTO file_tasks (user_id, file_path, total_rows, status)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`

// Create inserts a new in-progress task.
func (s *TaskStore) Create(ctx context.Context, userID int64, filePath string, totalRows int) (*model.FileTask, error) {
	task := &model.FileTask{
		UserID:    userID,
		FilePath:  filePath,
		TotalRows: totalRows,
		Status:    model.TaskStatusInProgress,
	}
	err := s.pool.QueryRow(ctx, createTaskSQL, userID, filePath, totalRows, model.TaskStatusInProgress).
		Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "orders: create task")
	}
	return task, nil
}

const taskColumnsSQL = `id, user_id, file_path, total_rows, successful_rows, failed_rows, status, created_at, updated_at`

// Get loads a task by id.
func (s *TaskStore) Get(ctx context.Context, id int64) (*model.FileTask, error) {
	var task model.FileTask
	err := s.pool.QueryRow(ctx,
		`SELECT `+taskColumnsSQL+` FROM file_tasks WHERE id = $1`, id).
		Scan(&task.ID, &task.UserID, &task.FilePath, &task.TotalRows,
			&task.SuccessfulRows, &task.FailedRows, &task.Status,
			&task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "task %d not found", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "orders: get task")
	}
	return &task, nil
}

// ListNewestFirst returns all tasks, newest first.
func (s *TaskStore) ListNewestFirst(ctx context.Context) ([]model.FileTask, error) {
	return s.list(ctx, `SELECT `+taskColumnsSQL+` FROM file_tasks ORDER BY id DESC`)
}

// ListInProgress returns tasks awaiting work, oldest first so resumption
// follows submission order.
func (s *TaskStore) ListInProgress(ctx context.Context) ([]model.FileTask, error) {
	return s.list(ctx,
		`SELECT `+taskColumnsSQL+` FROM file_tasks WHERE status = $1 ORDER BY id`,
		model.TaskStatusInProgress)
}

func (s *TaskStore) list(ctx context.Context, sql string, args ...any) ([]model.FileTask, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "orders: list tasks")
	}
	defer rows.Close()

	var tasks []model.FileTask
	for rows.Next() {
		var task model.FileTask
		if err := rows.Scan(&task.ID, &task.UserID, &task.FilePath, &task.TotalRows,
			&task.SuccessfulRows, &task.FailedRows, &task.Status,
			&task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "orders: scan task")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "orders: task rows")
	}
	return tasks, nil
}

const updateTaskProgressSQL = `
UPDATE file_tasks
SET successful_rows = $2, failed_rows = $3, status = $4, updated_at = now()
WHERE id = $1`

// UpdateProgress writes the running counters and status. Only those columns
// are touched; static task fields are never rewritten.
func (s *TaskStore) UpdateProgress(ctx context.Context, id int64, successful, failed int, status string) error {
	tag, err := s.pool.Exec(ctx, updateTaskProgressSQL, id, successful, failed, status)
	if err != nil {
		return eris.Wrap(err, "orders: update task progress")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "task %d not found", id)
	}
	return nil
}
