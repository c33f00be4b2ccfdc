package repo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"productservice/src/core/domain"
	"productservice/src/infra/db"
)

// executor is the slice of *db.Manager the repository depends on.
type executor interface {
	Execute(ctx context.Context, sql string, args ...any) (*db.Result, error)
	RunTransaction(ctx context.Context, stmts []db.Statement, opts ...db.TxOption) ([]*db.Result, error)
}

// healthChecker reports database reachability.
type healthChecker interface {
	Health(ctx context.Context) error
}

const productColumns = `id::text AS id, name, description, price::float8 AS price, category,
	stock, image_url, sku, created_by, created_at, updated_at`

// PostgresProductRepository implements ports.ProductRepository on top of the
// connection manager.
type PostgresProductRepository struct {
	db     executor
	health healthChecker
	log    *slog.Logger
}

// NewPostgresProductRepository constructs a repository backed by Postgres.
func NewPostgresProductRepository(mgr *db.Manager, log *slog.Logger) *PostgresProductRepository {
	return newProductRepository(mgr, db.NewMonitor(mgr), log)
}

func newProductRepository(exec executor, health healthChecker, log *slog.Logger) *PostgresProductRepository {
	return &PostgresProductRepository{db: exec, health: health, log: log}
}

func (r *PostgresProductRepository) Health(ctx context.Context) error {
	return r.health.Health(ctx)
}

// whereClause renders the filter conditions and their arguments, starting at
// placeholder $1.
func whereClause(f domain.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, string(f.Category))
		conds = append(conds, "category = $"+strconv.Itoa(len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := strconv.Itoa(len(args))
		conds = append(conds, "(name ILIKE $"+n+" OR description ILIKE $"+n+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PostgresProductRepository) FindAll(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	where, args := whereClause(f)
	q := "SELECT " + productColumns + " FROM products" + where + " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += " OFFSET $" + strconv.Itoa(len(args))
	}

	res, err := r.db.Execute(ctx, q, args...)
	if err != nil {
		return nil, r.mapErr("list products", err)
	}
	return scanProducts(res), nil
}

func (r *PostgresProductRepository) Count(ctx context.Context, f domain.ProductFilter) (int, error) {
	where, args := whereClause(f)
	res, err := r.db.Execute(ctx, "SELECT COUNT(*) AS total FROM products"+where, args...)
	if err != nil {
		return 0, r.mapErr("count products", err)
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	return int(res.Rows[0].Int64("total")), nil
}

func (r *PostgresProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	const q = "SELECT " + productColumns + " FROM products WHERE id = $1"
	return r.findOne(ctx, "get product", q, id)
}

func (r *PostgresProductRepository) FindBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	const q = "SELECT " + productColumns + " FROM products WHERE sku = $1"
	return r.findOne(ctx, "get product by sku", q, sku)
}

func (r *PostgresProductRepository) FindByCategory(ctx context.Context, category domain.Category, limit int) ([]domain.Product, error) {
	const q = "SELECT " + productColumns + ` FROM products
		WHERE category = $1
		ORDER BY created_at DESC
		LIMIT $2`
	res, err := r.db.Execute(ctx, q, string(category), limit)
	if err != nil {
		return nil, r.mapErr("list products by category", err)
	}
	return scanProducts(res), nil
}

func (r *PostgresProductRepository) FindLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	const q = "SELECT " + productColumns + ` FROM products
		WHERE stock > 0 AND stock <= $1
		ORDER BY stock ASC, name ASC`
	res, err := r.db.Execute(ctx, q, threshold)
	if err != nil {
		return nil, r.mapErr("list low stock products", err)
	}
	return scanProducts(res), nil
}

func (r *PostgresProductRepository) Create(ctx context.Context, d domain.ProductDraft) (*domain.Product, error) {
	const q = `
		INSERT INTO products (name, description, price, category, stock, image_url, sku, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + productColumns
	res, err := r.db.Execute(ctx, q,
		d.Name, d.Description, d.Price, string(d.Category), d.Stock,
		nullIfEmpty(d.ImageURL), nullIfEmpty(d.SKU), d.CreatedBy,
	)
	if err != nil {
		return nil, r.mapErr("create product", err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("create product: no row returned")
	}
	p := scanProduct(res.Rows[0])
	return &p, nil
}

// Update locks the row and applies patch in one transaction. Only columns
// from the closed field mapping are ever written.
func (r *PostgresProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	values := patch.Values()
	if len(values) == 0 {
		return nil, domain.NewValidationError("body", "at least one field must be provided")
	}

	sets := make([]string, 0, len(values)+1)
	args := []any{id}
	for _, f := range domain.UpdatableFields() {
		v, ok := values[f]
		if !ok {
			continue
		}
		col, _ := f.Column()
		if f == domain.FieldImageURL || f == domain.FieldSKU {
			v = nullIfEmpty(v.(string))
		}
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	stmts := []db.Statement{
		db.Stmt("SELECT id FROM products WHERE id = $1 FOR UPDATE", id),
		db.Stmt("UPDATE products SET "+strings.Join(sets, ", ")+" WHERE id = $1 RETURNING "+productColumns, args...),
	}
	results, err := r.db.RunTransaction(ctx, stmts)
	if err != nil {
		return nil, r.mapErr("update product", err)
	}
	if results[0].RowCount == 0 || len(results[1].Rows) == 0 {
		return nil, domain.NewNotFoundError("product")
	}
	p := scanProduct(results[1].Rows[0])
	return &p, nil
}

func (r *PostgresProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Execute(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return r.mapErr("delete product", err)
	}
	if res.RowCount == 0 {
		return domain.NewNotFoundError("product")
	}
	return nil
}

func (r *PostgresProductRepository) findOne(ctx context.Context, op, q string, arg any) (*domain.Product, error) {
	res, err := r.db.Execute(ctx, q, arg)
	if err != nil {
		return nil, r.mapErr(op, err)
	}
	if len(res.Rows) == 0 {
		return nil, domain.NewNotFoundError("product")
	}
	p := scanProduct(res.Rows[0])
	return &p, nil
}

// mapErr translates database failures into domain errors. Anything it does
// not recognize is returned wrapped for the handler's 500 path.
func (r *PostgresProductRepository) mapErr(op string, err error) error {
	switch {
	case db.IsUnavailable(err):
		r.log.Warn("database unavailable", "op", op, "error", err, "hint", db.Hint(err))
		return domain.NewUnavailableError("database unavailable")
	case db.KindOf(err) == db.KindTimeout:
		return domain.NewUnavailableError("database timed out")
	}
	switch db.SQLState(err) {
	case "23505":
		return domain.NewConflictError("product with this SKU already exists")
	case "22P02":
		return domain.NewValidationError("id", "must be a valid UUID")
	case "23514":
		return domain.NewValidationError("body", "violates a product constraint")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func scanProducts(res *db.Result) []domain.Product {
	out := make([]domain.Product, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, scanProduct(row))
	}
	return out
}

func scanProduct(row db.Row) domain.Product {
	return domain.Product{
		ID:          row.String("id"),
		Name:        row.String("name"),
		Description: row.String("description"),
		Price:       row.Float64("price"),
		Category:    domain.Category(row.String("category")),
		Stock:       int(row.Int64("stock")),
		ImageURL:    row.String("image_url"),
		SKU:         row.String("sku"),
		CreatedBy:   row.String("created_by"),
		CreatedAt:   row.Time("created_at"),
		UpdatedAt:   row.Time("updated_at"),
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
