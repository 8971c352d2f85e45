package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"

	"greennets/backend/internal/domain"
	"greennets/backend/internal/inventory"
	"greennets/backend/internal/store"
	"greennets/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db      *sql.DB
	typeMap *pgtype.Map
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, typeMap: pgtype.NewMap()}, nil
}

// EnsureSchema creates missing tables. It is safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `
	id, name, description, category, quality, size, shade_percentage, unit_type,
	price_cents, bundle_price_cents, price_per_meter_cents, stock,
	bundle_length, bundle_stock, open_pieces, active,
	image_url, image_object, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p            domain.Product
		shade        sql.NullInt64
		bundleLength int64
		bundleStock  int
		openPieces   []int64
		imageURL     sql.NullString
		imageObject  sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.Quality, &p.Size, &shade, &p.UnitType,
		&p.PriceCents, &p.BundlePriceCents, &p.PricePerMeterCents, &p.Stock,
		&bundleLength, &bundleStock, s.typeMap.SQLScanner(&openPieces), &p.Active,
		&imageURL, &imageObject, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	if shade.Valid {
		v := int(shade.Int64)
		p.ShadePercentage = &v
	}
	p.ImageURL = imageURL.String
	p.ImageObject = imageObject.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	if p.UnitType == domain.UnitMeter {
		pieces := make([]inventory.Quantity, 0, len(openPieces))
		for _, v := range openPieces {
			pieces = append(pieces, inventory.Quantity(v))
		}
		meter, err := inventory.NewMeterStock(inventory.Quantity(bundleLength), bundleStock, pieces)
		if err != nil {
			return domain.Product{}, fmt.Errorf("product %s: %w", p.ID, err)
		}
		p.Meter = &meter
	}
	return p, nil
}

// meterColumns flattens the meter state of p for storage.
func meterColumns(p domain.Product) (bundleLength int64, bundleStock int, openPieces []int64) {
	openPieces = []int64{}
	if p.Meter == nil {
		return 0, 0, openPieces
	}
	for _, v := range p.Meter.OpenPieces() {
		openPieces = append(openPieces, int64(v))
	}
	return int64(p.Meter.BundleLength()), p.Meter.BundleStock(), openPieces
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 2)
	if filter.ActiveOnly {
		where = append(where, "active = true")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY category, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := s.scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.Version = 1
	product.CreatedAt = now
	product.UpdatedAt = now
	product.RefreshActive()

	bundleLength, bundleStock, openPieces := meterColumns(product)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, description, category, quality, size, shade_percentage, unit_type,
			price_cents, bundle_price_cents, price_per_meter_cents, stock,
			bundle_length, bundle_stock, open_pieces, active,
			image_url, image_object, version, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$20)
	`, product.ID, product.Name, product.Description, product.Category, product.Quality, product.Size,
		nullInt(product.ShadePercentage), product.UnitType,
		product.PriceCents, product.BundlePriceCents, product.PricePerMeterCents, product.Stock,
		bundleLength, bundleStock, openPieces, product.Active,
		nullIfEmpty(product.ImageURL), nullIfEmpty(product.ImageObject), product.Version, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := product.Clone()
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, quality = $5, size = $6, shade_percentage = $7,
			price_cents = $8, bundle_price_cents = $9, price_per_meter_cents = $10, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Description, product.Category, product.Quality, product.Size,
		nullInt(product.ShadePercentage), product.PriceCents, product.BundlePriceCents, product.PricePerMeterCents)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) SetProductImage(ctx context.Context, id string, url string, object string) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET image_url = $2, image_object = $3, updated_at = now() WHERE id = $1
	`, id, nullIfEmpty(url), nullIfEmpty(object))
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) ApplyStock(ctx context.Context, writes []store.StockWrite) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return writeStock(ctx, tx, writes)
	})
}

func (s *Store) CreateOrder(ctx context.Context, writes []store.StockWrite, order domain.Order) (*domain.Order, error) {
	if order.ID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := writeStock(ctx, tx, writes); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, username, items, total_cents, shipping_address, payment_method, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, order.ID, order.Username, items, order.TotalCents, address, order.PaymentMethod, order.Status, order.CreatedAt, order.UpdatedAt)
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	created := order.Clone()
	return &created, nil
}

func (s *Store) CreateOfflineSale(ctx context.Context, writes []store.StockWrite, sale domain.OfflineSale) (*domain.OfflineSale, error) {
	if sale.ID == "" || sale.BillNumber == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := writeStock(ctx, tx, writes); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO offline_sales (
				id, bill_number, customer_name, customer_phone, items,
				subtotal_cents, discount_cents, total_cents, payment_mode, notes, created_by, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, sale.ID, sale.BillNumber, sale.CustomerName, nullIfEmpty(sale.CustomerPhone), items,
			sale.SubtotalCents, sale.DiscountCents, sale.TotalCents, sale.PaymentMode, nullIfEmpty(sale.Notes), sale.CreatedBy, sale.CreatedAt)
		if isUniqueViolation(err) {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "bill_number") {
				return fmt.Errorf("%w: %s", store.ErrDuplicateBillNumber, sale.BillNumber)
			}
			return store.ErrInvalidTransaction
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	created := sale.Clone()
	return &created, nil
}

// inTx runs fn in a serializable transaction. Serialization failures are
// reported as store.ErrConflict so callers can retry.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return err
	}
	return nil
}

func writeStock(ctx context.Context, tx *sql.Tx, writes []store.StockWrite) error {
	for _, w := range writes {
		p := w.Product
		p.RefreshActive()
		if p.Stock < 0 {
			return store.ErrInsufficientStock
		}
		_, bundleStock, openPieces := meterColumns(p)
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = $3, bundle_stock = $4, open_pieces = $5, active = $6,
				version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $2
		`, p.ID, w.ExpectedVersion, p.Stock, bundleStock, openPieces, p.Active)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("product %s: %w", p.ID, store.ErrNotFound)
			}
			return fmt.Errorf("product %s moved past version %d: %w", p.ID, w.ExpectedVersion, store.ErrConflict)
		}
	}
	return nil
}

const orderColumns = `id, username, items, total_cents, shipping_address, payment_method, status, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o       domain.Order
		items   []byte
		address []byte
	)
	if err := row.Scan(&o.ID, &o.Username, &items, &o.TotalCents, &address, &o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("order %s items: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return domain.Order{}, fmt.Errorf("order %s address: %w", o.ID, err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.SaleFilter) ([]domain.Order, error) {
	where, args := rangeClause(filter)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Username != "" {
		args = append(args, filter.Username)
		where = append(where, fmt.Sprintf("username = $%d", len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders` + whereSQL(where) + ` ORDER BY created_at DESC` + limitSQL(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, fromStatus string, toStatus string) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns, id, fromStatus, toStatus))
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, getErr := s.GetOrder(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("order %s is no longer %s: %w", id, fromStatus, store.ErrConflict)
}

const offlineSaleColumns = `id, bill_number, customer_name, customer_phone, items,
	subtotal_cents, discount_cents, total_cents, payment_mode, notes, created_by, created_at`

func scanOfflineSale(row rowScanner) (domain.OfflineSale, error) {
	var (
		sale  domain.OfflineSale
		phone sql.NullString
		notes sql.NullString
		items []byte
	)
	err := row.Scan(&sale.ID, &sale.BillNumber, &sale.CustomerName, &phone, &items,
		&sale.SubtotalCents, &sale.DiscountCents, &sale.TotalCents, &sale.PaymentMode, &notes, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		return domain.OfflineSale{}, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return domain.OfflineSale{}, fmt.Errorf("offline sale %s items: %w", sale.ID, err)
	}
	sale.CustomerPhone = phone.String
	sale.Notes = notes.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) GetOfflineSale(ctx context.Context, id string) (*domain.OfflineSale, error) {
	sale, err := scanOfflineSale(s.db.QueryRowContext(ctx, `
		SELECT `+offlineSaleColumns+` FROM offline_sales WHERE id = $1 OR bill_number = $1 LIMIT 1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListOfflineSales(ctx context.Context, filter domain.SaleFilter) ([]domain.OfflineSale, error) {
	where, args := rangeClause(filter)
	query := `SELECT ` + offlineSaleColumns + ` FROM offline_sales` + whereSQL(where) + ` ORDER BY created_at DESC` + limitSQL(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.OfflineSale, 0, 64)
	for rows.Next() {
		sale, err := scanOfflineSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateUser
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func rangeClause(filter domain.SaleFilter) ([]string, []any) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	return where, args
}

func whereSQL(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func limitSQL(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}
