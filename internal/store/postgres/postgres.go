// Package postgres implements store.Store over pgx/v5, using pipelined
// batches for product inserts (need RETURNING id) and pgx.CopyFrom for the
// bulk ProductOffer insert (no ids needed back), grounded on the teacher's
// internal/repository/postgres DB.WithTx + ON CONFLICT upsert idiom,
// generalized from *sql.DB/lib/pq transactions to pgxpool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thestrul/sacks/internal/domain"
	"github.com/thestrul/sacks/internal/store"
)

// Postgres is a store.Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open creates a pool against dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }

// WithTx runs fn inside a single pgx transaction; fn's error rolls back,
// surfaced wrapped in a *domain.TransactionError.
func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgxTx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return &domain.TransactionError{Cause: fmt.Errorf("begin: %w", err)}
	}

	wrapped := &txImpl{tx: pgxTx}
	if err := fn(ctx, wrapped); err != nil {
		if rbErr := pgxTx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return &domain.TransactionError{Cause: fmt.Errorf("%v (rollback also failed: %w)", err, rbErr)}
		}
		if _, ok := err.(*domain.DuplicateOffer); ok {
			return err
		}
		return &domain.TransactionError{Cause: err}
	}

	if err := pgxTx.Commit(ctx); err != nil {
		return &domain.TransactionError{Cause: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

type txImpl struct {
	tx pgx.Tx
}

func (t *txImpl) GetOrCreateSupplier(ctx context.Context, name string) (*domain.Supplier, error) {
	const q = `
		INSERT INTO suppliers (name, description)
		VALUES ($1, '')
		ON CONFLICT (lower(name)) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, description`
	var s domain.Supplier
	if err := t.tx.QueryRow(ctx, q, name).Scan(&s.ID, &s.Name, &s.Description); err != nil {
		return nil, fmt.Errorf("get or create supplier %q: %w", name, err)
	}
	return &s, nil
}

func (t *txImpl) OfferExists(ctx context.Context, supplierID int64, offerName string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM offers WHERE supplier_id = $1 AND offer_name = $2)`
	var exists bool
	if err := t.tx.QueryRow(ctx, q, supplierID, offerName).Scan(&exists); err != nil {
		return false, fmt.Errorf("check offer exists: %w", err)
	}
	return exists, nil
}

func (t *txImpl) CreateOffer(ctx context.Context, supplierID int64, offerName, currency, description string) (*domain.Offer, error) {
	const q = `
		INSERT INTO offers (supplier_id, offer_name, currency, description, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, supplier_id, offer_name, currency, description, created_at`
	var o domain.Offer
	err := t.tx.QueryRow(ctx, q, supplierID, offerName, currency, description).
		Scan(&o.ID, &o.SupplierID, &o.OfferName, &o.Currency, &o.Description, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create offer %q: %w", offerName, err)
	}
	return &o, nil
}

func (t *txImpl) GetProductsByEANs(ctx context.Context, eans []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(eans))
	if len(eans) == 0 {
		return out, nil
	}

	const q = `SELECT id, ean, name, dynamic_properties FROM products WHERE ean = ANY($1)`
	rows, err := t.tx.Query(ctx, q, eans)
	if err != nil {
		return nil, fmt.Errorf("fetch products by ean: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &domain.Product{DynamicProperties: domain.NewPropertyMap()}
		var rawProps []byte
		if err := rows.Scan(&p.ID, &p.EAN, &p.Name, &rawProps); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if len(rawProps) > 0 {
			_ = p.DynamicProperties.UnmarshalJSON(rawProps)
		}
		if p.EAN != nil {
			out[*p.EAN] = p
		}
	}
	return out, rows.Err()
}

// BulkInsertProducts pipelines one INSERT ... RETURNING id per product via
// pgx.Batch, assigning the generated id back onto each *domain.Product.
// A pipelined batch (rather than pgx.CopyFrom) is required here because
// CopyFrom cannot return generated identifiers, and downstream
// ProductOffer rows need them.
func (t *txImpl) BulkInsertProducts(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	const q = `INSERT INTO products (ean, name, dynamic_properties) VALUES ($1, $2, $3) RETURNING id`

	batch := &pgx.Batch{}
	for _, p := range products {
		props, err := p.DynamicProperties.MarshalJSON()
		if err != nil {
			return fmt.Errorf("marshal dynamic properties for %q: %w", p.Name, err)
		}
		batch.Queue(q, p.EAN, p.Name, props)
	}

	res := t.tx.SendBatch(ctx, batch)
	defer res.Close()

	for _, p := range products {
		if err := res.QueryRow().Scan(&p.ID); err != nil {
			return fmt.Errorf("insert product %q: %w", p.Name, err)
		}
	}
	return nil
}

// BulkInsertProductOffers streams rows into product_offers via
// pgx.CopyFrom, the fastest bulk-insert path pgx offers for a table where
// no generated value needs to come back to the caller synchronously.
func (t *txImpl) BulkInsertProductOffers(ctx context.Context, rows []*domain.ProductOffer) error {
	if len(rows) == 0 {
		return nil
	}

	src := pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
		r := rows[i]
		props, err := r.OfferProperties.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("marshal offer properties: %w", err)
		}
		return []interface{}{r.ProductID, r.OfferID, r.Price, r.Quantity, r.Currency, r.Description, props}, nil
	})

	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"product_offers"},
		[]string{"product_id", "offer_id", "price", "quantity", "currency", "description", "offer_properties"},
		src,
	)
	if err != nil {
		return fmt.Errorf("bulk insert product offers: %w", err)
	}
	return nil
}
