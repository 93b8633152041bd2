package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/store"
)

func (d *DB) CreateProduct(ctx context.Context, create *store.Product) (*store.Product, error) {
	fields := []string{"uid", "name", "description", "brand", "category", "price", "image_url", "created_ts"}
	args := []any{create.UID, create.Name, create.Description, create.Brand, create.Category, priceArg(create.Price), create.ImageURL, create.CreatedTs}

	stmt := `INSERT INTO product (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create product")
	}

	return create, nil
}

func (d *DB) ListProducts(ctx context.Context, find *store.FindProduct) ([]*store.Product, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.Name != nil {
		where, args = append(where, "name = "+placeholder(len(args)+1)), append(args, *find.Name)
	}

	query := `SELECT id, uid, name, description, brand, category, price, image_url, created_ts FROM product WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list products")
	}
	defer rows.Close()

	list := make([]*store.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate products")
	}

	return list, nil
}

func (d *DB) UpsertProductEmbedding(ctx context.Context, embedding *store.ProductEmbedding) (*store.ProductEmbedding, error) {
	stmt := `
		INSERT INTO product_embedding (product_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (product_id, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	vector := pgvector.NewVector(embedding.Embedding)
	err := d.db.QueryRowContext(ctx, stmt,
		embedding.ProductID,
		vector,
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert product embedding")
	}

	return embedding, nil
}

func (d *DB) FindProductsWithoutEmbedding(ctx context.Context, find *store.FindProductsWithoutEmbedding) ([]*store.Product, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT p.id, p.uid, p.name, p.description, p.brand, p.category, p.price, p.image_url, p.created_ts
		FROM product p
		LEFT JOIN product_embedding e ON p.id = e.product_id AND e.model = ` + placeholder(1) + `
		WHERE e.id IS NULL
		ORDER BY p.id ASC
		LIMIT ` + placeholder(2)

	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find products without embedding")
	}
	defer rows.Close()

	list := []*store.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// VectorSearchProducts performs cosine similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity), so
// ordering by distance ASC yields the most similar first. Ties fall back to
// product id ASC, the catalog insertion order, to keep retrieval
// reproducible for identical inputs.
func (d *DB) VectorSearchProducts(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ProductWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			p.id, p.uid, p.name, p.description, p.brand, p.category, p.price, p.image_url, p.created_ts,
			1 - (e.embedding <=> ` + placeholder(1) + `) AS score
		FROM product p
		INNER JOIN product_embedding e ON p.id = e.product_id
		WHERE e.model = ` + placeholder(2) + `
		ORDER BY e.embedding <=> ` + placeholder(3) + `, p.id ASC
		LIMIT ` + placeholder(4)

	vector := pgvector.NewVector(opts.Vector)
	rows, err := d.db.QueryContext(ctx, query, vector, opts.Model, vector, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search products")
	}
	defer rows.Close()

	results := []*store.ProductWithScore{}
	for rows.Next() {
		var result store.ProductWithScore
		var product store.Product
		var price sql.NullInt64

		err := rows.Scan(
			&product.ID,
			&product.UID,
			&product.Name,
			&product.Description,
			&product.Brand,
			&product.Category,
			&price,
			&product.ImageURL,
			&product.CreatedTs,
			&result.Score,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		if price.Valid {
			product.Price = &price.Int64
		}

		result.Product = &product
		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(rows rowScanner) (*store.Product, error) {
	var product store.Product
	var price sql.NullInt64
	if err := rows.Scan(
		&product.ID,
		&product.UID,
		&product.Name,
		&product.Description,
		&product.Brand,
		&product.Category,
		&price,
		&product.ImageURL,
		&product.CreatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan product")
	}
	if price.Valid {
		product.Price = &price.Int64
	}
	return &product, nil
}

func priceArg(price *int64) any {
	if price == nil {
		return nil
	}
	return *price
}
