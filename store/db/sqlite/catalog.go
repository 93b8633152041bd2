package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/rasphia/rasphia/store"
)

// ErrVectorSearchNotSupported is returned when catalog vector search is
// requested on SQLite. Use PostgreSQL with pgvector for retrieval.
var ErrVectorSearchNotSupported = errors.New("catalog vector search is not supported on SQLite; use PostgreSQL")

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
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.Name != nil {
		where, args = append(where, "name = ?"), append(args, *find.Name)
	}

	query := `SELECT id, uid, name, description, brand, category, price, image_url, created_ts FROM product WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list products")
	}
	defer rows.Close()

	list := make([]*store.Product, 0)
	for rows.Next() {
		var product store.Product
		var price sql.NullInt64
		if err := rows.Scan(&product.ID, &product.UID, &product.Name, &product.Description, &product.Brand, &product.Category, &price, &product.ImageURL, &product.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan product")
		}
		if price.Valid {
			product.Price = &price.Int64
		}
		list = append(list, &product)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate products")
	}

	return list, nil
}

// UpsertProductEmbedding stores the vector as JSON. SQLite cannot search
// these vectors; they are kept so a later switch to Postgres keeps the data.
func (d *DB) UpsertProductEmbedding(ctx context.Context, embedding *store.ProductEmbedding) (*store.ProductEmbedding, error) {
	vector, err := json.Marshal(embedding.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode embedding")
	}

	stmt := `
		INSERT INTO product_embedding (product_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (product_id, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		embedding.ProductID,
		string(vector),
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs); err != nil {
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
		LEFT JOIN product_embedding e ON p.id = e.product_id AND e.model = ?
		WHERE e.id IS NULL
		ORDER BY p.id ASC
		LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find products without embedding")
	}
	defer rows.Close()

	list := []*store.Product{}
	for rows.Next() {
		var product store.Product
		var price sql.NullInt64
		if err := rows.Scan(&product.ID, &product.UID, &product.Name, &product.Description, &product.Brand, &product.Category, &price, &product.ImageURL, &product.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan product")
		}
		if price.Valid {
			product.Price = &price.Int64
		}
		list = append(list, &product)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) VectorSearchProducts(ctx context.Context, _ *store.VectorSearchOptions) ([]*store.ProductWithScore, error) {
	return nil, ErrVectorSearchNotSupported
}

func priceArg(price *int64) any {
	if price == nil {
		return nil
	}
	return *price
}
