package store

// Product is a catalog entity. Products are written by the catalog
// ingestion pipeline and are read-only to the conversation core.
type Product struct {
	ID          int32
	UID         string
	Name        string // unique within the active catalog
	Description string
	Brand       string
	Category    string
	Price       *int64 // minor currency units; nil when unknown
	ImageURL    string
	CreatedTs   int64
}

type FindProduct struct {
	ID   *int32
	UID  *string
	Name *string
}

// ProductEmbedding is the vector for one product under one embedding model.
// A product has exactly one row per model; re-embedding replaces the whole
// vector, never part of it.
type ProductEmbedding struct {
	ID        int32
	ProductID int32
	Model     string
	Embedding []float32
	CreatedTs int64
	UpdatedTs int64
}

type FindProductsWithoutEmbedding struct {
	Model string
	Limit int
}

// VectorSearchOptions drives a nearest-neighbor query over the catalog.
type VectorSearchOptions struct {
	Vector []float32
	Model  string
	// Limit is the oversampled candidate pool size, not the final top-k.
	Limit int
}

// ProductWithScore is a product with its cosine similarity to the query,
// in [-1, 1], higher is better.
type ProductWithScore struct {
	Product *Product
	Score   float64
}
