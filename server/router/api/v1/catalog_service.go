package v1

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

type ProductResponse struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Category    string `json:"category,omitempty"`
	Price       *int64 `json:"price,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	CreatedTs   int64  `json:"createdTs"`
}

// GetProduct looks up a product by its exact catalog name. The path value
// is percent-decoded so names with spaces work as expected.
func (s *APIV1Service) GetProduct(c echo.Context) error {
	if _, err := ownerKey(c); err != nil {
		return err
	}

	name := c.Param("name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	product, err := s.Store.GetProductByName(c.Request().Context(), name)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "failed to load product")
	}
	if product == nil {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	return c.JSON(http.StatusOK, &ProductResponse{
		UID:         product.UID,
		Name:        product.Name,
		Description: product.Description,
		Brand:       product.Brand,
		Category:    product.Category,
		Price:       product.Price,
		ImageURL:    product.ImageURL,
		CreatedTs:   product.CreatedTs,
	})
}
