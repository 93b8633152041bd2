package v1

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetProductRequiresOwner(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodGet, "/api/v1/products/Amber%20Candle", "", false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetProduct(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodGet, "/api/v1/products/Amber%20Candle", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "p1", resp.UID)
	require.Equal(t, "Amber Candle", resp.Name)
	require.Equal(t, "Hearthline", resp.Brand)
	require.Equal(t, "Slow-burn soy candle", resp.Description)

	// Lookups are case-sensitive, matching catalog names exactly.
	rec = f.do(t, http.MethodGet, "/api/v1/products/amber%20candle", "", true)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProductNotFound(t *testing.T) {
	f := newServiceFixture(t, validGeneration)

	rec := f.do(t, http.MethodGet, "/api/v1/products/Velvet%20Scarf", "", true)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
