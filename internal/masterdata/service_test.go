package masterdata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestValidateParty(t *testing.T) {
	require.NoError(t, validateParty("SUP-01", "Acme Industrial"))
	require.ErrorIs(t, validateParty("", "Acme Industrial"), ErrValidation)
	require.ErrorIs(t, validateParty("SUP-01", "   "), ErrValidation)
}

func TestValidateProduct(t *testing.T) {
	require.NoError(t, validateProduct(Product{SKU: "WID-100", Name: "Widget", UnitPrice: decimal.NewFromInt(2500)}))
	require.ErrorIs(t, validateProduct(Product{Name: "Widget"}), ErrValidation)
	require.ErrorIs(t, validateProduct(Product{SKU: "WID-100", Name: "Widget", UnitPrice: decimal.NewFromInt(-1)}), ErrValidation)
}

func TestListFiltersNormalize(t *testing.T) {
	f := ListFilters{}.normalize()
	require.Equal(t, 1, f.Page)
	require.Equal(t, 50, f.PerPage)

	f = ListFilters{Page: 3, PerPage: 1000}.normalize()
	require.Equal(t, 3, f.Page)
	require.Equal(t, 50, f.PerPage)
}
