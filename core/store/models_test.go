package store

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProduct_OptionList(t *testing.T) {
	assert.Equal(t, []string{"P", "M", "G"}, Product{Options: " P, M ,,G, "}.OptionList())
	assert.Empty(t, Product{}.OptionList())
}

func TestCartItem_Subtotal(t *testing.T) {
	item := CartItem{UnitPrice: dec("12.50"), Quantity: 3}
	assert.Equal(t, "37.5", item.Subtotal().String())
}

func TestProductForm_apply(t *testing.T) {
	active := true

	t.Run("plain", func(t *testing.T) {
		p := Product{ImageURL: "/media/products/old.png"}
		ProductForm{Name: "Lenço", Price: dec("25.005"), Stock: 3, Active: &active}.apply(&p)
		assert.Equal(t, "25.01", p.Price.StringFixed(2))
		assert.Equal(t, 3, p.Stock)
		assert.True(t, p.Active)
		assert.Equal(t, "/media/products/old.png", p.ImageURL)
	})

	t.Run("variants", func(t *testing.T) {
		var p Product
		ProductForm{
			Name:  "Camiseta",
			Price: dec("10"),
			Stock: 99,
			Variants: []VariantForm{
				{Name: "P", Price: dec("40"), Stock: 2},
				{Name: "M", Price: dec("45"), Stock: 4},
			},
		}.apply(&p)
		assert.Equal(t, 6, p.Stock)
		assert.True(t, dec("40").Equal(p.Price))
	})
}

func TestProductForm_Validate(t *testing.T) {
	validate := validator.New()

	tests := []struct {
		name    string
		form    ProductForm
		wantErr string
	}{
		{name: "ok", form: ProductForm{Name: " Lenço ", Price: dec("25")}},
		{name: "negative price", form: ProductForm{Name: "Lenço", Price: dec("-1")}, wantErr: "o preço não pode ser negativo"},
		{
			name:    "negative variant",
			form:    ProductForm{Name: "Camiseta", Variants: []VariantForm{{Name: "P", Price: dec("-2")}}},
			wantErr: "o preço não pode ser negativo",
		},
		{name: "no name", form: ProductForm{Price: dec("1")}, wantErr: "Key: 'ProductForm.Name' Error:Field validation for 'Name' failed on the 'required' tag"},
		{name: "negative stock", form: ProductForm{Name: "Lenço", Stock: -1}, wantErr: "Key: 'ProductForm.Stock' Error:Field validation for 'Stock' failed on the 'min' tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Validate(validate)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestAddItem_Validate(t *testing.T) {
	ai := AddItem{Option: " M "}
	assert.NoError(t, ai.Validate(validator.New()))
	assert.Equal(t, 1, ai.Quantity)
	assert.Equal(t, "M", ai.Option)
}
