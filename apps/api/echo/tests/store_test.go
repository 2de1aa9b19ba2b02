package tests

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/pinhaljunior/aventureiros/apps/api/echo"
	"github.com/pinhaljunior/aventureiros/core/payment"
	"github.com/pinhaljunior/aventureiros/core/store"
	"github.com/pinhaljunior/aventureiros/core/user"
	"github.com/pinhaljunior/aventureiros/services/mercadopago"
)

type storeEnv struct {
	*env
	admin   string
	buyer   user.User
	product store.Product
}

func setupStore(t *testing.T) *storeEnv {
	e := setup(t)
	treasurer := e.createUser("Yara", "+5511966660001", user.RoleTesoureiro)
	se := &storeEnv{
		env:   e,
		admin: e.token(treasurer),
		buyer: e.createUser("Zeca", "+5511966660002", user.RoleResponsavel),
	}

	rec := e.do(http.MethodPost, "/v1/store/admin/categories", se.admin, store.CategoryForm{Name: "Uniformes"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cat store.Category
	decode(t, rec, &cat)
	assert.True(t, cat.Active)

	rec = e.do(http.MethodPost, "/v1/store/admin/products", se.admin, store.ProductForm{
		CategoryID: &cat.ID,
		Name:       "Lenço",
		Price:      decimal.NewFromInt(25),
		Stock:      3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &se.product)
	return se
}

// order puts `qty` units in the buyer's cart and checks it out.
func (se *storeEnv) order(qty int) store.Order {
	t := se.t
	token := se.token(se.buyer)
	rec := se.do(http.MethodPost, fmt.Sprintf("/v1/store/products/%d/cart", se.product.ID), token, store.AddItem{Quantity: qty})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = se.do(http.MethodPost, "/v1/store/cart/checkout", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o store.Order
	decode(t, rec, &o)
	return o
}

func Test_storeApi_admin(t *testing.T) {
	se := setupStore(t)
	guardian := se.token(se.buyer)

	runCodeTests(t, se.env, []httpTest{
		{name: "guardian on admin products", path: "/v1/store/admin/products", token: guardian, wantCode: http.StatusForbidden},
		{name: "guardian on admin orders", path: "/v1/store/admin/orders", token: guardian, wantCode: http.StatusForbidden},
		{name: "anonymous catalog", path: "/v1/store/catalog", wantCode: http.StatusUnauthorized},
		{
			name: "unknown category", method: http.MethodPost, path: "/v1/store/admin/products", token: se.admin,
			body: store.ProductForm{CategoryID: new(int), Name: "Boné"}, wantCode: http.StatusBadRequest,
		},
		{
			name: "missing name", method: http.MethodPost, path: "/v1/store/admin/products", token: se.admin,
			body: store.ProductForm{}, wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown product", method: http.MethodPut, path: "/v1/store/admin/products/9999", token: se.admin,
			body: store.ProductForm{Name: "Boné"}, wantCode: http.StatusNotFound,
		},
	})

	t.Run("variants", func(t *testing.T) {
		rec := se.do(http.MethodPost, "/v1/store/admin/products", se.admin, store.ProductForm{
			Name: "Camiseta",
			Variants: []store.VariantForm{
				{Name: "P", Price: decimal.NewFromInt(40), Stock: 2},
				{Name: "M", Price: decimal.NewFromInt(45), Stock: 4},
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var p store.Product
		decode(t, rec, &p)
		assert.Equal(t, 6, p.Stock)
		assert.True(t, decimal.NewFromInt(40).Equal(p.Price))
		require.Len(t, p.Variants, 2)

		rec = se.do(http.MethodPost, fmt.Sprintf("/v1/store/products/%d/cart", p.ID), se.token(se.buyer), store.AddItem{
			VariantID: p.Variants[1].ID, Quantity: 1,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var cart store.Cart
		decode(t, rec, &cart)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, "M", cart.Items[0].Option)
		assert.True(t, decimal.NewFromInt(45).Equal(cart.Total))

		rec = se.do(http.MethodDelete, fmt.Sprintf("/v1/store/cart/items/%d", cart.Items[0].ID), se.token(se.buyer), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &cart)
		assert.Empty(t, cart.Items)
		assert.True(t, cart.Total.IsZero())
	})

	t.Run("multipart image", func(t *testing.T) {
		rec := se.doMultipart(http.MethodPut, fmt.Sprintf("/v1/store/admin/products/%d", se.product.ID), se.admin,
			store.ProductForm{Name: "Lenço oficial", Price: decimal.NewFromInt(25), Stock: 3},
			map[string][]byte{"image": []byte("fake png")},
		)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p store.Product
		decode(t, rec, &p)
		assert.Equal(t, "Lenço oficial", p.Name)
		assert.NotEmpty(t, p.ImageURL)

		files, err := filepath.Glob(filepath.Join(se.conf.Storage.LocalDir, "products", "*.png"))
		require.NoError(t, err)
		require.Len(t, files, 1)
		content, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Equal(t, "fake png", string(content))
	})

	t.Run("inactive category is hidden", func(t *testing.T) {
		off := false
		rec := se.do(http.MethodPost, "/v1/store/admin/categories", se.admin, store.CategoryForm{Name: "Antigos", Active: &off})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = se.do(http.MethodGet, "/v1/store/catalog", se.token(se.buyer), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var res echoapi.CatalogResponse
		decode(t, rec, &res)
		require.Len(t, res.Categories, 1)
		assert.Equal(t, "Uniformes", res.Categories[0].Name)

		rec = se.do(http.MethodGet, "/v1/store/admin/categories", se.admin, nil)
		var cats []store.Category
		decode(t, rec, &cats)
		assert.Len(t, cats, 2)
	})
}

func Test_storeApi_checkout(t *testing.T) {
	se := setupStore(t)
	token := se.token(se.buyer)

	rec := se.do(http.MethodPost, "/v1/store/cart/checkout", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	rec = se.do(http.MethodPost, "/v1/store/products/9999/cart", token, store.AddItem{Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = se.do(http.MethodPost, fmt.Sprintf("/v1/store/products/%d/cart", se.product.ID), token, store.AddItem{Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = se.do(http.MethodGet, "/v1/store/cart", token, nil)
	var cart store.Cart
	decode(t, rec, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Lenço", cart.Items[0].ProductName)
	assert.True(t, decimal.NewFromInt(50).Equal(cart.Total))

	rec = se.do(http.MethodPost, "/v1/store/cart/checkout", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var o store.Order
	decode(t, rec, &o)
	assert.Equal(t, store.OrderPending, o.Status)
	assert.True(t, decimal.NewFromInt(50).Equal(o.Total))
	require.Len(t, o.Items, 1)

	rec = se.do(http.MethodGet, fmt.Sprintf("/v1/store/products/%d", se.product.ID), token, nil)
	var p store.Product
	decode(t, rec, &p)
	assert.Equal(t, 1, p.Stock)

	rec = se.do(http.MethodPost, "/v1/store/cart/checkout", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cart closed by the previous checkout")

	rec = se.do(http.MethodGet, "/v1/store/orders", token, nil)
	var orders []store.Order
	decode(t, rec, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)

	t.Run("pay", func(t *testing.T) {
		payURL := fmt.Sprintf("/v1/store/orders/%d/pay", o.ID)
		stranger := se.createUser("Abel", "+5511966660003", user.RoleResponsavel)

		rec := se.do(http.MethodGet, payURL, se.token(stranger), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = se.do(http.MethodGet, payURL, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var op store.OrderPayment
		decode(t, rec, &op)
		assert.Equal(t, payment.OrderReference(o.ID), op.Reference)
		assert.Contains(t, op.PixCode, "PIX-ORDER-")
		assert.Contains(t, op.PixCode, "-5000")

		rec = se.do(http.MethodPost, payURL, se.token(stranger), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = se.do(http.MethodPost, payURL, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var paid store.Order
		decode(t, rec, &paid)
		assert.Equal(t, store.OrderPaid, paid.Status)

		rec = se.do(http.MethodPost, payURL, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, "confirming twice keeps it paid")
	})

	t.Run("admin orders", func(t *testing.T) {
		rec := se.do(http.MethodGet, "/v1/store/admin/orders?status=PAID", se.admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var orders []store.Order
		decode(t, rec, &orders)
		require.Len(t, orders, 1)
		assert.Equal(t, o.ID, orders[0].ID)

		rec = se.do(http.MethodPut, fmt.Sprintf("/v1/store/admin/orders/%d/status", o.ID), se.admin, store.OrderStatusForm{Status: "SHIPPED"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = se.do(http.MethodPut, fmt.Sprintf("/v1/store/admin/orders/%d/status", o.ID), se.admin, store.OrderStatusForm{Status: store.OrderCancelled})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = se.do(http.MethodGet, "/v1/store/admin/orders?status=PAID", se.admin, nil)
		decode(t, rec, &orders)
		assert.Empty(t, orders)

		rec = se.do(http.MethodGet, fmt.Sprintf("/v1/store/orders/%d/pay", o.ID), token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "cancelled orders cannot be paid")
	})
}

func Test_webhookApi_order(t *testing.T) {
	se := setupStore(t)
	o := se.order(1)
	secret := se.conf.MercadoPago.WebhookSecret

	se.provider.charges["201"] = payment.Charge{
		ID: "201", Status: payment.StatusApproved, Amount: o.Total, ExternalReference: payment.OrderReference(o.ID),
	}
	body := []byte(`{"type":"payment","action":"payment.updated","data":{"id":"201"}}`)
	rec := se.webhook(body, mercadopago.Sign(secret, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out payment.Outcome
	decode(t, rec, &out)
	assert.True(t, out.Settled)
	assert.Equal(t, payment.OrderReference(o.ID), out.Reference)

	orders, err := se.stores.Orders(se.ctx(), se.buyer.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, store.OrderPaid, orders[0].Status)
	assert.Equal(t, "201", orders[0].PaymentReference)
}
