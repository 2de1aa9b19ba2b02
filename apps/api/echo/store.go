package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/store"
	"github.com/pinhaljunior/aventureiros/core/user"
)

const productImageField = "image"

var storeAdminRoles = []string{user.RoleDiretoria, user.RoleTesoureiro}

type storeApi struct {
	userSvc  user.Service
	svc      store.Service
	validate *validator.Validate
}

func registerStoreAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := storeApi{
		userSvc:  opts.UserSvc,
		svc:      opts.StoreSvc,
		validate: opts.Validate,
	}

	// any active user may buy
	sg := g.Group("/store", jwt, roleMiddleware(api.userSvc))
	sg.GET("/catalog", api.catalog)
	sg.GET("/products/:id", api.product)
	sg.POST("/products/:id/cart", api.addToCart)
	sg.GET("/cart", api.cart)
	sg.DELETE("/cart/items/:id", api.removeFromCart)
	sg.POST("/cart/checkout", api.checkout)
	sg.GET("/orders", api.orders)
	sg.GET("/orders/:id/pay", api.orderCheckout)
	sg.POST("/orders/:id/pay", api.confirmOrder)

	ag := g.Group("/store/admin", jwt, roleMiddleware(api.userSvc, storeAdminRoles...))
	ag.GET("/products", api.products)
	ag.POST("/products", api.createProduct)
	ag.PUT("/products/:id", api.updateProduct)
	ag.GET("/categories", api.categories)
	ag.POST("/categories", api.createCategory)
	ag.PUT("/categories/:id", api.updateCategory)
	ag.GET("/orders", api.allOrders)
	ag.PUT("/orders/:id/status", api.updateOrderStatus)
}

// Handlers

func (api *storeApi) catalog(ctx echo.Context) error {
	filter := new(store.ProductFilter)
	if err := ctx.Bind(filter); err != nil {
		filter = new(store.ProductFilter)
	}
	products, categories, err := api.svc.Catalog(ctx.Request().Context(), filter.CategoryID)
	if err != nil {
		return errors.Wrap(err, "querying catalog")
	}
	if products == nil {
		products = []store.Product{}
	}
	if categories == nil {
		categories = []store.Category{}
	}
	return ctx.JSON(http.StatusOK, CatalogResponse{Products: products, Categories: categories})
}

func (api *storeApi) product(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	p, err := api.svc.Product(ctx.Request().Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting product")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *storeApi) addToCart(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data store.AddItem
	if err := bindAndValidate(ctx, api.validate, &data, "AddItem"); err != nil {
		return err
	}
	data.ProductID = id

	cart, err := api.svc.AddToCart(ctx.Request().Context(), getClaimsUserID(ctx), data)
	if err != nil {
		switch errors.Cause(err) {
		case store.ErrProductNotFound:
			return errHttpNotFound
		case store.ErrVariantNotFound:
			return core.NewFieldError("variant_id", "variação não encontrada")
		}
		return errors.Wrap(err, "adding to cart")
	}
	return ctx.JSON(http.StatusOK, cart)
}

func (api *storeApi) cart(ctx echo.Context) error {
	cart, err := api.svc.Cart(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "getting cart")
	}
	return ctx.JSON(http.StatusOK, cart)
}

func (api *storeApi) removeFromCart(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	cart, err := api.svc.RemoveFromCart(ctx.Request().Context(), getClaimsUserID(ctx), id)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "removing from cart")
	}
	return ctx.JSON(http.StatusOK, cart)
}

func (api *storeApi) checkout(ctx echo.Context) error {
	o, err := api.svc.Checkout(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "checking out cart")
	}
	return ctx.JSON(http.StatusCreated, o)
}

func (api *storeApi) orders(ctx echo.Context) error {
	orders, err := api.svc.Orders(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	if orders == nil {
		orders = []store.Order{}
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (api *storeApi) orderCheckout(ctx echo.Context) error {
	buyer, id, err := api.buyerParams(ctx)
	if err != nil {
		return err
	}
	op, err := api.svc.OrderCheckout(ctx.Request().Context(), buyer, id)
	if err != nil {
		return api.orderError(err, "creating order checkout")
	}
	return ctx.JSON(http.StatusOK, op)
}

func (api *storeApi) confirmOrder(ctx echo.Context) error {
	buyer, id, err := api.buyerParams(ctx)
	if err != nil {
		return err
	}
	o, err := api.svc.ConfirmOrder(ctx.Request().Context(), buyer, id)
	if err != nil {
		return api.orderError(err, "confirming order")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *storeApi) buyerParams(ctx echo.Context) (user.User, int, error) {
	id, err := paramID(ctx, "id")
	if err != nil {
		return user.User{}, 0, err
	}
	buyer, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return user.User{}, 0, errors.Wrap(err, "getting context user")
	}
	return buyer, id, nil
}

// orderError hides other users' orders behind a 404.
func (api *storeApi) orderError(err error, msg string) error {
	if core.IsNotFound(err) || errors.Cause(err) == core.ErrPermissionDenied {
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}

func (api *storeApi) products(ctx echo.Context) error {
	products, err := api.svc.Products(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying products")
	}
	if products == nil {
		products = []store.Product{}
	}
	return ctx.JSON(http.StatusOK, products)
}

func (api *storeApi) bindProduct(ctx echo.Context) (store.ProductForm, error) {
	var data store.ProductForm
	if err := bindAndValidate(ctx, api.validate, &data, "ProductForm"); err != nil {
		return data, err
	}
	img, err := formUpload(ctx, productImageField)
	if err != nil {
		return data, err
	}
	data.Image = img
	return data, nil
}

func (api *storeApi) createProduct(ctx echo.Context) error {
	data, err := api.bindProduct(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.CreateProduct(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == store.ErrCategoryNotFound {
			return core.NewFieldError("category_id", "categoria não encontrada")
		}
		return errors.Wrap(err, "creating product")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *storeApi) updateProduct(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	data, err := api.bindProduct(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.UpdateProduct(ctx.Request().Context(), id, data)
	if err != nil {
		switch errors.Cause(err) {
		case store.ErrProductNotFound:
			return errHttpNotFound
		case store.ErrCategoryNotFound:
			return core.NewFieldError("category_id", "categoria não encontrada")
		}
		return errors.Wrap(err, "updating product")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *storeApi) categories(ctx echo.Context) error {
	cats, err := api.svc.Categories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	if cats == nil {
		cats = []store.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *storeApi) createCategory(ctx echo.Context) error {
	var data store.CategoryForm
	if err := bindAndValidate(ctx, api.validate, &data, "CategoryForm"); err != nil {
		return err
	}
	c, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *storeApi) updateCategory(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data store.CategoryForm
	if err := bindAndValidate(ctx, api.validate, &data, "CategoryForm"); err != nil {
		return err
	}
	c, err := api.svc.UpdateCategory(ctx.Request().Context(), id, data)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *storeApi) allOrders(ctx echo.Context) error {
	filter := new(store.OrderFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []store.Order{})
	}
	filter.Status = core.CleanString(filter.Status)
	filter.UserID = 0

	orders, err := api.svc.AllOrders(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	if orders == nil {
		orders = []store.Order{}
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (api *storeApi) updateOrderStatus(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data store.OrderStatusForm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OrderStatusForm")
	}
	data.Status = core.CleanString(data.Status)
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	o, err := api.svc.UpdateOrderStatus(ctx.Request().Context(), id, data.Status)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating order status")
	}
	return ctx.JSON(http.StatusOK, o)
}

type CatalogResponse struct {
	Products   []store.Product  `json:"products"`
	Categories []store.Category `json:"categories"`
}
