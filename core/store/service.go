// Package store is the club's merchandise shop: catalog, carts, orders and their PIX payment.
package store

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/payment"
	"github.com/pinhaljunior/aventureiros/core/user"
)

var (
	ErrProductNotFound  = core.NewNotFoundError("product")
	ErrVariantNotFound  = core.NewNotFoundError("product variant")
	ErrCategoryNotFound = core.NewNotFoundError("category")
	ErrCartNotFound     = core.NewNotFoundError("cart")
	ErrCartItemNotFound = core.NewNotFoundError("cart item")
	ErrOrderNotFound    = core.NewNotFoundError("order")
	ErrEmptyCart        = core.NewValidationError(errors.New("Carrinho vazio."))
	ErrOrderNotPayable  = core.NewValidationError(errors.New("este pedido não pode ser pago"))

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateCategory(ctx context.Context, c Category) (Category, error)
		UpdateCategory(ctx context.Context, c Category) (Category, error)
		GetCategory(ctx context.Context, id int) (Category, error)
		// QueryCategories is ordered by name.
		QueryCategories(ctx context.Context, activeOnly bool) ([]Category, error)

		CreateProduct(ctx context.Context, p Product, exec ...core.DBExecutor) (Product, error)
		UpdateProduct(ctx context.Context, p Product, exec ...core.DBExecutor) (Product, error)
		GetProduct(ctx context.Context, id int, exec ...core.DBExecutor) (Product, error)
		// QueryProducts is ordered by name.
		QueryProducts(ctx context.Context, filter *ProductFilter) ([]Product, error)
		// ReplaceVariants deletes the product variants and creates `variants` instead.
		ReplaceVariants(ctx context.Context, productID int, variants []Variant, exec ...core.DBExecutor) ([]Variant, error)
		// QueryVariants is ordered by id.
		QueryVariants(ctx context.Context, productID int, exec ...core.DBExecutor) ([]Variant, error)
		GetVariant(ctx context.Context, id int, exec ...core.DBExecutor) (Variant, error)
		// DecrementProductStock takes `qty` from the product stock when enough is left; the bool reports it.
		DecrementProductStock(ctx context.Context, id, qty int, exec ...core.DBExecutor) (bool, error)
		DecrementVariantStock(ctx context.Context, id, qty int, exec ...core.DBExecutor) (bool, error)

		// GetOpenCart returns ErrCartNotFound when the user has no open cart.
		GetOpenCart(ctx context.Context, userID int, exec ...core.DBExecutor) (Cart, error)
		CreateCart(ctx context.Context, c Cart, exec ...core.DBExecutor) (Cart, error)
		UpdateCart(ctx context.Context, c Cart, exec ...core.DBExecutor) (Cart, error)
		// AddCartItem adds the quantity to the item of the same product, variant and option, or creates it.
		AddCartItem(ctx context.Context, item CartItem, exec ...core.DBExecutor) (CartItem, error)
		GetCartItem(ctx context.Context, id int) (CartItem, error)
		DeleteCartItem(ctx context.Context, id int) error
		QueryCartItems(ctx context.Context, cartID int, exec ...core.DBExecutor) ([]CartItem, error)

		CreateOrder(ctx context.Context, o Order, exec ...core.DBExecutor) (Order, error)
		CreateOrderItem(ctx context.Context, item OrderItem, exec ...core.DBExecutor) (OrderItem, error)
		GetOrder(ctx context.Context, id int, exec ...core.DBExecutor) (Order, error)
		// LockOrder is GetOrder with the row locked until the end of the transaction `exec` belongs to.
		LockOrder(ctx context.Context, id int, exec ...core.DBExecutor) (Order, error)
		UpdateOrder(ctx context.Context, o Order, exec ...core.DBExecutor) (Order, error)
		// QueryOrders is ordered newest first.
		QueryOrders(ctx context.Context, filter *OrderFilter) ([]Order, error)
		QueryOrderItems(ctx context.Context, orderIDs []int) ([]OrderItem, error)
	}

	Service interface {
		payment.OrderSettler

		Catalog(ctx context.Context, categoryID int) ([]Product, []Category, error)
		Product(ctx context.Context, id int) (Product, error)
		AddToCart(ctx context.Context, userID int, ai AddItem) (Cart, error)
		RemoveFromCart(ctx context.Context, userID, itemID int) (Cart, error)
		Cart(ctx context.Context, userID int) (Cart, error)
		// Checkout turns the open cart into a pending order and takes the items from stock.
		Checkout(ctx context.Context, userID int) (Order, error)
		Orders(ctx context.Context, userID int) ([]Order, error)
		OrderCheckout(ctx context.Context, buyer user.User, orderID int) (OrderPayment, error)
		ConfirmOrder(ctx context.Context, buyer user.User, orderID int) (Order, error)

		Products(ctx context.Context) ([]Product, error)
		CreateProduct(ctx context.Context, pf ProductForm) (Product, error)
		UpdateProduct(ctx context.Context, id int, pf ProductForm) (Product, error)
		Categories(ctx context.Context) ([]Category, error)
		CreateCategory(ctx context.Context, cf CategoryForm) (Category, error)
		UpdateCategory(ctx context.Context, id int, cf CategoryForm) (Category, error)
		AllOrders(ctx context.Context, filter *OrderFilter) ([]Order, error)
		UpdateOrderStatus(ctx context.Context, id int, status string) (Order, error)
	}

	service struct {
		repo     Repository
		tx       core.Transactor
		provider payment.Provider
		storage  core.FileStorage
		logger   core.Logger
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

// NewService creates the store service. `provider` may be nil: PIX codes are then generated locally.
func NewService(
	repo Repository,
	tx core.Transactor,
	provider payment.Provider,
	storage core.FileStorage,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{repo: repo, tx: tx, provider: provider, storage: storage, logger: logger, conf: conf}
}

func (svc *service) Catalog(ctx context.Context, categoryID int) ([]Product, []Category, error) {
	products, err := svc.repo.QueryProducts(ctx, &ProductFilter{CategoryID: categoryID, ActiveOnly: true})
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying products")
	}
	categories, err := svc.repo.QueryCategories(ctx, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying categories")
	}
	return products, categories, nil
}

func (svc *service) Product(ctx context.Context, id int) (Product, error) {
	p, err := svc.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if !p.Active {
		return Product{}, ErrProductNotFound
	}
	variants, err := svc.repo.QueryVariants(ctx, p.ID)
	if err != nil {
		return Product{}, errors.Wrap(err, "querying variants")
	}
	for _, v := range variants {
		if v.Active {
			p.Variants = append(p.Variants, v)
		}
	}
	return p, nil
}

func (svc *service) openCart(ctx context.Context, userID int, exec ...core.DBExecutor) (Cart, error) {
	c, err := svc.repo.GetOpenCart(ctx, userID, exec...)
	if err == nil {
		return c, nil
	}
	if !core.IsNotFound(err) {
		return Cart{}, errors.Wrap(err, "finding open cart")
	}
	now := NowFunc().UTC()
	if c, err = svc.repo.CreateCart(ctx, Cart{UserID: userID, Status: CartOpen, CreatedAt: now, UpdatedAt: now}, exec...); err != nil {
		return Cart{}, errors.Wrap(err, "creating cart")
	}
	return c, nil
}

func (svc *service) AddToCart(ctx context.Context, userID int, ai AddItem) (Cart, error) {
	p, err := svc.repo.GetProduct(ctx, ai.ProductID)
	if err != nil {
		return Cart{}, err
	}
	if !p.Active {
		return Cart{}, ErrProductNotFound
	}

	item := CartItem{ProductID: p.ID, Option: ai.Option, Quantity: ai.Quantity, UnitPrice: p.Price}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	if ai.VariantID != 0 {
		v, err := svc.repo.GetVariant(ctx, ai.VariantID)
		if err != nil {
			return Cart{}, err
		}
		if v.ProductID != p.ID || !v.Active {
			return Cart{}, ErrVariantNotFound
		}
		item.VariantID = &v.ID
		item.Option = v.Name
		item.UnitPrice = v.Price
	}

	cart, err := svc.openCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	item.CartID = cart.ID
	if _, err := svc.repo.AddCartItem(ctx, item); err != nil {
		return Cart{}, errors.Wrap(err, "adding cart item")
	}
	return svc.loadCart(ctx, cart)
}

func (svc *service) RemoveFromCart(ctx context.Context, userID, itemID int) (Cart, error) {
	cart, err := svc.repo.GetOpenCart(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return Cart{}, ErrCartItemNotFound
		}
		return Cart{}, err
	}
	item, err := svc.repo.GetCartItem(ctx, itemID)
	if err != nil {
		return Cart{}, err
	}
	if item.CartID != cart.ID {
		return Cart{}, ErrCartItemNotFound
	}
	if err := svc.repo.DeleteCartItem(ctx, item.ID); err != nil {
		return Cart{}, errors.Wrap(err, "removing cart item")
	}
	return svc.loadCart(ctx, cart)
}

func (svc *service) Cart(ctx context.Context, userID int) (Cart, error) {
	cart, err := svc.repo.GetOpenCart(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return Cart{UserID: userID, Status: CartOpen, Items: []CartItem{}}, nil
		}
		return Cart{}, err
	}
	return svc.loadCart(ctx, cart)
}

func (svc *service) loadCart(ctx context.Context, cart Cart, exec ...core.DBExecutor) (Cart, error) {
	items, err := svc.repo.QueryCartItems(ctx, cart.ID, exec...)
	if err != nil {
		return Cart{}, errors.Wrap(err, "querying cart items")
	}
	cart.Items = items
	cart.Total = decimal.Zero
	for _, item := range items {
		cart.Total = cart.Total.Add(item.Subtotal())
	}
	return cart, nil
}

func (svc *service) Checkout(ctx context.Context, userID int) (Order, error) {
	var order Order
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		cart, err := svc.repo.GetOpenCart(ctx, userID, exec)
		if err != nil {
			if core.IsNotFound(err) {
				return ErrEmptyCart
			}
			return err
		}
		if cart, err = svc.loadCart(ctx, cart, exec); err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return ErrEmptyCart
		}

		now := NowFunc().UTC()
		order, err = svc.repo.CreateOrder(ctx, Order{
			UserID:    userID,
			CartID:    &cart.ID,
			Total:     cart.Total,
			Status:    OrderPending,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating order")
		}

		for _, item := range cart.Items {
			oi, err := svc.repo.CreateOrderItem(ctx, OrderItem{
				OrderID:   order.ID,
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Option:    item.Option,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			}, exec)
			if err != nil {
				return errors.Wrapf(err, "creating item of order %d", order.ID)
			}
			oi.ProductName = item.ProductName
			order.Items = append(order.Items, oi)

			// stock only moves when there is enough of it
			if _, err := svc.repo.DecrementProductStock(ctx, item.ProductID, item.Quantity, exec); err != nil {
				return errors.Wrapf(err, "updating stock of product %d", item.ProductID)
			}
			if item.VariantID != nil {
				if _, err := svc.repo.DecrementVariantStock(ctx, *item.VariantID, item.Quantity, exec); err != nil {
					return errors.Wrapf(err, "updating stock of variant %d", *item.VariantID)
				}
			}
		}

		cart.Status = CartCheckedOut
		cart.UpdatedAt = now
		if _, err := svc.repo.UpdateCart(ctx, cart, exec); err != nil {
			return errors.Wrap(err, "closing cart")
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (svc *service) Orders(ctx context.Context, userID int) ([]Order, error) {
	return svc.AllOrders(ctx, &OrderFilter{UserID: userID})
}

func (svc *service) AllOrders(ctx context.Context, filter *OrderFilter) ([]Order, error) {
	orders, err := svc.repo.QueryOrders(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]int, len(orders))
	byID := make(map[int]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
		orders[i].Items = []OrderItem{}
	}
	items, err := svc.repo.QueryOrderItems(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "querying order items")
	}
	for _, item := range items {
		i := byID[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return orders, nil
}

// buyerOrder loads an order placed by `buyer`.
func (svc *service) buyerOrder(ctx context.Context, buyer user.User, orderID int) (Order, error) {
	o, err := svc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != buyer.ID {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (svc *service) OrderCheckout(ctx context.Context, buyer user.User, orderID int) (OrderPayment, error) {
	o, err := svc.buyerOrder(ctx, buyer, orderID)
	if err != nil {
		return OrderPayment{}, err
	}
	if o.Status == OrderCancelled {
		return OrderPayment{}, ErrOrderNotPayable
	}
	op := OrderPayment{
		Order:     o,
		Reference: payment.OrderReference(o.ID),
		PixCode:   payment.LocalPixCode(payment.RefOrder, strconv.Itoa(o.ID), o.Total, NowFunc()),
	}
	if o.Status == OrderPaid || svc.provider == nil || !svc.conf.MercadoPago.Enabled() || !o.Total.IsPositive() {
		return op, nil
	}

	charge, err := svc.provider.CreatePixCharge(ctx, payment.ChargeRequest{
		Amount:            o.Total,
		Description:       fmt.Sprintf("Pedido %d", o.ID),
		ExternalReference: op.Reference,
		Payer: payment.Payer{
			Email:     buyer.Email,
			Whatsapp:  buyer.WhatsappNumber,
			FirstName: buyer.FirstName,
			LastName:  buyer.LastName,
		},
	})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("creating PIX charge %s: %v", op.Reference, err), err, buyer)
		return OrderPayment{}, payment.ErrProviderUnavailable
	}
	op.Charge = &charge
	if charge.QRCode != "" {
		op.PixCode = charge.QRCode
	}
	if op.Order.PaymentReference == "" {
		op.Order.PaymentReference = charge.ID
		if _, err := svc.repo.UpdateOrder(ctx, op.Order); err != nil {
			svc.logger.Warn(fmt.Sprintf("saving payment reference of order %d: %v", o.ID, err))
		}
	}
	return op, nil
}

func (svc *service) ConfirmOrder(ctx context.Context, buyer user.User, orderID int) (Order, error) {
	if _, err := svc.buyerOrder(ctx, buyer, orderID); err != nil {
		return Order{}, err
	}
	return svc.markPaid(ctx, orderID, payment.Settlement{PaidAt: NowFunc().UTC()})
}

func (svc *service) SettleOrder(ctx context.Context, orderID int, s payment.Settlement) error {
	_, err := svc.markPaid(ctx, orderID, s)
	return err
}

// markPaid sets a pending order as PAID, row-locked. Paid orders are returned untouched.
func (svc *service) markPaid(ctx context.Context, orderID int, s payment.Settlement) (Order, error) {
	var o Order
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if o, err = svc.repo.LockOrder(ctx, orderID, exec); err != nil {
			return err
		}
		switch o.Status {
		case OrderPaid:
			return nil
		case OrderCancelled:
			return ErrOrderNotPayable
		}
		if !s.Amount.IsZero() && !s.Amount.Round(2).Equal(o.Total.Round(2)) {
			return errors.Wrapf(payment.ErrAmountMismatch, "paid %s, expected %s", s.Amount.StringFixed(2), o.Total.StringFixed(2))
		}
		o.Status = OrderPaid
		if s.ProviderPaymentID != "" {
			o.PaymentReference = s.ProviderPaymentID
		}
		o.UpdatedAt = NowFunc().UTC()
		o, err = svc.repo.UpdateOrder(ctx, o, exec)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (svc *service) Products(ctx context.Context) ([]Product, error) {
	return svc.repo.QueryProducts(ctx, nil)
}

func (svc *service) CreateProduct(ctx context.Context, pf ProductForm) (Product, error) {
	p := Product{Active: true, CreatedAt: NowFunc().UTC()}
	return svc.saveProduct(ctx, p, pf)
}

func (svc *service) UpdateProduct(ctx context.Context, id int, pf ProductForm) (Product, error) {
	p, err := svc.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	return svc.saveProduct(ctx, p, pf)
}

func (svc *service) saveProduct(ctx context.Context, p Product, pf ProductForm) (Product, error) {
	if pf.CategoryID != nil {
		if _, err := svc.repo.GetCategory(ctx, *pf.CategoryID); err != nil {
			return Product{}, err
		}
	}
	pf.apply(&p)

	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if p.ID == 0 {
			p, err = svc.repo.CreateProduct(ctx, p, exec)
		} else {
			p, err = svc.repo.UpdateProduct(ctx, p, exec)
		}
		if err != nil {
			return errors.Wrap(err, "saving product")
		}
		if len(pf.Variants) == 0 {
			return nil
		}
		variants := make([]Variant, len(pf.Variants))
		for i, vf := range pf.Variants {
			variants[i] = Variant{ProductID: p.ID, Name: vf.Name, Price: vf.Price.Round(2), Stock: vf.Stock, Active: true}
		}
		if p.Variants, err = svc.repo.ReplaceVariants(ctx, p.ID, variants, exec); err != nil {
			return errors.Wrap(err, "saving variants")
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	if pf.Image != nil {
		name := path.Join("products", strconv.Itoa(p.ID)+path.Ext(pf.Image.Filename))
		imageURL, err := svc.storage.Save(ctx, name, pf.Image.Content, pf.Image.ContentType)
		if err != nil {
			return Product{}, errors.Wrap(err, "storing product image")
		}
		p.ImageURL = imageURL
		if p, err = svc.repo.UpdateProduct(ctx, p); err != nil {
			return Product{}, errors.Wrap(err, "saving product image")
		}
	}
	return p, nil
}

func (svc *service) Categories(ctx context.Context) ([]Category, error) {
	return svc.repo.QueryCategories(ctx, false)
}

func (svc *service) CreateCategory(ctx context.Context, cf CategoryForm) (Category, error) {
	c := Category{Name: cf.Name, Active: true}
	if cf.Active != nil {
		c.Active = *cf.Active
	}
	c, err := svc.repo.CreateCategory(ctx, c)
	if err != nil {
		return Category{}, errors.Wrap(err, "creating category")
	}
	return c, nil
}

func (svc *service) UpdateCategory(ctx context.Context, id int, cf CategoryForm) (Category, error) {
	c, err := svc.repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	c.Name = cf.Name
	if cf.Active != nil {
		c.Active = *cf.Active
	}
	if c, err = svc.repo.UpdateCategory(ctx, c); err != nil {
		return Category{}, errors.Wrap(err, "updating category")
	}
	return c, nil
}

func (svc *service) UpdateOrderStatus(ctx context.Context, id int, status string) (Order, error) {
	o, err := svc.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	o.Status = status
	o.UpdatedAt = NowFunc().UTC()
	if o, err = svc.repo.UpdateOrder(ctx, o); err != nil {
		return Order{}, errors.Wrap(err, "updating order")
	}
	return o, nil
}
