package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/store"
)

type storeRepository struct {
	db *DB
}

var _ store.Repository = (*storeRepository)(nil) // interface compliance check

func NewStoreRepository(db *DB) *storeRepository {
	return &storeRepository{db: db}
}

var errCategoryExists = core.NewFieldError("name", "já existe uma categoria com este nome")

// categories

func (repo *storeRepository) categoryTaken(name string, id int) bool {
	for _, c := range repo.db.categories {
		if strings.EqualFold(c.Name, name) && c.ID != id {
			return true
		}
	}
	return false
}

func (repo *storeRepository) CreateCategory(_ context.Context, c store.Category) (store.Category, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.categoryTaken(c.Name, 0) {
		return store.Category{}, errCategoryExists
	}
	c.ID = repo.db.nextPK()
	stored := c
	repo.db.categories[c.ID] = &stored
	return c, nil
}

func (repo *storeRepository) UpdateCategory(_ context.Context, c store.Category) (store.Category, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.categories[c.ID]; !ok {
		return store.Category{}, store.ErrCategoryNotFound
	}
	if repo.categoryTaken(c.Name, c.ID) {
		return store.Category{}, errCategoryExists
	}
	stored := c
	repo.db.categories[c.ID] = &stored
	return c, nil
}

func (repo *storeRepository) GetCategory(_ context.Context, id int) (store.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.categories[id]; ok {
		return *c, nil
	}
	return store.Category{}, store.ErrCategoryNotFound
}

func (repo *storeRepository) QueryCategories(_ context.Context, activeOnly bool) ([]store.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	categories := make([]store.Category, 0, len(repo.db.categories))
	for _, c := range repo.db.categories {
		if activeOnly && !c.Active {
			continue
		}
		categories = append(categories, *c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

// products

// product must be called with the lock held.
func (repo *storeRepository) product(p *store.Product) store.Product {
	prod := *p
	prod.Variants = nil
	prod.CategoryID = copyInt(p.CategoryID)
	if p.CategoryID != nil {
		if c, ok := repo.db.categories[*p.CategoryID]; ok {
			prod.CategoryName = c.Name
		}
	}
	return prod
}

func (repo *storeRepository) CreateProduct(_ context.Context, p store.Product, _ ...core.DBExecutor) (store.Product, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.ID = repo.db.nextPK()
	stored := p
	stored.CategoryID = copyInt(p.CategoryID)
	stored.CategoryName, stored.Variants = "", nil
	repo.db.products[p.ID] = &stored
	return repo.product(&stored), nil
}

func (repo *storeRepository) UpdateProduct(_ context.Context, p store.Product, _ ...core.DBExecutor) (store.Product, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.products[p.ID]
	if !ok {
		return store.Product{}, store.ErrProductNotFound
	}
	stored.CategoryID = copyInt(p.CategoryID)
	stored.Name = p.Name
	stored.Description = p.Description
	stored.Price = p.Price
	stored.Stock = p.Stock
	stored.Options = p.Options
	stored.ImageURL = p.ImageURL
	stored.Active = p.Active
	return repo.product(stored), nil
}

func (repo *storeRepository) GetProduct(_ context.Context, id int, _ ...core.DBExecutor) (store.Product, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.products[id]; ok {
		return repo.product(p), nil
	}
	return store.Product{}, store.ErrProductNotFound
}

func (repo *storeRepository) QueryProducts(_ context.Context, filter *store.ProductFilter) ([]store.Product, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	products := make([]store.Product, 0, len(repo.db.products))
	for _, p := range repo.db.products {
		if filter != nil {
			if filter.CategoryID != 0 && (p.CategoryID == nil || *p.CategoryID != filter.CategoryID) {
				continue
			}
			if filter.ActiveOnly && !p.Active {
				continue
			}
		}
		products = append(products, repo.product(p))
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

func (repo *storeRepository) ReplaceVariants(_ context.Context, productID int, variants []store.Variant, _ ...core.DBExecutor) ([]store.Variant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, v := range repo.db.variants {
		if v.ProductID == productID {
			delete(repo.db.variants, id)
		}
	}
	out := make([]store.Variant, 0, len(variants))
	for _, v := range variants {
		v.ID = repo.db.nextPK()
		v.ProductID = productID
		stored := v
		repo.db.variants[v.ID] = &stored
		out = append(out, v)
	}
	return out, nil
}

func (repo *storeRepository) QueryVariants(_ context.Context, productID int, _ ...core.DBExecutor) ([]store.Variant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	variants := make([]store.Variant, 0)
	for _, v := range repo.db.variants {
		if v.ProductID == productID {
			variants = append(variants, *v)
		}
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].ID < variants[j].ID })
	return variants, nil
}

func (repo *storeRepository) GetVariant(_ context.Context, id int, _ ...core.DBExecutor) (store.Variant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if v, ok := repo.db.variants[id]; ok {
		return *v, nil
	}
	return store.Variant{}, store.ErrVariantNotFound
}

func (repo *storeRepository) DecrementProductStock(_ context.Context, id, qty int, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (repo *storeRepository) DecrementVariantStock(_ context.Context, id, qty int, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	v, ok := repo.db.variants[id]
	if !ok || v.Stock < qty {
		return false, nil
	}
	v.Stock -= qty
	return true, nil
}

// carts

func (repo *storeRepository) GetOpenCart(_ context.Context, userID int, _ ...core.DBExecutor) (store.Cart, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var found *store.Cart
	for _, c := range repo.db.carts {
		if c.UserID == userID && c.Status == store.CartOpen && (found == nil || c.ID > found.ID) {
			found = c
		}
	}
	if found == nil {
		return store.Cart{}, store.ErrCartNotFound
	}
	return *found, nil
}

func (repo *storeRepository) CreateCart(_ context.Context, c store.Cart, _ ...core.DBExecutor) (store.Cart, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	c.ID = repo.db.nextPK()
	c.Items = nil
	stored := c
	repo.db.carts[c.ID] = &stored
	return c, nil
}

func (repo *storeRepository) UpdateCart(_ context.Context, c store.Cart, _ ...core.DBExecutor) (store.Cart, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.carts[c.ID]
	if !ok {
		return store.Cart{}, store.ErrCartNotFound
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	stored.Status = c.Status
	stored.UpdatedAt = c.UpdatedAt
	return *stored, nil
}

// cartItem must be called with the lock held.
func (repo *storeRepository) cartItem(item *store.CartItem) store.CartItem {
	ci := *item
	ci.VariantID = copyInt(item.VariantID)
	if p, ok := repo.db.products[item.ProductID]; ok {
		ci.ProductName = p.Name
	}
	return ci
}

func sameVariant(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (repo *storeRepository) AddCartItem(_ context.Context, item store.CartItem, _ ...core.DBExecutor) (store.CartItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.cartItems {
		if existing.CartID == item.CartID && existing.ProductID == item.ProductID &&
			existing.Option == item.Option && sameVariant(existing.VariantID, item.VariantID) {
			existing.Quantity += item.Quantity
			existing.UnitPrice = item.UnitPrice
			return repo.cartItem(existing), nil
		}
	}
	item.ID = repo.db.nextPK()
	stored := item
	stored.VariantID = copyInt(item.VariantID)
	stored.ProductName = ""
	repo.db.cartItems[item.ID] = &stored
	return repo.cartItem(&stored), nil
}

func (repo *storeRepository) GetCartItem(_ context.Context, id int) (store.CartItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if item, ok := repo.db.cartItems[id]; ok {
		return repo.cartItem(item), nil
	}
	return store.CartItem{}, store.ErrCartItemNotFound
}

func (repo *storeRepository) DeleteCartItem(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.cartItems, id)
	return nil
}

func (repo *storeRepository) QueryCartItems(_ context.Context, cartID int, _ ...core.DBExecutor) ([]store.CartItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]store.CartItem, 0)
	for _, item := range repo.db.cartItems {
		if item.CartID == cartID {
			items = append(items, repo.cartItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// orders

// order must be called with the lock held.
func (repo *storeRepository) order(o *store.Order) store.Order {
	ord := *o
	ord.Items = nil
	ord.CartID = copyInt(o.CartID)
	ord.UserName = repo.db.userName(o.UserID)
	return ord
}

func (repo *storeRepository) CreateOrder(_ context.Context, o store.Order, _ ...core.DBExecutor) (store.Order, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	o.ID = repo.db.nextPK()
	stored := o
	stored.CartID = copyInt(o.CartID)
	stored.Items, stored.UserName = nil, ""
	repo.db.orders[o.ID] = &stored

	created := stored
	created.CartID = copyInt(o.CartID)
	return created, nil
}

func (repo *storeRepository) CreateOrderItem(_ context.Context, item store.OrderItem, _ ...core.DBExecutor) (store.OrderItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	item.ID = repo.db.nextPK()
	stored := item
	stored.VariantID = copyInt(item.VariantID)
	stored.ProductName = ""
	repo.db.orderItems[item.ID] = &stored
	return item, nil
}

func (repo *storeRepository) GetOrder(_ context.Context, id int, _ ...core.DBExecutor) (store.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if o, ok := repo.db.orders[id]; ok {
		return repo.order(o), nil
	}
	return store.Order{}, store.ErrOrderNotFound
}

func (repo *storeRepository) LockOrder(ctx context.Context, id int, exec ...core.DBExecutor) (store.Order, error) {
	return repo.GetOrder(ctx, id, exec...)
}

func (repo *storeRepository) UpdateOrder(_ context.Context, o store.Order, _ ...core.DBExecutor) (store.Order, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.orders[o.ID]
	if !ok {
		return store.Order{}, store.ErrOrderNotFound
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}
	stored.Total = o.Total
	stored.Status = o.Status
	stored.PaymentReference = o.PaymentReference
	stored.UpdatedAt = o.UpdatedAt

	updated := repo.order(stored)
	updated.Items = o.Items
	return updated, nil
}

func (repo *storeRepository) QueryOrders(_ context.Context, filter *store.OrderFilter) ([]store.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	orders := make([]store.Order, 0)
	for _, o := range repo.db.orders {
		if filter != nil {
			if filter.UserID != 0 && o.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
		}
		orders = append(orders, repo.order(o))
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (repo *storeRepository) QueryOrderItems(_ context.Context, orderIDs []int) ([]store.OrderItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]store.OrderItem, 0)
	for _, item := range repo.db.orderItems {
		if !containsInt(orderIDs, item.OrderID) {
			continue
		}
		oi := *item
		oi.VariantID = copyInt(item.VariantID)
		if p, ok := repo.db.products[item.ProductID]; ok {
			oi.ProductName = p.Name
		}
		items = append(items, oi)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].OrderID != items[j].OrderID {
			return items[i].OrderID < items[j].OrderID
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
