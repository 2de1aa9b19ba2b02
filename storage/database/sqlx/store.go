package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/store"
)

var (
	categoryColumns = []string{"id", "name", "active"}
	productColumns  = []string{"id", "category_id", "name", "description", "price", "stock", "options", "image_url", "active", "created_at"}
	variantColumns  = []string{"id", "product_id", "name", "price", "stock", "active"}
	cartColumns     = []string{"id", "user_id", "status", "created_at", "updated_at"}
	orderColumns    = []string{"id", "user_id", "cart_id", "total", "status", "payment_reference", "created_at", "updated_at"}
)

type categoryRow struct {
	ID     int    `db:"id"`
	Name   string `db:"name"`
	Active bool   `db:"active"`
}

type productRow struct {
	ID          int             `db:"id"`
	CategoryID  null.Int        `db:"category_id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Stock       int             `db:"stock"`
	Options     string          `db:"options"`
	ImageURL    string          `db:"image_url"`
	Active      bool            `db:"active"`
	CreatedAt   time.Time       `db:"created_at"`

	CategoryName null.String `db:"category_name"`
}

func (r productRow) product() store.Product {
	return store.Product{
		ID:           r.ID,
		CategoryID:   intPtr(r.CategoryID),
		Name:         r.Name,
		Description:  r.Description,
		Price:        r.Price,
		Stock:        r.Stock,
		Options:      r.Options,
		ImageURL:     r.ImageURL,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt.UTC(),
		CategoryName: r.CategoryName.String,
	}
}

type variantRow struct {
	ID        int             `db:"id"`
	ProductID int             `db:"product_id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Stock     int             `db:"stock"`
	Active    bool            `db:"active"`
}

type cartRow struct {
	ID        int       `db:"id"`
	UserID    int       `db:"user_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r cartRow) cart() store.Cart {
	return store.Cart{ID: r.ID, UserID: r.UserID, Status: r.Status, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
}

// itemRow scans both cart and order items.
type itemRow struct {
	ID          int             `db:"id"`
	ParentID    int             `db:"parent_id"`
	ProductID   int             `db:"product_id"`
	VariantID   null.Int        `db:"variant_id"`
	Option      string          `db:"option"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	ProductName string          `db:"product_name"`
}

func (r itemRow) cartItem() store.CartItem {
	return store.CartItem{
		ID:          r.ID,
		CartID:      r.ParentID,
		ProductID:   r.ProductID,
		VariantID:   intPtr(r.VariantID),
		Option:      r.Option,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		ProductName: r.ProductName,
	}
}

func (r itemRow) orderItem() store.OrderItem {
	return store.OrderItem{
		ID:          r.ID,
		OrderID:     r.ParentID,
		ProductID:   r.ProductID,
		VariantID:   intPtr(r.VariantID),
		Option:      r.Option,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		ProductName: r.ProductName,
	}
}

type orderRow struct {
	ID               int             `db:"id"`
	UserID           int             `db:"user_id"`
	CartID           null.Int        `db:"cart_id"`
	Total            decimal.Decimal `db:"total"`
	Status           string          `db:"status"`
	PaymentReference string          `db:"payment_reference"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`

	UserName null.String `db:"user_name"`
}

func (r orderRow) order() store.Order {
	return store.Order{
		ID:               r.ID,
		UserID:           r.UserID,
		CartID:           intPtr(r.CartID),
		Total:            r.Total,
		Status:           r.Status,
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
		UserName:         r.UserName.String,
	}
}

type storeRepository struct {
	base
}

var _ store.Repository = (*storeRepository)(nil) // interface compliance check

func NewStoreRepository(db *sqlx.DB) *storeRepository {
	return &storeRepository{base{db: db}}
}

// categories

func (repo storeRepository) CreateCategory(ctx context.Context, c store.Category) (store.Category, error) {
	var row categoryRow
	q := psql.Insert("categories").
		Columns("name", "active").
		Values(c.Name, c.Active).
		Suffix("RETURNING " + strings.Join(categoryColumns, ", "))
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		if isUniqueViolation(err) {
			return store.Category{}, core.NewFieldError("name", "já existe uma categoria com este nome")
		}
		return store.Category{}, errors.Wrap(err, "inserting category")
	}
	return store.Category(row), nil
}

func (repo storeRepository) UpdateCategory(ctx context.Context, c store.Category) (store.Category, error) {
	var row categoryRow
	q := psql.Update("categories").
		Set("name", c.Name).
		Set("active", c.Active).
		Where(sq.Eq{"id": c.ID}).
		Suffix("RETURNING " + strings.Join(categoryColumns, ", "))
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		if isUniqueViolation(err) {
			return store.Category{}, core.NewFieldError("name", "já existe uma categoria com este nome")
		}
		return store.Category{}, trapNoRowsErr(err, store.ErrCategoryNotFound, "updating category")
	}
	return store.Category(row), nil
}

func (repo storeRepository) GetCategory(ctx context.Context, id int) (store.Category, error) {
	var row categoryRow
	q := psql.Select(categoryColumns...).From("categories").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return store.Category{}, trapNoRowsErr(err, store.ErrCategoryNotFound, "getting category")
	}
	return store.Category(row), nil
}

func (repo storeRepository) QueryCategories(ctx context.Context, activeOnly bool) ([]store.Category, error) {
	q := psql.Select(categoryColumns...).From("categories").OrderBy("name")
	if activeOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	var rows []categoryRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	categories := make([]store.Category, 0, len(rows))
	for _, r := range rows {
		categories = append(categories, store.Category(r))
	}
	return categories, nil
}

// products

func (repo storeRepository) productQuery() sq.SelectBuilder {
	cols := append(prefixed("p", productColumns), "cat.name AS category_name")
	return psql.Select(cols...).From("products p").LeftJoin("categories cat ON cat.id = p.category_id")
}

func productValues(p store.Product) map[string]interface{} {
	return map[string]interface{}{
		"category_id": ptrInt(p.CategoryID),
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price,
		"stock":       p.Stock,
		"options":     p.Options,
		"image_url":   p.ImageURL,
		"active":      p.Active,
	}
}

func (repo storeRepository) CreateProduct(ctx context.Context, p store.Product, exec ...core.DBExecutor) (store.Product, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	values := productValues(p)
	values["created_at"] = p.CreatedAt.UTC()

	var id int
	q := psql.Insert("products").SetMap(values).Suffix("RETURNING id")
	if err := repo.get(ctx, repo.getExec(exec), &id, q); err != nil {
		return store.Product{}, errors.Wrap(err, "inserting product")
	}
	return repo.GetProduct(ctx, id, exec...)
}

func (repo storeRepository) UpdateProduct(ctx context.Context, p store.Product, exec ...core.DBExecutor) (store.Product, error) {
	q := psql.Update("products").SetMap(productValues(p)).Where(sq.Eq{"id": p.ID})
	res, err := repo.exec(ctx, repo.getExec(exec), q)
	if err != nil {
		return store.Product{}, errors.Wrap(err, "updating product")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.Product{}, store.ErrProductNotFound
	}
	return repo.GetProduct(ctx, p.ID, exec...)
}

func (repo storeRepository) GetProduct(ctx context.Context, id int, exec ...core.DBExecutor) (store.Product, error) {
	var row productRow
	if err := repo.get(ctx, repo.getExec(exec), &row, repo.productQuery().Where(sq.Eq{"p.id": id})); err != nil {
		return store.Product{}, trapNoRowsErr(err, store.ErrProductNotFound, "getting product")
	}
	return row.product(), nil
}

func (repo storeRepository) QueryProducts(ctx context.Context, filter *store.ProductFilter) ([]store.Product, error) {
	q := repo.productQuery().OrderBy("p.name", "p.id")
	if filter != nil {
		if filter.CategoryID != 0 {
			q = q.Where(sq.Eq{"p.category_id": filter.CategoryID})
		}
		if filter.ActiveOnly {
			q = q.Where(sq.Eq{"p.active": true})
		}
	}
	var rows []productRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying products")
	}
	products := make([]store.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, r.product())
	}
	return products, nil
}

func (repo storeRepository) ReplaceVariants(ctx context.Context, productID int, variants []store.Variant, exec ...core.DBExecutor) ([]store.Variant, error) {
	ext := repo.getExec(exec)
	if _, err := repo.exec(ctx, ext, psql.Delete("product_variants").Where(sq.Eq{"product_id": productID})); err != nil {
		return nil, errors.Wrap(err, "deleting variants")
	}
	if len(variants) == 0 {
		return []store.Variant{}, nil
	}

	q := psql.Insert("product_variants").Columns("product_id", "name", "price", "stock", "active")
	for _, v := range variants {
		q = q.Values(productID, v.Name, v.Price, v.Stock, v.Active)
	}
	var rows []variantRow
	if err := repo.selectAll(ctx, ext, &rows, q.Suffix("RETURNING "+strings.Join(variantColumns, ", "))); err != nil {
		return nil, errors.Wrap(err, "inserting variants")
	}
	out := make([]store.Variant, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Variant(r))
	}
	return out, nil
}

func (repo storeRepository) QueryVariants(ctx context.Context, productID int, exec ...core.DBExecutor) ([]store.Variant, error) {
	var rows []variantRow
	q := psql.Select(variantColumns...).From("product_variants").Where(sq.Eq{"product_id": productID}).OrderBy("id")
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying variants")
	}
	variants := make([]store.Variant, 0, len(rows))
	for _, r := range rows {
		variants = append(variants, store.Variant(r))
	}
	return variants, nil
}

func (repo storeRepository) GetVariant(ctx context.Context, id int, exec ...core.DBExecutor) (store.Variant, error) {
	var row variantRow
	q := psql.Select(variantColumns...).From("product_variants").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return store.Variant{}, trapNoRowsErr(err, store.ErrVariantNotFound, "getting variant")
	}
	return store.Variant(row), nil
}

func (repo storeRepository) decrementStock(ctx context.Context, table string, id, qty int, exec []core.DBExecutor) (bool, error) {
	q := psql.Update(table).
		Set("stock", sq.Expr("stock - ?", qty)).
		Where(sq.Eq{"id": id}).
		Where(sq.GtOrEq{"stock": qty})
	res, err := repo.exec(ctx, repo.getExec(exec), q)
	if err != nil {
		return false, errors.Wrapf(err, "decrementing %s stock", table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "reading affected rows")
	}
	return n > 0, nil
}

func (repo storeRepository) DecrementProductStock(ctx context.Context, id, qty int, exec ...core.DBExecutor) (bool, error) {
	return repo.decrementStock(ctx, "products", id, qty, exec)
}

func (repo storeRepository) DecrementVariantStock(ctx context.Context, id, qty int, exec ...core.DBExecutor) (bool, error) {
	return repo.decrementStock(ctx, "product_variants", id, qty, exec)
}

// carts

func (repo storeRepository) GetOpenCart(ctx context.Context, userID int, exec ...core.DBExecutor) (store.Cart, error) {
	var row cartRow
	q := psql.Select(cartColumns...).
		From("carts").
		Where(sq.Eq{"user_id": userID, "status": store.CartOpen}).
		OrderBy("id DESC").
		Limit(1)
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return store.Cart{}, trapNoRowsErr(err, store.ErrCartNotFound, "getting open cart")
	}
	return row.cart(), nil
}

func (repo storeRepository) CreateCart(ctx context.Context, c store.Cart, exec ...core.DBExecutor) (store.Cart, error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	var row cartRow
	q := psql.Insert("carts").
		Columns("user_id", "status", "created_at", "updated_at").
		Values(c.UserID, c.Status, c.CreatedAt.UTC(), c.UpdatedAt.UTC()).
		Suffix("RETURNING " + strings.Join(cartColumns, ", "))
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return store.Cart{}, errors.Wrap(err, "inserting cart")
	}
	return row.cart(), nil
}

func (repo storeRepository) UpdateCart(ctx context.Context, c store.Cart, exec ...core.DBExecutor) (store.Cart, error) {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	var row cartRow
	q := psql.Update("carts").
		Set("status", c.Status).
		Set("updated_at", c.UpdatedAt.UTC()).
		Where(sq.Eq{"id": c.ID}).
		Suffix("RETURNING " + strings.Join(cartColumns, ", "))
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return store.Cart{}, trapNoRowsErr(err, store.ErrCartNotFound, "updating cart")
	}
	return row.cart(), nil
}

func (repo storeRepository) itemQuery() sq.SelectBuilder {
	return psql.Select(
		"i.id", "i.cart_id AS parent_id", "i.product_id", "i.variant_id", "i.option", "i.quantity", "i.unit_price",
		"p.name AS product_name",
	).
		From("cart_items i").
		Join("products p ON p.id = i.product_id")
}

func (repo storeRepository) AddCartItem(ctx context.Context, item store.CartItem, exec ...core.DBExecutor) (store.CartItem, error) {
	ext := repo.getExec(exec)

	var id int
	find := psql.Select("id").
		From("cart_items").
		Where(sq.Eq{"cart_id": item.CartID, "product_id": item.ProductID, "option": item.Option}).
		Where(sq.Expr("variant_id IS NOT DISTINCT FROM ?", ptrInt(item.VariantID))).
		Limit(1)
	err := repo.get(ctx, ext, &id, find)
	switch {
	case err == nil:
		upd := psql.Update("cart_items").
			Set("quantity", sq.Expr("quantity + ?", item.Quantity)).
			Set("unit_price", item.UnitPrice).
			Where(sq.Eq{"id": id})
		if _, err := repo.exec(ctx, ext, upd); err != nil {
			return store.CartItem{}, errors.Wrap(err, "updating cart item")
		}
	case errors.Cause(err) == sql.ErrNoRows:
		ins := psql.Insert("cart_items").
			Columns("cart_id", "product_id", "variant_id", "option", "quantity", "unit_price").
			Values(item.CartID, item.ProductID, ptrInt(item.VariantID), item.Option, item.Quantity, item.UnitPrice).
			Suffix("RETURNING id")
		if err := repo.get(ctx, ext, &id, ins); err != nil {
			return store.CartItem{}, errors.Wrap(err, "inserting cart item")
		}
	default:
		return store.CartItem{}, errors.Wrap(err, "finding cart item")
	}

	var row itemRow
	if err := repo.get(ctx, ext, &row, repo.itemQuery().Where(sq.Eq{"i.id": id})); err != nil {
		return store.CartItem{}, trapNoRowsErr(err, store.ErrCartItemNotFound, "getting cart item")
	}
	return row.cartItem(), nil
}

func (repo storeRepository) GetCartItem(ctx context.Context, id int) (store.CartItem, error) {
	var row itemRow
	if err := repo.get(ctx, repo.db, &row, repo.itemQuery().Where(sq.Eq{"i.id": id})); err != nil {
		return store.CartItem{}, trapNoRowsErr(err, store.ErrCartItemNotFound, "getting cart item")
	}
	return row.cartItem(), nil
}

func (repo storeRepository) DeleteCartItem(ctx context.Context, id int) error {
	if _, err := repo.exec(ctx, repo.db, psql.Delete("cart_items").Where(sq.Eq{"id": id})); err != nil {
		return errors.Wrap(err, "deleting cart item")
	}
	return nil
}

func (repo storeRepository) QueryCartItems(ctx context.Context, cartID int, exec ...core.DBExecutor) ([]store.CartItem, error) {
	var rows []itemRow
	q := repo.itemQuery().Where(sq.Eq{"i.cart_id": cartID}).OrderBy("i.id")
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying cart items")
	}
	items := make([]store.CartItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.cartItem())
	}
	return items, nil
}

// orders

func (repo storeRepository) orderQuery() sq.SelectBuilder {
	cols := append(prefixed("o", orderColumns), "NULLIF(TRIM(u.first_name || ' ' || u.last_name), '') AS user_name")
	return psql.Select(cols...).From("orders o").Join("users u ON u.id = o.user_id")
}

func (repo storeRepository) CreateOrder(ctx context.Context, o store.Order, exec ...core.DBExecutor) (store.Order, error) {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	var row orderRow
	q := psql.Insert("orders").
		Columns("user_id", "cart_id", "total", "status", "payment_reference", "created_at", "updated_at").
		Values(o.UserID, ptrInt(o.CartID), o.Total, o.Status, o.PaymentReference, o.CreatedAt.UTC(), o.UpdatedAt.UTC()).
		Suffix("RETURNING " + strings.Join(orderColumns, ", ") + ", NULL AS user_name")
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return store.Order{}, errors.Wrap(err, "inserting order")
	}
	return row.order(), nil
}

func (repo storeRepository) CreateOrderItem(ctx context.Context, item store.OrderItem, exec ...core.DBExecutor) (store.OrderItem, error) {
	var id int
	q := psql.Insert("order_items").
		Columns("order_id", "product_id", "variant_id", "option", "quantity", "unit_price").
		Values(item.OrderID, item.ProductID, ptrInt(item.VariantID), item.Option, item.Quantity, item.UnitPrice).
		Suffix("RETURNING id")
	if err := repo.get(ctx, repo.getExec(exec), &id, q); err != nil {
		return store.OrderItem{}, errors.Wrap(err, "inserting order item")
	}
	item.ID = id
	return item, nil
}

func (repo storeRepository) GetOrder(ctx context.Context, id int, exec ...core.DBExecutor) (store.Order, error) {
	var row orderRow
	if err := repo.get(ctx, repo.getExec(exec), &row, repo.orderQuery().Where(sq.Eq{"o.id": id})); err != nil {
		return store.Order{}, trapNoRowsErr(err, store.ErrOrderNotFound, "getting order")
	}
	return row.order(), nil
}

func (repo storeRepository) LockOrder(ctx context.Context, id int, exec ...core.DBExecutor) (store.Order, error) {
	var row orderRow
	q := repo.orderQuery().Where(sq.Eq{"o.id": id}).Suffix("FOR UPDATE OF o")
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return store.Order{}, trapNoRowsErr(err, store.ErrOrderNotFound, "locking order")
	}
	return row.order(), nil
}

func (repo storeRepository) UpdateOrder(ctx context.Context, o store.Order, exec ...core.DBExecutor) (store.Order, error) {
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}
	q := psql.Update("orders").
		Set("total", o.Total).
		Set("status", o.Status).
		Set("payment_reference", o.PaymentReference).
		Set("updated_at", o.UpdatedAt.UTC()).
		Where(sq.Eq{"id": o.ID})
	res, err := repo.exec(ctx, repo.getExec(exec), q)
	if err != nil {
		return store.Order{}, errors.Wrap(err, "updating order")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.Order{}, store.ErrOrderNotFound
	}
	updated, err := repo.GetOrder(ctx, o.ID, exec...)
	if err != nil {
		return store.Order{}, err
	}
	updated.Items = o.Items
	return updated, nil
}

func (repo storeRepository) QueryOrders(ctx context.Context, filter *store.OrderFilter) ([]store.Order, error) {
	q := repo.orderQuery().OrderBy("o.created_at DESC", "o.id DESC")
	if filter != nil {
		if filter.UserID != 0 {
			q = q.Where(sq.Eq{"o.user_id": filter.UserID})
		}
		if filter.Status != "" {
			q = q.Where(sq.Eq{"o.status": filter.Status})
		}
	}
	var rows []orderRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying orders")
	}
	orders := make([]store.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.order())
	}
	return orders, nil
}

func (repo storeRepository) QueryOrderItems(ctx context.Context, orderIDs []int) ([]store.OrderItem, error) {
	if len(orderIDs) == 0 {
		return []store.OrderItem{}, nil
	}
	var rows []itemRow
	q := psql.Select(
		"i.id", "i.order_id AS parent_id", "i.product_id", "i.variant_id", "i.option", "i.quantity", "i.unit_price",
		"p.name AS product_name",
	).
		From("order_items i").
		Join("products p ON p.id = i.product_id").
		Where(sq.Eq{"i.order_id": orderIDs}).
		OrderBy("i.order_id", "i.id")
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying order items")
	}
	items := make([]store.OrderItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.orderItem())
	}
	return items, nil
}
