package store

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/payment"
)

// Cart statuses
const (
	CartOpen       = "OPEN"
	CartCheckedOut = "CHECKED_OUT"
	CartCancelled  = "CANCELLED"
)

// Order statuses
const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderCancelled = "CANCELLED"
)

type Category struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type Product struct {
	ID          int             `json:"id"`
	CategoryID  *int            `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Options     string          `json:"options"` // comma separated
	ImageURL    string          `json:"image_url"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`

	// read only
	CategoryName string    `json:"category_name,omitempty"`
	Variants     []Variant `json:"variants,omitempty"`
}

// OptionList splits the comma separated options, dropping blanks.
func (p Product) OptionList() []string {
	var opts []string
	for _, o := range strings.Split(p.Options, ",") {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	return opts
}

type Variant struct {
	ID        int             `json:"id"`
	ProductID int             `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Active    bool            `json:"active"`
}

type Cart struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// read only
	Items []CartItem      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type CartItem struct {
	ID        int             `json:"id"`
	CartID    int             `json:"cart_id"`
	ProductID int             `json:"product_id"`
	VariantID *int            `json:"variant_id"`
	Option    string          `json:"option"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`

	// read only
	ProductName string `json:"product_name,omitempty"`
}

func (ci CartItem) Subtotal() decimal.Decimal {
	return ci.UnitPrice.Mul(decimal.NewFromInt(int64(ci.Quantity)))
}

type Order struct {
	ID               int             `json:"id"`
	UserID           int             `json:"user_id"`
	CartID           *int            `json:"cart_id"`
	Total            decimal.Decimal `json:"total"`
	Status           string          `json:"status"`
	PaymentReference string          `json:"payment_reference"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// read only
	Items    []OrderItem `json:"items"`
	UserName string      `json:"user_name,omitempty"`
}

type OrderItem struct {
	ID        int             `json:"id"`
	OrderID   int             `json:"order_id"`
	ProductID int             `json:"product_id"`
	VariantID *int            `json:"variant_id"`
	Option    string          `json:"option"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`

	// read only
	ProductName string `json:"product_name,omitempty"`
}

// OrderPayment is what a buyer needs to pay an order by PIX.
type OrderPayment struct {
	Order     Order           `json:"order"`
	Reference string          `json:"reference"`
	PixCode   string          `json:"pix_code"`
	Charge    *payment.Charge `json:"charge,omitempty"`
}

type AddItem struct {
	ProductID int    `json:"-"`
	VariantID int    `json:"variant_id"`
	Option    string `json:"option" validate:"max=100"`
	Quantity  int    `json:"quantity"`
}

func (ai *AddItem) Validate(validate *validator.Validate) error {
	ai.Option = core.CleanString(ai.Option)
	if ai.Quantity < 1 {
		ai.Quantity = 1
	}
	return validate.Struct(ai)
}

type VariantForm struct {
	Name  string          `json:"name" validate:"required,max=100"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock" validate:"min=0"`
}

type ProductForm struct {
	CategoryID  *int            `json:"category_id"`
	Name        string          `json:"name" validate:"required,max=150"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"min=0"`
	Options     string          `json:"options"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	Active      *bool           `json:"active"`

	// Variants, when given, replace the product variants.
	Variants []VariantForm `json:"variants" validate:"dive"`
	Image    *core.Upload  `json:"-"`
}

func (pf *ProductForm) Validate(validate *validator.Validate) error {
	pf.Name = core.CleanString(pf.Name)
	pf.Description = core.CleanString(pf.Description)
	pf.Options = core.CleanString(pf.Options)
	for i := range pf.Variants {
		pf.Variants[i].Name = core.CleanString(pf.Variants[i].Name)
	}
	if err := validate.Struct(pf); err != nil {
		return err
	}
	if pf.Price.IsNegative() {
		return core.NewFieldError("price", "o preço não pode ser negativo")
	}
	for _, v := range pf.Variants {
		if v.Price.IsNegative() {
			return core.NewFieldError("variants", "o preço não pode ser negativo")
		}
	}
	return nil
}

func (pf ProductForm) apply(p *Product) {
	p.CategoryID = pf.CategoryID
	p.Name = pf.Name
	p.Description = pf.Description
	p.Price = pf.Price.Round(2)
	p.Stock = pf.Stock
	p.Options = pf.Options
	if pf.ImageURL != "" {
		p.ImageURL = pf.ImageURL
	}
	if pf.Active != nil {
		p.Active = *pf.Active
	}
	// product stock and price follow the variants
	if len(pf.Variants) > 0 {
		p.Stock = 0
		for _, v := range pf.Variants {
			p.Stock += v.Stock
		}
		p.Price = pf.Variants[0].Price.Round(2)
	}
}

type CategoryForm struct {
	Name   string `json:"name" validate:"required,max=100"`
	Active *bool  `json:"active"`
}

func (cf *CategoryForm) Validate(validate *validator.Validate) error {
	cf.Name = core.CleanString(cf.Name)
	return validate.Struct(cf)
}

type OrderStatusForm struct {
	Status string `json:"status" validate:"required,oneof=PENDING PAID CANCELLED"`
}

type ProductFilter struct {
	CategoryID int `query:"category"`
	ActiveOnly bool
}

type OrderFilter struct {
	UserID int
	Status string `query:"status"`
}
