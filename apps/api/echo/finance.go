package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/finance"
	"github.com/pinhaljunior/aventureiros/core/user"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var financeRoles = []string{user.RoleTesoureiro, user.RoleDiretoria}

type financeApi struct {
	conf     *core.Config
	userSvc  user.Service
	children child.Service
	svc      finance.Service
	validate *validator.Validate
}

func registerFinanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := financeApi{
		conf:     opts.Conf,
		userSvc:  opts.UserSvc,
		children: opts.ChildSvc,
		svc:      opts.FinanceSvc,
		validate: opts.Validate,
	}

	fg := g.Group("/fees", jwt, roleMiddleware(api.userSvc, financeRoles...))
	fg.GET("", api.query)
	fg.GET("/summary", api.summary)
	fg.GET("/export", api.export)
	fg.POST("/generate", api.generate, roleMiddleware(api.userSvc, user.RoleTesoureiro))
	fg.GET("/:id/payments", api.payments)

	// /children/:id and /my are grouped by the child API, so these routes carry their own middleware
	staff := roleMiddleware(api.userSvc, financeRoles...)
	childObj := childObjectMiddleware(api.children, "id")
	g.GET("/children/:id/fees", api.childFees, jwt, staff, childObj)
	g.POST("/children/:id/discount", api.discount, jwt, staff, childObj, roleMiddleware(api.userSvc, user.RoleTesoureiro))

	guardian := roleMiddleware(api.userSvc, user.RoleResponsavel)
	g.GET("/my/finances", api.myFinances, jwt, guardian)
	g.GET("/my/children/:child/fees/pay-all", api.childCheckout, jwt, guardian)
	g.POST("/my/children/:child/fees/pay-all", api.confirmChildFees, jwt, guardian)
	g.GET("/my/children/:child/fees/:fee/pay", api.feeCheckout, jwt, guardian)
	g.POST("/my/children/:child/fees/:fee/pay", api.confirmFee, jwt, guardian)
}

// Handlers

func (api *financeApi) query(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return ctx.JSON(http.StatusOK, []finance.Fee{})
	}
	fees, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying fees")
	}
	if fees == nil {
		fees = []finance.Fee{}
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *financeApi) bindFilter(ctx echo.Context) (*finance.QueryFilter, error) {
	filter := new(finance.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return nil, err
	}
	filter.Clean()
	filter.Statuses, filter.IDs, filter.OrderByRef = nil, nil, false
	return filter, nil
}

func (api *financeApi) summary(ctx echo.Context) error {
	sum, err := api.svc.Summary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "summarizing fees")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *financeApi) export(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		filter = new(finance.QueryFilter)
	}

	var buf bytes.Buffer
	if _, err := api.svc.Export(ctx.Request().Context(), filter, &buf); err != nil {
		return errors.Wrap(err, "exporting fees")
	}
	name := "mensalidades.xlsx"
	if filter.ReferenceMonth != "" {
		name = fmt.Sprintf("mensalidades-%s.xlsx", filter.ReferenceMonth)
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return ctx.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

func (api *financeApi) generate(ctx echo.Context) error {
	var data finance.GenerateForm
	if err := bindAndValidate(ctx, api.validate, &data, "GenerateForm"); err != nil {
		return err
	}
	n, err := api.svc.Generate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "generating fees")
	}
	return ctx.JSON(http.StatusOK, CountResponse{
		Count:   n,
		Message: fmt.Sprintf("%d mensalidade(s) gerada(s) para %s.", n, data.ReferenceMonth),
	})
}

func (api *financeApi) payments(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	pmts, err := api.svc.Payments(ctx.Request().Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "querying payments")
	}
	if pmts == nil {
		pmts = []finance.Payment{}
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *financeApi) childFees(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	fees, err := api.svc.ChildFees(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying child fees")
	}
	if fees == nil {
		fees = []finance.Fee{}
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *financeApi) discount(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	var data finance.DiscountForm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DiscountForm")
	}
	n, err := api.svc.ApplyDiscount(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "applying discount")
	}
	return ctx.JSON(http.StatusOK, CountResponse{
		Count:   n,
		Message: fmt.Sprintf("Desconto aplicado em %d mensalidade(s).", n),
	})
}

func (api *financeApi) myFinances(ctx echo.Context) error {
	fins, err := api.svc.GuardianFinances(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guardian finances")
	}
	if fins == nil {
		fins = []finance.ChildFinance{}
	}
	return ctx.JSON(http.StatusOK, fins)
}

func (api *financeApi) feeCheckout(ctx echo.Context) error {
	guardian, childID, feeID, err := api.guardianParams(ctx, true)
	if err != nil {
		return err
	}
	co, err := api.svc.FeeCheckout(ctx.Request().Context(), guardian, childID, feeID)
	if err != nil {
		return api.checkoutError(err, "creating fee checkout")
	}
	return ctx.JSON(http.StatusOK, co)
}

func (api *financeApi) confirmFee(ctx echo.Context) error {
	guardian, childID, feeID, err := api.guardianParams(ctx, true)
	if err != nil {
		return err
	}
	f, err := api.svc.ConfirmFee(ctx.Request().Context(), guardian, childID, feeID)
	if err != nil {
		return api.checkoutError(err, "confirming fee")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *financeApi) childCheckout(ctx echo.Context) error {
	guardian, childID, _, err := api.guardianParams(ctx, false)
	if err != nil {
		return err
	}
	co, err := api.svc.ChildCheckout(ctx.Request().Context(), guardian, childID)
	if err != nil {
		return api.checkoutError(err, "creating child checkout")
	}
	return ctx.JSON(http.StatusOK, co)
}

func (api *financeApi) confirmChildFees(ctx echo.Context) error {
	guardian, childID, _, err := api.guardianParams(ctx, false)
	if err != nil {
		return err
	}
	fees, err := api.svc.ConfirmChildFees(ctx.Request().Context(), guardian, childID)
	if err != nil {
		return api.checkoutError(err, "confirming child fees")
	}
	return ctx.JSON(http.StatusOK, fees)
}

func (api *financeApi) guardianParams(ctx echo.Context, withFee bool) (user.User, int, int, error) {
	childID, err := paramID(ctx, "child")
	if err != nil {
		return user.User{}, 0, 0, err
	}
	var feeID int
	if withFee {
		if feeID, err = paramID(ctx, "fee"); err != nil {
			return user.User{}, 0, 0, err
		}
	}
	guardian, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return user.User{}, 0, 0, errors.Wrap(err, "getting context user")
	}
	return guardian, childID, feeID, nil
}

// checkoutError hides other guardians' children and fees behind a 404.
func (api *financeApi) checkoutError(err error, msg string) error {
	if core.IsNotFound(err) || errors.Cause(err) == core.ErrPermissionDenied {
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}

type CountResponse struct {
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}
