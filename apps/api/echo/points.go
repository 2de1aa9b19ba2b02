package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/points"
	"github.com/pinhaljunior/aventureiros/core/user"
)

var pointsRoles = []string{user.RoleDiretoria, user.RoleSecretaria, user.RoleTesoureiro, user.RoleProfessor, user.RoleADM}

type pointsApi struct {
	userSvc  user.Service
	children child.Service
	svc      points.Service
	validate *validator.Validate
}

func registerPointsAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := pointsApi{
		userSvc:  opts.UserSvc,
		children: opts.ChildSvc,
		svc:      opts.PointsSvc,
		validate: opts.Validate,
	}

	pg := g.Group("/points", jwt, roleMiddleware(api.userSvc, pointsRoles...))
	pg.GET("", api.recent)
	pg.POST("", api.add)
	pg.POST("/batch", api.addBatch)
	pg.GET("/extract", api.extract)

	g.GET("/children/:id/points", api.statement, jwt,
		roleMiddleware(api.userSvc, pointsRoles...), childObjectMiddleware(api.children, "id"))

	g.GET("/my/points", api.myStatements, jwt, roleMiddleware(api.userSvc, user.RoleResponsavel))
}

// Handlers

func (api *pointsApi) recent(ctx echo.Context) error {
	entries, err := api.svc.Recent(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying recent points")
	}
	if entries == nil {
		entries = []points.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *pointsApi) add(ctx echo.Context) error {
	var data points.EntryForm
	if err := bindAndValidate(ctx, api.validate, &data, "EntryForm"); err != nil {
		return err
	}
	e, err := api.svc.Add(ctx.Request().Context(), data, getClaimsUserID(ctx))
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("child_id", "aventureiro não encontrado")
		}
		return errors.Wrap(err, "adding points")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *pointsApi) addBatch(ctx echo.Context) error {
	var data points.BatchForm
	if err := bindAndValidate(ctx, api.validate, &data, "BatchForm"); err != nil {
		return err
	}
	n, err := api.svc.AddBatch(ctx.Request().Context(), data, getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "adding batch points")
	}
	return ctx.JSON(http.StatusOK, CountResponse{
		Count:   n,
		Message: fmt.Sprintf("Pontos lançados para %d aventureiro(s).", n),
	})
}

func (api *pointsApi) extract(ctx echo.Context) error {
	filter := new(points.Filter)
	if err := ctx.Bind(filter); err != nil {
		return core.NewValidationError(errors.New("filtro inválido"))
	}
	filter.ClassGroup = core.CleanString(filter.ClassGroup)
	filter.ChildIDs, filter.GuardianID, filter.Limit = nil, 0, 0

	ext, err := api.svc.Extract(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "extracting points")
	}
	return ctx.JSON(http.StatusOK, ext)
}

func (api *pointsApi) statement(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	st, err := api.svc.Statement(ctx.Request().Context(), c.ID, queryInt(ctx, "limit", 0))
	if err != nil {
		return errors.Wrap(err, "building points statement")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *pointsApi) myStatements(ctx echo.Context) error {
	sts, err := api.svc.GuardianStatements(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guardian points")
	}
	if sts == nil {
		sts = []points.Statement{}
	}
	return ctx.JSON(http.StatusOK, sts)
}
