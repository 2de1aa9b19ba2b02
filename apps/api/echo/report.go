package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core/report"
	"github.com/pinhaljunior/aventureiros/core/user"
)

type reportApi struct {
	userSvc user.Service
	svc     report.Service
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := reportApi{userSvc: opts.UserSvc, svc: opts.ReportSvc}

	g.GET("/reports/director", api.director, jwt, roleMiddleware(api.userSvc, user.RoleDiretoria, user.RoleADM))
	g.GET("/dashboard", api.dashboard, jwt, roleMiddleware(api.userSvc))
	g.GET("/dashboard/:role", api.roleDashboard, jwt, roleMiddleware(api.userSvc))
	g.GET("/config", api.config, jwt, roleMiddleware(api.userSvc, user.RoleADM))
}

func (api *reportApi) director(ctx echo.Context) error {
	rep, err := api.svc.Director(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building director report")
	}
	return ctx.JSON(http.StatusOK, rep)
}

// dashboard is the dashboard of the active role.
func (api *reportApi) dashboard(ctx echo.Context) error {
	return api.renderDashboard(ctx, getActiveRole(ctx))
}

func (api *reportApi) roleDashboard(ctx echo.Context) error {
	return api.renderDashboard(ctx, strings.ToUpper(ctx.Param("role")))
}

func (api *reportApi) renderDashboard(ctx echo.Context, role string) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !usr.HasRole(role) {
		return errHttpForbidden
	}
	d, err := api.svc.Dashboard(ctx.Request().Context(), usr, role)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *reportApi) config(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Config())
}
