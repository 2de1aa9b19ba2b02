package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/audit"
	"github.com/pinhaljunior/aventureiros/core/user"
)

type auditApi struct {
	conf    *core.Config
	userSvc user.Service
	svc     audit.Service
}

func registerAuditAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := auditApi{conf: opts.Conf, userSvc: opts.UserSvc, svc: opts.AuditSvc}

	ag := g.Group("/audit/logs", jwt, roleMiddleware(api.userSvc, user.RoleADM))
	ag.GET("", api.list)
	ag.GET("/export", api.export)
}

func (api *auditApi) bindFilter(ctx echo.Context) (*audit.Filter, error) {
	filter := new(audit.Filter)
	if err := ctx.Bind(filter); err != nil {
		return nil, core.NewValidationError(errors.New("filtro inválido"))
	}
	filter.PathPrefix = core.CleanString(filter.PathPrefix)

	loc := api.conf.Finance.Location
	from, err := queryDate(ctx, "from", loc)
	if err != nil {
		return nil, err
	}
	to, err := queryDate(ctx, "to", loc)
	if err != nil {
		return nil, err
	}
	filter.From = from
	if !to.IsZero() {
		// inclusive of the whole day
		filter.To = to.AddDate(0, 0, 1)
	}
	return filter, nil
}

func (api *auditApi) list(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	logs, err := api.svc.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing audit logs")
	}
	if logs == nil {
		logs = []audit.Log{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *auditApi) export(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := api.svc.ExportCSV(ctx.Request().Context(), filter, &buf); err != nil {
		return errors.Wrap(err, "exporting audit logs")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "audit_logs.csv"))
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
