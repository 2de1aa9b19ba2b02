package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/user"
)

const childRecordsLimit = 50

var attendanceRoles = []string{user.RoleDiretoria, user.RoleSecretaria, user.RoleTesoureiro, user.RoleProfessor}

type attendanceApi struct {
	userSvc  user.Service
	children child.Service
	svc      attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := attendanceApi{
		userSvc:  opts.UserSvc,
		children: opts.ChildSvc,
		svc:      opts.AttendanceSvc,
		validate: opts.Validate,
	}

	sg := g.Group("/attendance/sessions", jwt, roleMiddleware(api.userSvc, attendanceRoles...))
	sg.GET("", api.sessions)
	sg.POST("", api.createSession)
	sg.GET("/:id/sheet", api.sheet)
	sg.POST("/:id/marks", api.mark)

	g.GET("/children/:id/attendance", api.childRecords, jwt,
		roleMiddleware(api.userSvc, attendanceRoles...), childObjectMiddleware(api.children, "id"))

	g.GET("/my/attendance", api.myRecords, jwt, roleMiddleware(api.userSvc, user.RoleResponsavel))
}

// Handlers

func (api *attendanceApi) sessions(ctx echo.Context) error {
	sessions, err := api.svc.Sessions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *attendanceApi) createSession(ctx echo.Context) error {
	var data attendance.SessionForm
	if err := bindAndValidate(ctx, api.validate, &data, "SessionForm"); err != nil {
		return err
	}
	s, err := api.svc.CreateSession(ctx.Request().Context(), data, getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *attendanceApi) sheet(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	sheet, err := api.svc.Sheet(ctx.Request().Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "building attendance sheet")
	}
	return ctx.JSON(http.StatusOK, sheet)
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data MarksRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarksRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	n, err := api.svc.Mark(ctx.Request().Context(), id, data.Marks, getClaimsUserID(ctx))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n, Message: "Presença registrada."})
}

func (api *attendanceApi) childRecords(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	recs, err := api.svc.ChildRecords(ctx.Request().Context(), c.ID, queryInt(ctx, "limit", childRecordsLimit))
	if err != nil {
		return errors.Wrap(err, "querying child attendance")
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) myRecords(ctx echo.Context) error {
	recs, err := api.svc.GuardianRecords(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guardian attendance")
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

type MarksRequest struct {
	Marks []attendance.Mark `json:"marks" validate:"dive"`
}
