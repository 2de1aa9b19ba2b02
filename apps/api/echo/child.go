package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/enrollment"
	"github.com/pinhaljunior/aventureiros/core/report"
	"github.com/pinhaljunior/aventureiros/core/user"
)

var (
	errChildNotFoundInCtx = errors.New("child object not found in echo.Context")

	childStaffRoles  = []string{user.RoleDiretoria, user.RoleSecretaria, user.RoleTesoureiro, user.RoleProfessor, user.RoleADM}
	childEditorRoles = []string{user.RoleDiretoria, user.RoleSecretaria, user.RoleADM}
)

type childApi struct {
	userSvc    user.Service
	svc        child.Service
	enrollment enrollment.Service
	reports    report.Service
	validate   *validator.Validate
}

func registerChildAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := childApi{
		userSvc:    opts.UserSvc,
		svc:        opts.ChildSvc,
		enrollment: opts.EnrollmentSvc,
		reports:    opts.ReportSvc,
		validate:   opts.Validate,
	}

	// un-authed endpoints
	g.POST("/signup/guardian", api.signupGuardian)

	cg := g.Group("/children", jwt)
	cg.GET("", api.query, roleMiddleware(api.userSvc, childStaffRoles...))
	cg.POST("", api.create, roleMiddleware(api.userSvc, childEditorRoles...))

	// detail endpoints; guardians only see their own children
	dg := cg.Group("/:id", roleMiddleware(api.userSvc), childObjectMiddleware(api.svc, "id"))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, roleMiddleware(api.userSvc, childEditorRoles...))
	dg.GET("/health", api.health)
	dg.GET("/guardians", api.guardians, roleMiddleware(api.userSvc, childStaffRoles...))
	dg.GET("/overview", api.overview)

	lg := g.Group("/guardian-links", jwt, roleMiddleware(api.userSvc, childEditorRoles...))
	lg.GET("", api.queryLinks)
	lg.POST("", api.link)

	mg := g.Group("/my/children", jwt, roleMiddleware(api.userSvc, user.RoleResponsavel))
	mg.GET("", api.myChildren)
	mg.POST("", api.addChildren)
}

// Handlers

func (api *childApi) signupGuardian(ctx echo.Context) error {
	var data GuardianSignupRequest
	if err := bindPayload(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to GuardianSignupRequest")
	}
	data.Guardian.Clean()
	if err := api.validate.Struct(data.Guardian); err != nil {
		return err
	}
	if err := api.attachPhotos(ctx, data.Children); err != nil {
		return err
	}

	enr, err := api.enrollment.SignupGuardian(ctx.Request().Context(), data.Guardian, data.Children)
	if err != nil {
		return errors.Wrap(err, "signing up guardian")
	}
	code := http.StatusOK
	if enr.Created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, enr)
}

// attachPhotos reads the optional "children[<index>].photo" files of a multipart sign up.
func (api *childApi) attachPhotos(ctx echo.Context, payloads []child.Payload) error {
	for i := range payloads {
		photo, err := formUpload(ctx, fmt.Sprintf("children[%d].photo", i))
		if err != nil {
			return err
		}
		payloads[i].Photo = photo
	}
	return nil
}

func (api *childApi) query(ctx echo.Context) error {
	filter := new(child.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []child.Child{})
	}
	filter.Clean()
	filter.GuardianID, filter.IDs = 0, nil

	kids, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying children")
	}
	if kids == nil {
		kids = []child.Child{}
	}
	return ctx.JSON(http.StatusOK, kids)
}

func (api *childApi) create(ctx echo.Context) error {
	var data child.ChildForm
	if err := bindAndValidate(ctx, api.validate, &data, "ChildForm"); err != nil {
		return err
	}
	c, err := api.enrollment.CreateChild(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating child")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *childApi) retrieve(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *childApi) update(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	var data child.ChildForm
	if err := bindAndValidate(ctx, api.validate, &data, "ChildForm"); err != nil {
		return err
	}
	c, err := api.svc.Update(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating child")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *childApi) health(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	h, err := api.svc.Health(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "getting child health")
	}
	return ctx.JSON(http.StatusOK, h)
}

func (api *childApi) guardians(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	links, err := api.svc.Guardians(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying child guardians")
	}
	if links == nil {
		links = []child.GuardianLink{}
	}
	return ctx.JSON(http.StatusOK, links)
}

func (api *childApi) overview(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	var guardianID int
	if getActiveRole(ctx) == user.RoleResponsavel {
		guardianID = getClaimsUserID(ctx)
	}
	ov, err := api.reports.ChildOverview(ctx.Request().Context(), c.ID, guardianID)
	if err != nil {
		return errors.Wrap(err, "building child overview")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *childApi) queryLinks(ctx echo.Context) error {
	filter := new(child.LinkFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []child.GuardianLink{})
	}
	filter.Clean()
	filter.GuardianID, filter.ChildID = 0, 0

	links, err := api.svc.Links(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying guardian links")
	}
	if links == nil {
		links = []child.GuardianLink{}
	}
	return ctx.JSON(http.StatusOK, links)
}

func (api *childApi) link(ctx echo.Context) error {
	var data child.NewLink
	if err := bindAndValidate(ctx, api.validate, &data, "NewLink"); err != nil {
		return err
	}
	l, err := api.enrollment.LinkGuardian(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "linking guardian")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *childApi) myChildren(ctx echo.Context) error {
	kids, err := api.svc.GuardianChildren(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guardian children")
	}
	if kids == nil {
		kids = []child.Child{}
	}
	return ctx.JSON(http.StatusOK, kids)
}

func (api *childApi) addChildren(ctx echo.Context) error {
	var data AddChildrenRequest
	if err := bindPayload(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to AddChildrenRequest")
	}
	if err := api.attachPhotos(ctx, data.Children); err != nil {
		return err
	}

	guardian, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	kids, err := api.enrollment.AddChildren(ctx.Request().Context(), guardian, data.Children)
	if err != nil {
		return errors.Wrap(err, "adding children")
	}
	return ctx.JSON(http.StatusCreated, kids)
}

// childObjectMiddleware loads the child of path param `param`.
// Requests running as a guardian get a 404 for children they are not linked to.
func childObjectMiddleware(svc child.Service, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := paramID(ctx, param)
			if err != nil {
				return err
			}
			rctx := ctx.Request().Context()
			if getActiveRole(ctx) == user.RoleResponsavel {
				if err := svc.CheckGuardian(rctx, getClaimsUserID(ctx), id); err != nil {
					if errors.Cause(err) == core.ErrPermissionDenied {
						return errHttpNotFound
					}
					return errors.Wrap(err, "checking guardian")
				}
			}
			c, err := svc.Get(rctx, id)
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding child by ID")
			}
			ctx.Set("object", c)
			return next(ctx)
		}
	}
}

type (
	GuardianSignupRequest struct {
		Guardian user.GuardianData `json:"guardian"`
		Children []child.Payload   `json:"children"`
	}

	AddChildrenRequest struct {
		Children []child.Payload `json:"children"`
	}
)
