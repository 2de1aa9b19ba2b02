package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/curriculum"
	"github.com/pinhaljunior/aventureiros/core/user"
)

var (
	errContentNotFoundInCtx = errors.New("content item not found in echo.Context")

	curriculumViewRoles = []string{user.RoleDiretoria, user.RoleProfessor}
)

type curriculumApi struct {
	userSvc  user.Service
	children child.Service
	svc      curriculum.Service
	validate *validator.Validate
}

func registerCurriculumAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := curriculumApi{
		userSvc:  opts.UserSvc,
		children: opts.ChildSvc,
		svc:      opts.CurriculumSvc,
		validate: opts.Validate,
	}

	cg := g.Group("/curriculum", jwt, roleMiddleware(api.userSvc, curriculumViewRoles...))
	cg.GET("/contents", api.contents)
	cg.POST("/contents", api.createContent)
	cg.GET("/contents/:id", api.retrieveContent, contentObjectMiddleware(api.svc))
	cg.PUT("/contents/:id", api.updateContent, contentObjectMiddleware(api.svc))
	cg.GET("/schedules", api.schedules)
	cg.POST("/schedules", api.createSchedule)
	cg.GET("/sheet", api.sheet)
	cg.POST("/progress", api.mark, roleMiddleware(api.userSvc, user.RoleProfessor))

	g.GET("/children/:id/progress", api.childProgress, jwt,
		roleMiddleware(api.userSvc, curriculumViewRoles...), childObjectMiddleware(api.children, "id"))

	g.GET("/my/progress", api.myProgress, jwt, roleMiddleware(api.userSvc, user.RoleResponsavel))
}

// Handlers

func (api *curriculumApi) contents(ctx echo.Context) error {
	filter := new(curriculum.ContentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []curriculum.ContentItem{})
	}
	items, err := api.svc.Contents(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying content items")
	}
	if items == nil {
		items = []curriculum.ContentItem{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *curriculumApi) createContent(ctx echo.Context) error {
	var data curriculum.ContentForm
	if err := bindAndValidate(ctx, api.validate, &data, "ContentForm"); err != nil {
		return err
	}
	item, err := api.svc.CreateContent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating content item")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *curriculumApi) retrieveContent(ctx echo.Context) error {
	item, ok := ctx.Get("object").(curriculum.ContentItem)
	if !ok {
		return errors.Wrap(errContentNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *curriculumApi) updateContent(ctx echo.Context) error {
	item, ok := ctx.Get("object").(curriculum.ContentItem)
	if !ok {
		return errors.Wrap(errContentNotFoundInCtx, "retrieving object from context")
	}
	var data curriculum.ContentForm
	if err := bindAndValidate(ctx, api.validate, &data, "ContentForm"); err != nil {
		return err
	}
	item, err := api.svc.UpdateContent(ctx.Request().Context(), item.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating content item")
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *curriculumApi) schedules(ctx echo.Context) error {
	filter := new(curriculum.ScheduleFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []curriculum.ClassSchedule{})
	}
	filter.ClassGroup = core.CleanString(filter.ClassGroup)

	scheds, err := api.svc.Schedules(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying schedules")
	}
	if scheds == nil {
		scheds = []curriculum.ClassSchedule{}
	}
	return ctx.JSON(http.StatusOK, scheds)
}

func (api *curriculumApi) createSchedule(ctx echo.Context) error {
	var data curriculum.ScheduleForm
	if err := bindAndValidate(ctx, api.validate, &data, "ScheduleForm"); err != nil {
		return err
	}
	s, err := api.svc.CreateSchedule(ctx.Request().Context(), data, getClaimsUserID(ctx))
	if err != nil {
		if errors.Cause(err) == curriculum.ErrNotFound {
			return core.NewFieldError("content_item_id", "conteúdo não encontrado")
		}
		return errors.Wrap(err, "creating schedule")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *curriculumApi) sheet(ctx echo.Context) error {
	classGroup := core.CleanString(ctx.QueryParam("class_group"))
	contentID := queryInt(ctx, "content_id", 0)
	if !child.IsClassGroup(classGroup) {
		return core.NewFieldError("class_group", "turma inválida")
	}
	sheet, err := api.svc.Sheet(ctx.Request().Context(), classGroup, contentID)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "building progress sheet")
	}
	return ctx.JSON(http.StatusOK, sheet)
}

func (api *curriculumApi) mark(ctx echo.Context) error {
	var data curriculum.ProgressForm
	if err := bindAndValidate(ctx, api.validate, &data, "ProgressForm"); err != nil {
		return err
	}
	n, err := api.svc.Mark(ctx.Request().Context(), data, getClaimsUserID(ctx))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "marking progress")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n, Message: "Progresso registrado."})
}

func (api *curriculumApi) childProgress(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	prog, err := api.svc.ChildProgress(ctx.Request().Context(), c.ID, queryInt(ctx, "limit", 0))
	if err != nil {
		return errors.Wrap(err, "querying child progress")
	}
	if prog == nil {
		prog = []curriculum.ChildProgress{}
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *curriculumApi) myProgress(ctx echo.Context) error {
	sheets, err := api.svc.GuardianProgress(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guardian progress")
	}
	if sheets == nil {
		sheets = []curriculum.ChildSheet{}
	}
	return ctx.JSON(http.StatusOK, sheets)
}

func contentObjectMiddleware(svc curriculum.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := paramID(ctx, "id")
			if err != nil {
				return err
			}
			item, err := svc.Content(ctx.Request().Context(), id)
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding content item by ID")
			}
			ctx.Set("object", item)
			return next(ctx)
		}
	}
}
