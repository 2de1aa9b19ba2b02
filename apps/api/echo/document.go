package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/document"
	"github.com/pinhaljunior/aventureiros/core/user"
)

const uploadFileField = "file"

var (
	errFileRequired = core.NewFieldError(uploadFileField, "Selecione um arquivo.")

	documentRoles = []string{user.RoleSecretaria, user.RoleDiretoria}
)

type documentApi struct {
	userSvc  user.Service
	children child.Service
	svc      document.Service
	validate *validator.Validate
}

func registerDocumentAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := documentApi{
		userSvc:  opts.UserSvc,
		children: opts.ChildSvc,
		svc:      opts.DocumentSvc,
		validate: opts.Validate,
	}

	dg := g.Group("/documents", jwt, roleMiddleware(api.userSvc, documentRoles...))
	dg.GET("", api.overview)
	dg.GET("/types", api.types)
	dg.POST("/types", api.createType)
	dg.PUT("/types/:id", api.updateType)

	cg := g.Group("/children/:id/documents", jwt, roleMiddleware(api.userSvc, documentRoles...), childObjectMiddleware(api.children, "id"))
	cg.GET("", api.childDocuments)
	cg.GET("/recent", api.recent)
	cg.PUT("/:doc", api.updateStatus)
	cg.POST("/:doc/files", api.upload)
	cg.GET("/:doc/files", api.files)
	cg.POST("/requests/:type", api.request)

	g.GET("/my/documents", api.myDocuments, jwt, roleMiddleware(api.userSvc, user.RoleResponsavel))
}

// Handlers

func (api *documentApi) overview(ctx echo.Context) error {
	ov, err := api.svc.Overview(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building documents overview")
	}
	return ctx.JSON(http.StatusOK, ov)
}

func (api *documentApi) types(ctx echo.Context) error {
	activeOnly := ctx.QueryParam("active") == "true"
	types, err := api.svc.Types(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "querying document types")
	}
	if types == nil {
		types = []document.Type{}
	}
	return ctx.JSON(http.StatusOK, types)
}

func (api *documentApi) createType(ctx echo.Context) error {
	var data document.TypeForm
	if err := bindAndValidate(ctx, api.validate, &data, "TypeForm"); err != nil {
		return err
	}
	t, err := api.svc.CreateType(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating document type")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *documentApi) updateType(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data document.TypeForm
	if err := bindAndValidate(ctx, api.validate, &data, "TypeForm"); err != nil {
		return err
	}
	t, err := api.svc.UpdateType(ctx.Request().Context(), id, data)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating document type")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *documentApi) childDocuments(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	docs, err := api.svc.ChildDocuments(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying child documents")
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *documentApi) recent(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	docs, err := api.svc.Recent(ctx.Request().Context(), c.ID, queryInt(ctx, "limit", 5))
	if err != nil {
		return errors.Wrap(err, "querying recent documents")
	}
	if docs == nil {
		docs = []document.Document{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *documentApi) updateStatus(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	docID, err := paramID(ctx, "doc")
	if err != nil {
		return err
	}
	var data document.StatusForm
	if err := bindAndValidate(ctx, api.validate, &data, "StatusForm"); err != nil {
		return err
	}
	d, err := api.svc.UpdateStatus(ctx.Request().Context(), c.ID, docID, data, getClaimsUserID(ctx))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating document status")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *documentApi) upload(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	docID, err := paramID(ctx, "doc")
	if err != nil {
		return err
	}
	upload, err := formUpload(ctx, uploadFileField)
	if err != nil {
		return err
	}
	if upload == nil {
		return errFileRequired
	}

	f, err := api.svc.Upload(ctx.Request().Context(), c.ID, docID, *upload, getClaimsUserID(ctx))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "uploading document file")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *documentApi) files(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	docID, err := paramID(ctx, "doc")
	if err != nil {
		return err
	}
	files, err := api.svc.Files(ctx.Request().Context(), c.ID, docID)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "querying document files")
	}
	if files == nil {
		files = []document.File{}
	}
	return ctx.JSON(http.StatusOK, files)
}

func (api *documentApi) request(ctx echo.Context) error {
	c, ok := ctx.Get("object").(child.Child)
	if !ok {
		return errors.Wrap(errChildNotFoundInCtx, "retrieving object from context")
	}
	typeID, err := paramID(ctx, "type")
	if err != nil {
		return err
	}
	req, err := api.svc.RequestDocument(ctx.Request().Context(), c.ID, typeID, getClaimsUserID(ctx))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "requesting document")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *documentApi) myDocuments(ctx echo.Context) error {
	docs, err := api.svc.GuardianDocuments(ctx.Request().Context(), getClaimsUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying guardian documents")
	}
	if docs == nil {
		docs = []document.ChildDocuments{}
	}
	return ctx.JSON(http.StatusOK, docs)
}
