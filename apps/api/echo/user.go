package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/enrollment"
	"github.com/pinhaljunior/aventureiros/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRoles = "sem permissão para atribuir estes perfis"

	// userAdminRoles may manage accounts
	userAdminRoles = []string{user.RoleDiretoria, user.RoleADM}
)

type userApi struct {
	conf       *core.Config
	svc        user.Service
	enrollment enrollment.Service
	validate   *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := userApi{
		conf:       opts.Conf,
		svc:        opts.UserSvc,
		enrollment: opts.EnrollmentSvc,
		validate:   opts.Validate,
	}

	// un-authed endpoints
	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)
	g.POST("/signup/staff", api.signupStaff)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, jwt)
	ag.POST("/switch-role", api.switchRole, jwt)
	ag.GET("/me", api.me, jwt, roleMiddleware(api.svc))

	ug := g.Group("/users", jwt, roleMiddleware(api.svc, userAdminRoles...))
	ug.GET("", api.query)
	ug.POST("", api.create)
	ug.GET("/roles", api.queryRoles)

	// detail endpoints
	dg := ug.Group("/:id", userObjectMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.POST("/activate", api.activate)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Whatsapp, data.Password)
	if err != nil {
		switch errors.Cause(err) {
		case user.ErrInvalidCredentials:
			return errInvalidCredentials
		case user.ErrInactive:
			return errAccountInactive
		case user.ErrTooManyAttempts:
			return errTooManyAttempts
		}
		return errors.Wrap(err, "authenticating")
	}
	return api.tokenResponse(ctx, usr, data.Role)
}

func (api *userApi) tokenResponse(ctx echo.Context, usr user.User, role string, origIat ...int64) error {
	claims := GetUserClaims(api.conf, usr, role, origIat...)
	token, err := GenerateToken(api.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:      token,
		Roles:      claims.Roles,
		ActiveRole: claims.ActiveRole,
		Redirect:   user.RedirectFor(claims.ActiveRole),
	})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) switchRole(ctx echo.Context) error {
	var data SwitchRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SwitchRoleRequest")
	}
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !usr.IsActive {
		return errAccountInactive
	}
	if !usr.HasRole(data.Role) {
		return errRoleUnavailable
	}
	return api.tokenResponse(ctx, usr, data.Role)
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	active := getActiveRole(ctx)
	return ctx.JSON(http.StatusOK, MeResponse{
		User:       usr,
		Roles:      user.AvailableRoles(usr),
		ActiveRole: active,
		Redirect:   user.RedirectFor(active),
	})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Whatsapp); !(err == nil || core.IsNotFound(err)) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "Se o número informado pertencer a uma conta ativa com e-mail cadastrado, " +
			"você receberá em instantes as instruções para redefinir sua senha.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Senha redefinida com sucesso."})
}

func (api *userApi) signupStaff(ctx echo.Context) error {
	var data user.StaffSignup
	if err := bindAndValidate(ctx, api.validate, &data, "StaffSignup"); err != nil {
		return err
	}

	usr, created, err := api.svc.SignupStaff(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up staff")
	}

	msg := "Cadastro atualizado."
	if !usr.IsActive {
		msg = "Cadastro recebido! Aguarde a ativação pela diretoria."
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, SignupResponse{User: usr, Created: created, Message: msg})
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := bindAndValidate(ctx, api.validate, &data, "NewUser"); err != nil {
		return err
	}
	if err := api.checkGrant(ctx, data.Role, data.ExtraRoles); err != nil {
		return err
	}

	usr, created, kids, err := api.enrollment.CreateUser(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	if kids == nil {
		kids = []child.Child{}
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, UserSaveResponse{User: usr, Created: created, Children: kids})
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()

	users, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := bindAndValidate(ctx, api.validate, &data, "UpdateUser"); err != nil {
		return err
	}
	if err := api.checkGrant(ctx, data.Role, data.ExtraRoles); err != nil {
		return err
	}

	usr, err := api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) activate(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	usr, activated, err := api.svc.Activate(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "activating user")
	}
	msg := "Usuário ativado."
	if !activated {
		msg = "Usuário já estava ativo."
	}
	return ctx.JSON(http.StatusOK, ActivateResponse{User: usr, Activated: activated, Message: msg})
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// checkGrant refuses roles above the ctxUser's own max role.
func (api *userApi) checkGrant(ctx echo.Context, role string, extras []string) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	granted := append([]string{role}, extras...)
	if user.MaxRolePriority(granted) > user.MaxRolePriority(user.AvailableRoles(ctxUsr)) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRoles})
	}
	return nil
}

func userObjectMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := paramID(ctx, "id")
			if err != nil {
				return err
			}
			usr, err := svc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding user by ID")
			}
			ctx.Set("object", usr)
			return next(ctx)
		}
	}
}

type (
	LoginRequest struct {
		Whatsapp string `json:"whatsapp_number" validate:"required"`
		Password string `json:"password" validate:"required"`
		Role     string `json:"role"`
	}

	LoginResponse struct {
		Token      string   `json:"token"`
		Roles      []string `json:"roles,omitempty"`
		ActiveRole string   `json:"active_role,omitempty"`
		Redirect   string   `json:"redirect,omitempty"`
	}

	SwitchRoleRequest struct {
		Role string `json:"role"`
	}

	MeResponse struct {
		User       user.User `json:"user"`
		Roles      []string  `json:"roles"`
		ActiveRole string    `json:"active_role"`
		Redirect   string    `json:"redirect"`
	}

	PasswordResetRequest struct {
		Whatsapp string `json:"whatsapp_number" validate:"required"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	SignupResponse struct {
		User    user.User `json:"user"`
		Created bool      `json:"created"`
		Message string    `json:"message"`
	}

	UserSaveResponse struct {
		User     user.User     `json:"user"`
		Created  bool          `json:"created"`
		Children []child.Child `json:"children"`
	}

	ActivateResponse struct {
		User      user.User `json:"user"`
		Activated bool      `json:"activated"`
		Message   string    `json:"message"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Whatsapp = user.NormalizeWhatsapp(lr.Whatsapp)
	lr.Role = core.CleanString(lr.Role)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Whatsapp = user.NormalizeWhatsapp(pr.Whatsapp)
	return validate.Struct(pr)
}
