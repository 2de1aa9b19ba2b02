package user

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user")
	ErrWhatsappExists     = errors.New("já existe um usuário com este WhatsApp")
	ErrInvalidCredentials = errors.New("número ou senha não conferem")
	ErrInactive           = errors.New("cadastro aguarda ativação pela diretoria/ADM")
	ErrTooManyAttempts    = errors.New("muitas tentativas de login, tente novamente mais tarde")

	NowFunc = time.Now // mockable

	maxLoginAttempts   = int64(5)
	loginAttemptsReset = 15 * time.Minute
)

// Signup kinds used in notifications.
const (
	SignupKindGuardian = "Responsável"
	SignupKindStaff    = "Diretoria"
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields, ordered by first name then whatsapp.
		// QueryFilter.Search does a case-insensitive match on one of first name, last name or whatsapp.
		QueryUsers(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		SetLastLogin(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, nu NewUser, exec ...core.DBExecutor) (User, bool, error)
		Query(ctx context.Context, filter *QueryFilter) ([]User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByWhatsapp(ctx context.Context, whatsapp string) (User, error)
		Update(ctx context.Context, id int, uu UpdateUser) (User, error)
		Activate(ctx context.Context, id int) (User, bool, error)
		Authenticate(ctx context.Context, whatsapp, pwd string) (User, error)
		SignupStaff(ctx context.Context, ss StaffSignup) (User, bool, error)
		SaveGuardian(ctx context.Context, gd GuardianData, exec ...core.DBExecutor) (User, bool, error)
		NotifySignup(ctx context.Context, notif SignupNotification)
		RequestPasswordReset(ctx context.Context, whatsapp string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	// SignupNotification is emailed to the board whenever somebody signs up.
	SignupNotification struct {
		Name              string
		Whatsapp          string
		Kind              string
		Children          []string
		PendingActivation bool
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		cache   core.Cache
		logger  core.Logger
		conf    *core.Config
		tokens  tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, cache core.Cache, logger core.Logger, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		cache:   cache,
		logger:  logger,
		conf:    conf,
		tokens:  newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

// Create updates or creates a User by whatsapp number; the bool reports a creation.
func (svc *service) Create(ctx context.Context, nu NewUser, exec ...core.DBExecutor) (User, bool, error) {
	now := NowFunc().UTC()
	usr, err := svc.repo.GetUser(ctx, GetFilter{Whatsapp: nu.WhatsappNumber}, exec...)
	created := false
	if err != nil {
		if !core.IsNotFound(err) {
			return User{}, false, errors.Wrap(err, "finding user by whatsapp")
		}
		created = true
		usr = User{
			WhatsappNumber: nu.WhatsappNumber,
			IsActive:       true,
			DateJoined:     now,
		}
	}

	usr.FirstName = nu.FirstName
	usr.LastName = nu.LastName
	if nu.Email != "" {
		usr.Email = nu.Email
	}
	usr.Role = nu.Role
	usr.ExtraRoles = extraRoles(nu.Role, nu.ExtraRoles)
	usr.IsStaff = isStaffRole(nu.Role) || usr.IsStaff
	usr.UpdatedAt = now
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, false, errors.Wrap(err, "setting password")
	}

	if created {
		usr, err = svc.repo.CreateUser(ctx, usr, exec...)
	} else {
		svc.forget(ctx, usr.ID)
		usr, err = svc.repo.UpdateUser(ctx, usr, exec...)
	}
	if err != nil {
		return User{}, false, errors.Wrap(err, "saving user")
	}
	return usr, created, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter)
}

// GetByID is the lookup done on every authenticated request, so it goes through the cache.
func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	key := cacheKey(id)
	if data, err := svc.cache.Get(ctx, key); err == nil {
		var cu cachedUser
		if err := json.Unmarshal(data, &cu); err == nil {
			return cu.user(), nil
		}
	} else if err != core.ErrCacheMiss {
		svc.logger.Warn(fmt.Sprintf("reading user %d from cache: %v", id, err), err)
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if data, err := json.Marshal(newCachedUser(usr)); err == nil {
		if err := svc.cache.Set(ctx, key, data, svc.conf.Redis.CacheTTL); err != nil {
			svc.logger.Warn(fmt.Sprintf("caching user %d: %v", id, err), err)
		}
	}
	return usr, nil
}

func (svc *service) GetByWhatsapp(ctx context.Context, whatsapp string) (User, error) {
	whatsapp = NormalizeWhatsapp(whatsapp)
	if whatsapp == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Whatsapp: whatsapp})
}

func (svc *service) Update(ctx context.Context, id int, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	usr.Email = uu.Email
	usr.Role = uu.Role
	usr.ExtraRoles = extraRoles(uu.Role, uu.ExtraRoles)
	usr.IsStaff = isStaffRole(uu.Role) || usr.IsSuperuser
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = NowFunc().UTC()

	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	svc.forget(ctx, id)
	return usr, nil
}

// Activate turns a pending sign up into an active account; the bool is false when already active.
func (svc *service) Activate(ctx context.Context, id int) (User, bool, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, false, err
	}
	if usr.IsActive {
		return usr, false, nil
	}
	usr.IsActive = true
	usr.UpdatedAt = NowFunc().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, false, errors.Wrap(err, "activating user")
	}
	svc.forget(ctx, id)
	return usr, true, nil
}

// Authenticate checks a whatsapp/password pair. Failed attempts are counted per number.
func (svc *service) Authenticate(ctx context.Context, whatsapp, pwd string) (User, error) {
	whatsapp = NormalizeWhatsapp(whatsapp)
	attemptsKey := "login:attempts:" + whatsapp

	attempts, err := svc.cache.Incr(ctx, attemptsKey, loginAttemptsReset)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("counting login attempts: %v", err), err)
	} else if attempts > maxLoginAttempts {
		return User{}, ErrTooManyAttempts
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{Whatsapp: whatsapp})
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by whatsapp")
	}
	if err := usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrInactive
	}

	_ = svc.cache.Delete(ctx, attemptsKey)
	now := NowFunc().UTC()
	if err := svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	usr.LastLogin = &now
	svc.forget(ctx, usr.ID)
	return usr, nil
}

// SignupStaff registers a board member. New accounts wait for activation; the bool reports a creation.
func (svc *service) SignupStaff(ctx context.Context, ss StaffSignup) (User, bool, error) {
	now := NowFunc().UTC()
	usr, err := svc.repo.GetUser(ctx, GetFilter{Whatsapp: ss.WhatsappNumber})
	created := false
	if err != nil {
		if !core.IsNotFound(err) {
			return User{}, false, errors.Wrap(err, "finding user by whatsapp")
		}
		created = true
		usr = User{WhatsappNumber: ss.WhatsappNumber, DateJoined: now}
	}

	usr.FirstName = ss.FirstName
	usr.LastName = ss.LastName
	usr.FinancialWhatsapp = ss.WhatsappNumber
	usr.FinancialPhone = ""
	usr.Email = ss.Email
	if ss.Address != "" {
		usr.Address = ss.Address
	}
	usr.Role = ss.Roles[0]
	usr.ExtraRoles = extraRoles(ss.Roles[0], ss.Roles[1:])
	usr.IsStaff = true
	usr.IsSuperuser = containsRole(ss.Roles, RoleADM)
	if created {
		usr.IsActive = false
	}
	usr.UpdatedAt = now
	if err := usr.SetPassword(ss.Password); err != nil {
		return User{}, false, errors.Wrap(err, "setting password")
	}

	if created {
		usr, err = svc.repo.CreateUser(ctx, usr)
	} else {
		svc.forget(ctx, usr.ID)
		usr, err = svc.repo.UpdateUser(ctx, usr)
	}
	if err != nil {
		return User{}, false, errors.Wrap(err, "saving staff user")
	}

	svc.NotifySignup(ctx, SignupNotification{
		Name:              usr.DisplayName(),
		Whatsapp:          usr.WhatsappNumber,
		Kind:              SignupKindStaff,
		PendingActivation: !usr.IsActive,
	})
	return usr, created, nil
}

// SaveGuardian updates or creates the guardian of a public sign up. Guardians may log in right away.
func (svc *service) SaveGuardian(ctx context.Context, gd GuardianData, exec ...core.DBExecutor) (User, bool, error) {
	now := NowFunc().UTC()
	usr, err := svc.repo.GetUser(ctx, GetFilter{Whatsapp: gd.WhatsappNumber}, exec...)
	created := false
	if err != nil {
		if !core.IsNotFound(err) {
			return User{}, false, errors.Wrap(err, "finding user by whatsapp")
		}
		created = true
		usr = User{WhatsappNumber: gd.WhatsappNumber, IsActive: true, DateJoined: now}
	}

	usr.FirstName = gd.FirstName
	usr.LastName = gd.LastName
	usr.FinancialWhatsapp = gd.FinancialWhatsapp
	if usr.FinancialWhatsapp == "" {
		usr.FinancialWhatsapp = gd.WhatsappNumber
	}
	usr.FinancialPhone = gd.FinancialPhone
	usr.Address = gd.Address
	usr.Email = gd.Email
	usr.Role = RoleResponsavel
	usr.ExtraRoles = extraRoles(RoleResponsavel, usr.ExtraRoles)
	usr.UpdatedAt = now
	if err := usr.SetPassword(gd.Password); err != nil {
		return User{}, false, errors.Wrap(err, "setting password")
	}

	if created {
		usr, err = svc.repo.CreateUser(ctx, usr, exec...)
	} else {
		svc.forget(ctx, usr.ID)
		usr, err = svc.repo.UpdateUser(ctx, usr, exec...)
	}
	if err != nil {
		return User{}, false, errors.Wrap(err, "saving guardian")
	}
	return usr, created, nil
}

// NotifySignup emails every board member (DIRETORIA and ADM) that has an email address.
func (svc *service) NotifySignup(ctx context.Context, notif SignupNotification) {
	board, err := svc.repo.QueryUsers(ctx, &QueryFilter{Roles: []string{RoleDiretoria, RoleADM}})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding board members: %v", err), err)
		return
	}

	to := make([]mail.Address, 0, len(board))
	for _, usr := range board {
		if usr.Email != "" && usr.IsActive {
			to = append(to, mail.Address{Name: usr.FullName(), Address: usr.Email})
		}
	}
	if len(to) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Novo cadastro: " + notif.Name,
		TemplateName: "signup_notification",
		TemplateData: notif,
	})
}

func (svc *service) RequestPasswordReset(ctx context.Context, whatsapp string) error {
	usr, err := svc.GetByWhatsapp(ctx, whatsapp)
	if err != nil {
		return err
	}
	if usr.IsActive && usr.Email != "" {
		svc.sendPasswordResetMail(usr)
	}
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Redefinição de senha",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"UID":      EncodeUID(usr),
			"Token":    svc.tokens.makeToken(usr),
			"Whatsapp": usr.WhatsappNumber,
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errors.New("link de redefinição inválido ou expirado"))

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if core.IsNotFound(err) {
			return invalidErr
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err := svc.tokens.verifyToken(usr, data.Token); err != nil {
		return invalidErr
	}

	if err := usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	svc.forget(ctx, id)
	return nil
}

func (svc *service) forget(ctx context.Context, id int) {
	if err := svc.cache.Delete(ctx, cacheKey(id)); err != nil {
		svc.logger.Warn(fmt.Sprintf("evicting user %d from cache: %v", id, err), err)
	}
}

func cacheKey(id int) string {
	return "user:" + strconv.Itoa(id) + ":data"
}

// cachedUser keeps the password hash, which User never serializes.
type cachedUser struct {
	User
	PasswordHash []byte `json:"password_hash"`
}

func newCachedUser(usr User) cachedUser {
	return cachedUser{User: usr, PasswordHash: usr.PasswordHash}
}

func (cu cachedUser) user() User {
	usr := cu.User
	usr.PasswordHash = cu.PasswordHash
	return usr
}

// extraRoles drops the primary role and unknown roles from extras.
func extraRoles(primary string, extras []string) []string {
	roles := make([]string, 0, len(extras))
	for _, r := range extras {
		if r != primary && IsValidRole(r) && !containsRole(roles, r) {
			roles = append(roles, r)
		}
	}
	return roles
}

func isStaffRole(role string) bool {
	return role != RoleResponsavel && IsValidRole(role)
}
