package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/pinhaljunior/aventureiros/core"
)

type User struct {
	ID                int        `json:"id"`
	WhatsappNumber    string     `json:"whatsapp_number"`
	FinancialWhatsapp string     `json:"financial_whatsapp"`
	FinancialPhone    string     `json:"financial_phone"`
	Address           string     `json:"address"`
	Role              string     `json:"role"`
	ExtraRoles        []string   `json:"extra_roles"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	PhotoURL          string     `json:"photo_url"`
	IsStaff           bool       `json:"is_staff"`
	IsSuperuser       bool       `json:"is_superuser"`
	IsActive          bool       `json:"is_active"`
	PasswordHash      []byte     `json:"-"`
	DateJoined        time.Time  `json:"date_joined"` // UTC
	UpdatedAt         time.Time  `json:"updated_at"`  // UTC
	LastLogin         *time.Time `json:"last_login"`  // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DisplayName is the full name, or the whatsapp number for nameless users.
func (u User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.WhatsappNumber
}

func (u User) HasRole(role string) bool {
	return containsRole(AvailableRoles(u), role)
}

func (u User) IsAdmin() bool {
	return u.IsSuperuser || u.HasRole(RoleADM)
}

// NewUser contains information needed to create (or overwrite) a User from the admin screens.
type NewUser struct {
	WhatsappNumber string   `json:"whatsapp_number" validate:"required,whatsapp"`
	FirstName      string   `json:"first_name" validate:"max=150"`
	LastName       string   `json:"last_name" validate:"max=150"`
	Email          string   `json:"email" validate:"omitempty,email"`
	Role           string   `json:"role" validate:"required,role"`
	ExtraRoles     []string `json:"extra_roles" validate:"omitempty,roles"`
	Password       string   `json:"password" validate:"required"`
	// NewChildren holds one child per line, "Name;YYYY-MM-DD"; only used for guardians.
	NewChildren string `json:"new_children"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.WhatsappNumber = NormalizeWhatsapp(nu.WhatsappNumber)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FirstName  string   `json:"first_name" validate:"max=150"`
	LastName   string   `json:"last_name" validate:"max=150"`
	Email      string   `json:"email" validate:"omitempty,email"`
	Role       string   `json:"role" validate:"required,role"`
	ExtraRoles []string `json:"extra_roles" validate:"omitempty,roles"`
	Password   string   `json:"password"` // blank keeps the current password
	IsActive   *bool    `json:"is_active"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	uu.FirstName = core.CleanString(uu.FirstName)
	uu.LastName = core.CleanString(uu.LastName)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	return validate.Struct(uu)
}

// StaffSignup is the public sign up form of the club's board (diretoria) members.
type StaffSignup struct {
	FirstName       string   `json:"first_name" validate:"required,max=150"`
	LastName        string   `json:"last_name" validate:"max=150"`
	WhatsappNumber  string   `json:"whatsapp_number" validate:"required,whatsapp"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Address         string   `json:"address" validate:"max=255"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"required,min=1,roles"`
}

func (ss *StaffSignup) Validate(validate *validator.Validate) error {
	ss.FirstName = core.CleanString(ss.FirstName)
	ss.LastName = core.CleanString(ss.LastName)
	ss.WhatsappNumber = NormalizeWhatsapp(ss.WhatsappNumber)
	ss.Email = core.CleanString(ss.Email, true /* lower */)
	ss.Address = core.CleanString(ss.Address)
	return validate.Struct(ss)
}

// GuardianData holds the guardian part of the public sign up form.
type GuardianData struct {
	FirstName         string `json:"first_name" validate:"required,max=150"`
	LastName          string `json:"last_name" validate:"max=150"`
	WhatsappNumber    string `json:"whatsapp_number" validate:"required,whatsapp"`
	FinancialWhatsapp string `json:"financial_whatsapp" validate:"omitempty,whatsapp"`
	FinancialPhone    string `json:"financial_phone" validate:"max=20"`
	CPF               string `json:"cpf" validate:"required,cpf"`
	Address           string `json:"address" validate:"max=255"`
	Email             string `json:"email" validate:"omitempty,email"`
	Password          string `json:"password" validate:"required"`
	PasswordConfirm   string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (gd *GuardianData) Clean() {
	gd.FirstName = core.CleanString(gd.FirstName)
	gd.LastName = core.CleanString(gd.LastName)
	gd.WhatsappNumber = NormalizeWhatsapp(gd.WhatsappNumber)
	gd.FinancialWhatsapp = NormalizeWhatsapp(gd.FinancialWhatsapp)
	gd.FinancialPhone = core.CleanString(gd.FinancialPhone)
	gd.CPF = core.CleanString(gd.CPF)
	gd.Address = core.CleanString(gd.Address)
	gd.Email = core.CleanString(gd.Email, true /* lower */)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type GetFilter struct {
	ID       int
	Whatsapp string
	Email    string
}

type QueryFilter struct {
	Search   string   `query:"q"`
	Role     string   `query:"role"` // primary role
	IsActive *bool    `query:"is_active"`
	Roles    []string // any of these primary roles
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil && len(qf.Roles) == 0
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role)
}
