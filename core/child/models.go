package child

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
)

// Class groups, by age.
const (
	ClassAbelhinhas   = "Abelhinhas Laboriosas"
	ClassLuminares    = "Luminares"
	ClassEdificadores = "Edificadores"
	ClassMaos         = "Mãos Ajudadoras"
)

// Guardian relationships.
const (
	RelParent      = "Pai/Mãe"
	RelGuardian    = "Responsável"
	RelGrandparent = "Avô/Avó"
	RelUncle       = "Tio/Tia"
	RelSibling     = "Irmão/Irmã"
)

var (
	ClassGroups   = []string{ClassAbelhinhas, ClassLuminares, ClassEdificadores, ClassMaos}
	Relationships = []string{RelParent, RelGuardian, RelGrandparent, RelUncle, RelSibling}

	classByAge = map[int]string{
		6: ClassAbelhinhas,
		7: ClassLuminares,
		8: ClassEdificadores,
		9: ClassMaos,
	}
)

// ClassGroupFor returns the class group of a child born on `birth`, or "" outside of the club's ages.
func ClassGroupFor(birth, today core.Date) string {
	return classByAge[core.AgeOn(birth, today)]
}

func IsClassGroup(s string) bool {
	for _, cg := range ClassGroups {
		if cg == s {
			return true
		}
	}
	return false
}

type Child struct {
	ID                     int             `json:"id"`
	Name                   string          `json:"name"`
	BirthDate              core.Date       `json:"birth_date"`
	ClassGroup             string          `json:"class_group"`
	Active                 bool            `json:"active"`
	FeeDiscountPercent     decimal.Decimal `json:"fee_discount_percent"`
	FeeDiscountAmount      decimal.Decimal `json:"fee_discount_amount"`
	Gender                 string          `json:"gender"`
	CPF                    string          `json:"cpf"`
	BirthCertificateNumber string          `json:"birth_certificate_number"`
	FatherName             string          `json:"father_name"`
	FatherCPF              string          `json:"father_cpf"`
	FatherPhone            string          `json:"father_phone"`
	FatherAbsent           bool            `json:"father_absent"`
	MotherName             string          `json:"mother_name"`
	MotherCPF              string          `json:"mother_cpf"`
	MotherPhone            string          `json:"mother_phone"`
	MotherAbsent           bool            `json:"mother_absent"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// clearAbsentParents blanks the data of a parent marked as absent.
func (c *Child) clearAbsentParents() {
	if c.FatherAbsent {
		c.FatherName, c.FatherCPF, c.FatherPhone = "", "", ""
	}
	if c.MotherAbsent {
		c.MotherName, c.MotherCPF, c.MotherPhone = "", "", ""
	}
}

type GuardianLink struct {
	ID           int    `json:"id"`
	GuardianID   int    `json:"guardian_id"`
	ChildID      int    `json:"child_id"`
	Relationship string `json:"relationship"`

	// read only
	ChildName         string `json:"child_name,omitempty"`
	GuardianName      string `json:"guardian_name,omitempty"`
	GuardianWhatsapp  string `json:"guardian_whatsapp,omitempty"`
	GuardianEmail     string `json:"guardian_email,omitempty"`
	FinancialWhatsapp string `json:"financial_whatsapp,omitempty"`
}

type Health struct {
	ChildID          int    `json:"child_id"`
	Allergies        string `json:"allergies"`
	Medications      string `json:"medications"`
	Restrictions     string `json:"restrictions"`
	Observations     string `json:"observations"`
	EmergencyContact string `json:"emergency_contact"`
	EmergencyPhone   string `json:"emergency_phone"`
	HealthPlan       string `json:"health_plan"`
	AuthActivity     bool   `json:"auth_activity"`
	AuthMedical      bool   `json:"auth_medical"`
	AuthRules        bool   `json:"auth_rules"`
}

type Face struct {
	ID        int       `json:"id"`
	ChildID   int       `json:"child_id"`
	ImageURL  string    `json:"image_url"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ChildForm is the staff form to create or edit a child.
type ChildForm struct {
	Name               string          `json:"name" validate:"required,max=150"`
	BirthDate          core.Date       `json:"birth_date"`
	ClassGroup         string          `json:"class_group" validate:"omitempty,classgroup"`
	Active             *bool           `json:"active"`
	FeeDiscountPercent decimal.Decimal `json:"fee_discount_percent"`
	FeeDiscountAmount  decimal.Decimal `json:"fee_discount_amount"`
}

func (cf *ChildForm) Validate(validate *validator.Validate) error {
	cf.Name = core.CleanString(cf.Name)
	cf.ClassGroup = core.CleanString(cf.ClassGroup)
	if err := validate.Struct(cf); err != nil {
		return err
	}

	var flds []core.FieldError
	if cf.BirthDate.IsZero() {
		flds = append(flds, core.FieldError{Field: "birth_date", Error: "este campo é obrigatório"})
	}
	if cf.FeeDiscountPercent.IsNegative() || cf.FeeDiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		flds = append(flds, core.FieldError{Field: "fee_discount_percent", Error: "o desconto deve estar entre 0 e 100%"})
	}
	if cf.FeeDiscountAmount.IsNegative() {
		flds = append(flds, core.FieldError{Field: "fee_discount_amount", Error: "o desconto não pode ser negativo"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (cf ChildForm) apply(c *Child) {
	c.Name = cf.Name
	c.BirthDate = cf.BirthDate
	c.ClassGroup = cf.ClassGroup
	if cf.Active != nil {
		c.Active = *cf.Active
	}
	c.FeeDiscountPercent = cf.FeeDiscountPercent
	c.FeeDiscountAmount = cf.FeeDiscountAmount
}

type Parent struct {
	Name   string `json:"name"`
	CPF    string `json:"cpf"`
	Phone  string `json:"phone"`
	Absent bool   `json:"absent"`
}

// Payload is one child of a guardian's sign up (or of a guardian adding a child).
type Payload struct {
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	BirthDate        core.Date `json:"birth_date"`
	Gender           string    `json:"gender"`
	CPF              string    `json:"cpf"`
	BirthCertificate string    `json:"birth_certificate"`
	Father           Parent    `json:"father"`
	Mother           Parent    `json:"mother"`
	Allergies        string    `json:"allergies"`
	Medications      string    `json:"medications"`
	Restrictions     string    `json:"restrictions"`
	Observations     string    `json:"observations"`
	EmergencyContact string    `json:"emergency_contact"`
	EmergencyPhone   string    `json:"emergency_phone"`
	HealthPlan       string    `json:"health_plan"`
	AuthActivity     bool      `json:"auth_activity"`
	AuthMedical      bool      `json:"auth_medical"`
	AuthRules        bool      `json:"auth_rules"`

	Photo *core.Upload `json:"-"`
}

func (p Payload) FullName() string {
	return strings.TrimSpace(core.CleanString(p.FirstName) + " " + core.CleanString(p.LastName))
}

// ValidatePayloads checks every child of a sign up; messages are keyed by "children[<index>]".
func ValidatePayloads(payloads []Payload) error {
	if len(payloads) == 0 {
		return core.NewFieldError("children", "Adicione pelo menos um aventureiro.")
	}

	var flds []core.FieldError
	for i, p := range payloads {
		field := fmt.Sprintf("children[%d]", i)
		if core.CleanString(p.FirstName) == "" || p.BirthDate.IsZero() {
			flds = append(flds, core.FieldError{Field: field, Error: "Cada aventureiro precisa de nome e data de nascimento."})
			continue
		}
		if !(p.AuthActivity && p.AuthMedical && p.AuthRules) {
			flds = append(flds, core.FieldError{
				Field: field,
				Error: fmt.Sprintf("Autorizações obrigatórias não marcadas para %s.", p.FullName()),
			})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New(flds[0].Error), flds...)
	}
	return nil
}

// Child builds the active child described by the payload; its class group comes from its age.
func (p Payload) Child(today core.Date) Child {
	c := Child{
		Name:                   p.FullName(),
		BirthDate:              p.BirthDate,
		ClassGroup:             ClassGroupFor(p.BirthDate, today),
		Active:                 true,
		Gender:                 core.CleanString(p.Gender),
		CPF:                    core.CleanString(p.CPF),
		BirthCertificateNumber: core.CleanString(p.BirthCertificate),
		FatherName:             core.CleanString(p.Father.Name),
		FatherCPF:              core.CleanString(p.Father.CPF),
		FatherPhone:            core.CleanString(p.Father.Phone),
		FatherAbsent:           p.Father.Absent,
		MotherName:             core.CleanString(p.Mother.Name),
		MotherCPF:              core.CleanString(p.Mother.CPF),
		MotherPhone:            core.CleanString(p.Mother.Phone),
		MotherAbsent:           p.Mother.Absent,
	}
	c.clearAbsentParents()
	return c
}

func (p Payload) Health(childID int) Health {
	return Health{
		ChildID:          childID,
		Allergies:        p.Allergies,
		Medications:      p.Medications,
		Restrictions:     p.Restrictions,
		Observations:     p.Observations,
		EmergencyContact: core.CleanString(p.EmergencyContact),
		EmergencyPhone:   core.CleanString(p.EmergencyPhone),
		HealthPlan:       core.CleanString(p.HealthPlan),
		AuthActivity:     p.AuthActivity,
		AuthMedical:      p.AuthMedical,
		AuthRules:        p.AuthRules,
	}
}

// NewLink ties a guardian to a child.
type NewLink struct {
	GuardianID   int    `json:"guardian_id" validate:"required"`
	ChildID      int    `json:"child_id" validate:"required"`
	Relationship string `json:"relationship" validate:"omitempty,relationship"`
}

func (nl *NewLink) Validate(validate *validator.Validate) error {
	nl.Relationship = core.CleanString(nl.Relationship)
	return validate.Struct(nl)
}

type QueryFilter struct {
	ClassGroup string `query:"class_group"`
	Search     string `query:"q"`
	Active     *bool  `query:"active"`
	GuardianID int
	IDs        []int
}

func (qf *QueryFilter) Clean() {
	qf.ClassGroup = core.CleanString(qf.ClassGroup)
	qf.Search = core.CleanString(qf.Search)
}

// LinkFilter filters guardian links: child name, guardian name or whatsapp, exact relationship.
type LinkFilter struct {
	Child        string `query:"child"`
	Guardian     string `query:"guardian"`
	Relationship string `query:"relationship"`
	GuardianID   int
	ChildID      int
}

func (lf *LinkFilter) Clean() {
	lf.Child = core.CleanString(lf.Child)
	lf.Guardian = core.CleanString(lf.Guardian)
	lf.Relationship = core.CleanString(lf.Relationship)
}
