package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

var childColumns = []string{
	"id", "name", "birth_date", "class_group", "active", "fee_discount_percent", "fee_discount_amount",
	"gender", "cpf", "birth_certificate_number",
	"father_name", "father_cpf", "father_phone", "father_absent",
	"mother_name", "mother_cpf", "mother_phone", "mother_absent",
	"created_at", "updated_at",
}

type childRow struct {
	ID                     int             `db:"id"`
	Name                   string          `db:"name"`
	BirthDate              core.Date       `db:"birth_date"`
	ClassGroup             string          `db:"class_group"`
	Active                 bool            `db:"active"`
	FeeDiscountPercent     decimal.Decimal `db:"fee_discount_percent"`
	FeeDiscountAmount      decimal.Decimal `db:"fee_discount_amount"`
	Gender                 string          `db:"gender"`
	CPF                    string          `db:"cpf"`
	BirthCertificateNumber string          `db:"birth_certificate_number"`
	FatherName             string          `db:"father_name"`
	FatherCPF              string          `db:"father_cpf"`
	FatherPhone            string          `db:"father_phone"`
	FatherAbsent           bool            `db:"father_absent"`
	MotherName             string          `db:"mother_name"`
	MotherCPF              string          `db:"mother_cpf"`
	MotherPhone            string          `db:"mother_phone"`
	MotherAbsent           bool            `db:"mother_absent"`
	CreatedAt              time.Time       `db:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at"`
}

func childValues(c child.Child) map[string]interface{} {
	return map[string]interface{}{
		"name":                     c.Name,
		"birth_date":               c.BirthDate,
		"class_group":              c.ClassGroup,
		"active":                   c.Active,
		"fee_discount_percent":     c.FeeDiscountPercent,
		"fee_discount_amount":      c.FeeDiscountAmount,
		"gender":                   c.Gender,
		"cpf":                      c.CPF,
		"birth_certificate_number": c.BirthCertificateNumber,
		"father_name":              c.FatherName,
		"father_cpf":               c.FatherCPF,
		"father_phone":             c.FatherPhone,
		"father_absent":            c.FatherAbsent,
		"mother_name":              c.MotherName,
		"mother_cpf":               c.MotherCPF,
		"mother_phone":             c.MotherPhone,
		"mother_absent":            c.MotherAbsent,
		"created_at":               c.CreatedAt.UTC(),
		"updated_at":               c.UpdatedAt.UTC(),
	}
}

type healthRow struct {
	ChildID          int    `db:"child_id"`
	Allergies        string `db:"allergies"`
	Medications      string `db:"medications"`
	Restrictions     string `db:"restrictions"`
	Observations     string `db:"observations"`
	EmergencyContact string `db:"emergency_contact"`
	EmergencyPhone   string `db:"emergency_phone"`
	HealthPlan       string `db:"health_plan"`
	AuthActivity     bool   `db:"auth_activity"`
	AuthMedical      bool   `db:"auth_medical"`
	AuthRules        bool   `db:"auth_rules"`
}

type faceRow struct {
	ID        int       `db:"id"`
	ChildID   int       `db:"child_id"`
	ImageURL  string    `db:"image_url"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

type linkRow struct {
	ID           int    `db:"id"`
	GuardianID   int    `db:"guardian_id"`
	ChildID      int    `db:"child_id"`
	Relationship string `db:"relationship"`

	ChildName         string `db:"child_name"`
	GuardianName      string `db:"guardian_name"`
	GuardianWhatsapp  string `db:"guardian_whatsapp"`
	GuardianEmail     string `db:"guardian_email"`
	FinancialWhatsapp string `db:"financial_whatsapp"`
}

type childRepository struct {
	base
}

var _ child.Repository = (*childRepository)(nil) // interface compliance check

func NewChildRepository(db *sqlx.DB) *childRepository {
	return &childRepository{base{db: db}}
}

func (repo childRepository) CreateChild(ctx context.Context, c child.Child, exec ...core.DBExecutor) (child.Child, error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	var row childRow
	q := psql.Insert("children").SetMap(childValues(c)).Suffix("RETURNING " + strings.Join(childColumns, ", "))
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return child.Child{}, errors.Wrap(err, "inserting child")
	}
	return child.Child(row), nil
}

func (repo childRepository) UpdateChild(ctx context.Context, c child.Child, exec ...core.DBExecutor) (child.Child, error) {
	c.UpdatedAt = time.Now().UTC()
	values := childValues(c)
	delete(values, "created_at")

	var row childRow
	q := psql.Update("children").
		SetMap(values).
		Where(sq.Eq{"id": c.ID}).
		Suffix("RETURNING " + strings.Join(childColumns, ", "))
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return child.Child{}, trapNoRowsErr(err, child.ErrNotFound, "updating child")
	}
	return child.Child(row), nil
}

func (repo childRepository) GetChild(ctx context.Context, id int, exec ...core.DBExecutor) (child.Child, error) {
	var row childRow
	q := psql.Select(childColumns...).From("children").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return child.Child{}, trapNoRowsErr(err, child.ErrNotFound, "getting child")
	}
	return child.Child(row), nil
}

func (repo childRepository) QueryChildren(ctx context.Context, filter *child.QueryFilter, exec ...core.DBExecutor) ([]child.Child, error) {
	q := psql.Select(prefixed("c", childColumns)...).From("children c").OrderBy("c.name", "c.id")
	if filter != nil {
		if filter.ClassGroup != "" {
			q = q.Where(sq.Eq{"c.class_group": filter.ClassGroup})
		}
		if filter.Search != "" {
			q = q.Where(sq.Expr("c.name ILIKE ?", like(filter.Search)))
		}
		if filter.Active != nil {
			q = q.Where(sq.Eq{"c.active": *filter.Active})
		}
		if filter.GuardianID != 0 {
			q = q.Join("guardian_children gc ON gc.child_id = c.id").Where(sq.Eq{"gc.guardian_id": filter.GuardianID})
		}
		if len(filter.IDs) > 0 {
			q = q.Where(sq.Eq{"c.id": filter.IDs})
		}
	}

	var rows []childRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying children")
	}
	children := make([]child.Child, 0, len(rows))
	for _, r := range rows {
		children = append(children, child.Child(r))
	}
	return children, nil
}

func (repo childRepository) SaveHealth(ctx context.Context, h child.Health, exec ...core.DBExecutor) error {
	q := psql.Insert("child_health").
		Columns(
			"child_id", "allergies", "medications", "restrictions", "observations", "emergency_contact",
			"emergency_phone", "health_plan", "auth_activity", "auth_medical", "auth_rules",
		).
		Values(
			h.ChildID, h.Allergies, h.Medications, h.Restrictions, h.Observations, h.EmergencyContact,
			h.EmergencyPhone, h.HealthPlan, h.AuthActivity, h.AuthMedical, h.AuthRules,
		).
		Suffix(`ON CONFLICT (child_id) DO UPDATE SET
			allergies = EXCLUDED.allergies,
			medications = EXCLUDED.medications,
			restrictions = EXCLUDED.restrictions,
			observations = EXCLUDED.observations,
			emergency_contact = EXCLUDED.emergency_contact,
			emergency_phone = EXCLUDED.emergency_phone,
			health_plan = EXCLUDED.health_plan,
			auth_activity = EXCLUDED.auth_activity,
			auth_medical = EXCLUDED.auth_medical,
			auth_rules = EXCLUDED.auth_rules`)
	if _, err := repo.exec(ctx, repo.getExec(exec), q); err != nil {
		return errors.Wrap(err, "saving child health")
	}
	return nil
}

func (repo childRepository) GetHealth(ctx context.Context, childID int) (child.Health, error) {
	var row healthRow
	q := psql.Select(
		"child_id", "allergies", "medications", "restrictions", "observations", "emergency_contact",
		"emergency_phone", "health_plan", "auth_activity", "auth_medical", "auth_rules",
	).From("child_health").Where(sq.Eq{"child_id": childID})
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return child.Health{}, trapNoRowsErr(err, child.ErrHealthNotFound, "getting child health")
	}
	return child.Health(row), nil
}

func (repo childRepository) CreateFace(ctx context.Context, f child.Face, exec ...core.DBExecutor) (child.Face, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	var row faceRow
	q := psql.Insert("child_faces").
		Columns("child_id", "image_url", "is_active", "created_at").
		Values(f.ChildID, f.ImageURL, f.IsActive, f.CreatedAt.UTC()).
		Suffix("RETURNING id, child_id, image_url, is_active, created_at")
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return child.Face{}, errors.Wrap(err, "inserting face")
	}
	return child.Face(row), nil
}

func (repo childRepository) SaveLink(ctx context.Context, l child.GuardianLink, exec ...core.DBExecutor) (child.GuardianLink, error) {
	var id int
	q := psql.Insert("guardian_children").
		Columns("guardian_id", "child_id", "relationship").
		Values(l.GuardianID, l.ChildID, l.Relationship).
		Suffix("ON CONFLICT (guardian_id, child_id) DO UPDATE SET relationship = EXCLUDED.relationship RETURNING id")
	if err := repo.get(ctx, repo.getExec(exec), &id, q); err != nil {
		return child.GuardianLink{}, errors.Wrap(err, "saving guardian link")
	}
	l.ID = id
	return l, nil
}

func (repo childRepository) QueryLinks(ctx context.Context, filter *child.LinkFilter, exec ...core.DBExecutor) ([]child.GuardianLink, error) {
	q := psql.Select(
		"gc.id", "gc.guardian_id", "gc.child_id", "gc.relationship",
		"c.name AS child_name",
		"TRIM(u.first_name || ' ' || u.last_name) AS guardian_name",
		"u.whatsapp_number AS guardian_whatsapp",
		"u.email AS guardian_email",
		"u.financial_whatsapp",
	).
		From("guardian_children gc").
		Join("children c ON c.id = gc.child_id").
		Join("users u ON u.id = gc.guardian_id").
		OrderBy("c.name", "u.first_name", "gc.id")
	if filter != nil {
		if filter.Child != "" {
			q = q.Where(sq.Expr("c.name ILIKE ?", like(filter.Child)))
		}
		if filter.Guardian != "" {
			s := like(filter.Guardian)
			q = q.Where(sq.Or{
				sq.Expr("u.first_name ILIKE ?", s),
				sq.Expr("u.last_name ILIKE ?", s),
				sq.Expr("u.whatsapp_number ILIKE ?", s),
			})
		}
		if filter.Relationship != "" {
			q = q.Where(sq.Eq{"gc.relationship": filter.Relationship})
		}
		if filter.GuardianID != 0 {
			q = q.Where(sq.Eq{"gc.guardian_id": filter.GuardianID})
		}
		if filter.ChildID != 0 {
			q = q.Where(sq.Eq{"gc.child_id": filter.ChildID})
		}
	}

	var rows []linkRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying guardian links")
	}
	links := make([]child.GuardianLink, 0, len(rows))
	for _, r := range rows {
		links = append(links, child.GuardianLink(r))
	}
	return links, nil
}

func (repo childRepository) IsGuardianOf(ctx context.Context, guardianID, childID int) (bool, error) {
	var exists bool
	q := psql.Select("1").
		Prefix("SELECT EXISTS (").
		From("guardian_children").
		Where(sq.Eq{"guardian_id": guardianID, "child_id": childID}).
		Suffix(")")
	if err := repo.get(ctx, repo.db, &exists, q); err != nil {
		return false, errors.Wrap(err, "checking guardian link")
	}
	return exists, nil
}
