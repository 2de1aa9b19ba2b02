package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/user"
)

var userColumns = []string{
	"id", "whatsapp_number", "financial_whatsapp", "financial_phone", "address", "role", "extra_roles",
	"first_name", "last_name", "email", "photo_url", "is_staff", "is_superuser", "is_active",
	"password_hash", "date_joined", "updated_at", "last_login",
}

type userRow struct {
	ID                int            `db:"id"`
	WhatsappNumber    string         `db:"whatsapp_number"`
	FinancialWhatsapp string         `db:"financial_whatsapp"`
	FinancialPhone    string         `db:"financial_phone"`
	Address           string         `db:"address"`
	Role              string         `db:"role"`
	ExtraRoles        pq.StringArray `db:"extra_roles"`
	FirstName         string         `db:"first_name"`
	LastName          string         `db:"last_name"`
	Email             string         `db:"email"`
	PhotoURL          string         `db:"photo_url"`
	IsStaff           bool           `db:"is_staff"`
	IsSuperuser       bool           `db:"is_superuser"`
	IsActive          bool           `db:"is_active"`
	PasswordHash      []byte         `db:"password_hash"`
	DateJoined        time.Time      `db:"date_joined"`
	UpdatedAt         time.Time      `db:"updated_at"`
	LastLogin         null.Time      `db:"last_login"`
}

func (r userRow) user() user.User {
	roles := []string(r.ExtraRoles)
	if roles == nil {
		roles = []string{}
	}
	return user.User{
		ID:                r.ID,
		WhatsappNumber:    r.WhatsappNumber,
		FinancialWhatsapp: r.FinancialWhatsapp,
		FinancialPhone:    r.FinancialPhone,
		Address:           r.Address,
		Role:              r.Role,
		ExtraRoles:        roles,
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Email:             r.Email,
		PhotoURL:          r.PhotoURL,
		IsStaff:           r.IsStaff,
		IsSuperuser:       r.IsSuperuser,
		IsActive:          r.IsActive,
		PasswordHash:      r.PasswordHash,
		DateJoined:        r.DateJoined.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		LastLogin:         r.LastLogin.Ptr(),
	}
}

func userValues(usr user.User) map[string]interface{} {
	roles := usr.ExtraRoles
	if roles == nil {
		roles = []string{}
	}
	return map[string]interface{}{
		"whatsapp_number":    usr.WhatsappNumber,
		"financial_whatsapp": usr.FinancialWhatsapp,
		"financial_phone":    usr.FinancialPhone,
		"address":            usr.Address,
		"role":               usr.Role,
		"extra_roles":        pq.StringArray(roles),
		"first_name":         usr.FirstName,
		"last_name":          usr.LastName,
		"email":              usr.Email,
		"photo_url":          usr.PhotoURL,
		"is_staff":           usr.IsStaff,
		"is_superuser":       usr.IsSuperuser,
		"is_active":          usr.IsActive,
		"password_hash":      usr.PasswordHash,
		"date_joined":        usr.DateJoined.UTC(),
		"updated_at":         usr.UpdatedAt.UTC(),
		"last_login":         null.TimeFromPtr(usr.LastLogin),
	}
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{base{db: db}}
}

func (repo userRepository) trapErr(err error, msg string) error {
	if isUniqueViolation(err) {
		return user.ErrWhatsappExists
	}
	return trapNoRowsErr(err, user.ErrNotFound, msg)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	now := time.Now().UTC()
	if usr.DateJoined.IsZero() {
		usr.DateJoined = now
	}
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = now
	}

	var row userRow
	q := psql.Insert("users").SetMap(userValues(usr)).Suffix("RETURNING " + strings.Join(userColumns, ", "))
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return row.user(), nil
}

var userOrdering = []core.DBOrdering{
	{Field: "first_name", Ascending: true},
	{Field: "whatsapp_number", Ascending: true},
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	q := psql.Select(userColumns...).From("users").OrderBy(orderBy(userOrdering...)...)
	if filter != nil {
		if filter.Search != "" {
			s := like(filter.Search)
			q = q.Where(sq.Or{
				sq.Expr("first_name ILIKE ?", s),
				sq.Expr("last_name ILIKE ?", s),
				sq.Expr("whatsapp_number ILIKE ?", s),
			})
		}
		if filter.Role != "" {
			q = q.Where(sq.Eq{"role": filter.Role})
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if len(filter.Roles) > 0 {
			q = q.Where(sq.Eq{"role": filter.Roles})
		}
	}

	var rows []userRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := psql.Select(userColumns...).From("users").Limit(1)
	switch {
	case filter.ID != 0:
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Whatsapp != "":
		q = q.Where(sq.Eq{"whatsapp_number": filter.Whatsapp})
	case filter.Email != "":
		q = q.Where(sq.Expr("LOWER(email) = LOWER(?)", filter.Email)).OrderBy("id")
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return user.User{}, repo.trapErr(err, "getting user")
	}
	return row.user(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = time.Now().UTC()
	}
	values := userValues(usr)
	delete(values, "date_joined")

	var row userRow
	q := psql.Update("users").
		SetMap(values).
		Where(sq.Eq{"id": usr.ID}).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))
	if err := repo.get(ctx, repo.getExec(exec), &row, q); err != nil {
		return user.User{}, repo.trapErr(err, "updating user")
	}
	return row.user(), nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error {
	q := psql.Update("users").Set("last_login", at.UTC()).Where(sq.Eq{"id": id})
	if _, err := repo.exec(ctx, repo.getExec(exec), q); err != nil {
		return errors.Wrap(err, "setting last login")
	}
	return nil
}
