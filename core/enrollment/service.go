// Package enrollment creates children together with everything that comes with them:
// guardian accounts and links, health records and the fee schedule.
package enrollment

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/finance"
	"github.com/pinhaljunior/aventureiros/core/user"
)

var (
	// defaultBirthDate is used for admin-created children whose birth date is missing or invalid.
	defaultBirthDate = core.NewDate(2018, time.January, 1)

	ErrNotGuardian = core.NewFieldError("guardian_id", "o usuário selecionado não é um responsável")
)

type (
	// Enrollment is the result of a guardian sign up.
	Enrollment struct {
		Guardian    user.User     `json:"guardian"`
		Created     bool          `json:"created"`
		Children    []child.Child `json:"children"`
		FeesCreated int           `json:"fees_created"`
	}

	Service interface {
		// SignupGuardian creates or updates the guardian and creates every child of the sign up.
		SignupGuardian(ctx context.Context, gd user.GuardianData, payloads []child.Payload) (Enrollment, error)
		// AddChildren creates children for an existing guardian.
		AddChildren(ctx context.Context, guardian user.User, payloads []child.Payload) ([]child.Child, error)
		// CreateChild is the staff child form; active children get their fee schedule.
		CreateChild(ctx context.Context, cf child.ChildForm) (child.Child, error)
		// CreateUser is the admin user form; guardians may come with new children, one per line ("Name;YYYY-MM-DD").
		CreateUser(ctx context.Context, nu user.NewUser) (user.User, bool, []child.Child, error)
		// LinkGuardian ties an existing guardian account to a child.
		LinkGuardian(ctx context.Context, nl child.NewLink) (child.GuardianLink, error)
	}

	service struct {
		users    user.Service
		children child.Service
		fees     finance.Service
		tx       core.Transactor
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(users user.Service, children child.Service, fees finance.Service, tx core.Transactor, logger core.Logger) Service {
	return &service{users: users, children: children, fees: fees, tx: tx, logger: logger}
}

func (svc *service) SignupGuardian(ctx context.Context, gd user.GuardianData, payloads []child.Payload) (Enrollment, error) {
	if err := child.ValidatePayloads(payloads); err != nil {
		return Enrollment{}, err
	}

	var enr Enrollment
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		guardian, created, err := svc.users.SaveGuardian(ctx, gd, exec)
		if err != nil {
			return err
		}
		enr.Guardian, enr.Created = guardian, created

		enr.Children, enr.FeesCreated, err = svc.createForGuardian(ctx, guardian.ID, payloads, exec)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}

	names := make([]string, len(enr.Children))
	for i, c := range enr.Children {
		names[i] = c.Name
	}
	svc.users.NotifySignup(ctx, user.SignupNotification{
		Name:     enr.Guardian.DisplayName(),
		Whatsapp: enr.Guardian.WhatsappNumber,
		Kind:     user.SignupKindGuardian,
		Children: names,
	})
	return enr, nil
}

func (svc *service) AddChildren(ctx context.Context, guardian user.User, payloads []child.Payload) ([]child.Child, error) {
	if err := child.ValidatePayloads(payloads); err != nil {
		return nil, err
	}
	var kids []child.Child
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		kids, _, err = svc.createForGuardian(ctx, guardian.ID, payloads, exec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return kids, nil
}

func (svc *service) createForGuardian(ctx context.Context, guardianID int, payloads []child.Payload, exec core.DBExecutor) ([]child.Child, int, error) {
	kids := make([]child.Child, 0, len(payloads))
	feesCreated := 0
	for _, p := range payloads {
		c, err := svc.children.CreateForGuardian(ctx, guardianID, p, exec)
		if err != nil {
			return nil, 0, err
		}
		n, err := svc.fees.GenerateSchedule(ctx, c, exec)
		if err != nil {
			return nil, 0, err
		}
		feesCreated += n
		kids = append(kids, c)
	}
	return kids, feesCreated, nil
}

func (svc *service) CreateChild(ctx context.Context, cf child.ChildForm) (child.Child, error) {
	var c child.Child
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if c, err = svc.children.Create(ctx, cf, exec); err != nil {
			return err
		}
		_, err = svc.fees.GenerateSchedule(ctx, c, exec)
		return err
	})
	if err != nil {
		return child.Child{}, err
	}
	return c, nil
}

func (svc *service) CreateUser(ctx context.Context, nu user.NewUser) (user.User, bool, []child.Child, error) {
	var (
		usr     user.User
		created bool
		kids    []child.Child
	)
	err := svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if usr, created, err = svc.users.Create(ctx, nu, exec); err != nil {
			return err
		}
		if nu.Role != user.RoleResponsavel {
			return nil
		}

		for _, cf := range ParseNewChildren(nu.NewChildren) {
			c, err := svc.children.Create(ctx, cf, exec)
			if err != nil {
				return err
			}
			if _, err := svc.children.Link(ctx, child.NewLink{GuardianID: usr.ID, ChildID: c.ID, Relationship: child.RelGuardian}, exec); err != nil {
				return err
			}
			if _, err := svc.fees.GenerateSchedule(ctx, c, exec); err != nil {
				return err
			}
			kids = append(kids, c)
		}
		return nil
	})
	if err != nil {
		return user.User{}, false, nil, err
	}
	return usr, created, kids, nil
}

func (svc *service) LinkGuardian(ctx context.Context, nl child.NewLink) (child.GuardianLink, error) {
	guardian, err := svc.users.GetByID(ctx, nl.GuardianID)
	if err != nil {
		if core.IsNotFound(err) {
			return child.GuardianLink{}, ErrNotGuardian
		}
		return child.GuardianLink{}, errors.Wrap(err, "finding guardian")
	}
	if guardian.Role != user.RoleResponsavel {
		return child.GuardianLink{}, ErrNotGuardian
	}
	return svc.children.Link(ctx, nl)
}

// ParseNewChildren reads one child per line, "Name;YYYY-MM-DD". Blank lines are skipped and a
// missing or invalid birth date falls back to 2018-01-01.
func ParseNewChildren(raw string) []child.ChildForm {
	active := true
	var forms []child.ChildForm
	for _, line := range strings.Split(raw, "\n") {
		var parts []string
		for _, p := range strings.Split(line, ";") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}

		birth := defaultBirthDate
		if len(parts) > 1 {
			if d, err := core.ParseDate(parts[1]); err == nil {
				birth = d
			}
		}
		forms = append(forms, child.ChildForm{Name: parts[0], BirthDate: birth, Active: &active})
	}
	return forms
}
