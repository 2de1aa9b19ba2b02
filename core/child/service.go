package child

import (
	"context"
	"path"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
)

var (
	ErrNotFound       = core.NewNotFoundError("child")
	ErrHealthNotFound = core.NewNotFoundError("child health")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateChild(ctx context.Context, c Child, exec ...core.DBExecutor) (Child, error)
		UpdateChild(ctx context.Context, c Child, exec ...core.DBExecutor) (Child, error)
		GetChild(ctx context.Context, id int, exec ...core.DBExecutor) (Child, error)
		// QueryChildren applies AND operation on the QueryFilter fields, ordered by name.
		QueryChildren(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Child, error)
		SaveHealth(ctx context.Context, h Health, exec ...core.DBExecutor) error
		GetHealth(ctx context.Context, childID int) (Health, error)
		CreateFace(ctx context.Context, f Face, exec ...core.DBExecutor) (Face, error)
		// SaveLink creates the guardian link or updates its relationship.
		SaveLink(ctx context.Context, l GuardianLink, exec ...core.DBExecutor) (GuardianLink, error)
		// QueryLinks is ordered by child name then guardian first name.
		QueryLinks(ctx context.Context, filter *LinkFilter, exec ...core.DBExecutor) ([]GuardianLink, error)
		IsGuardianOf(ctx context.Context, guardianID, childID int) (bool, error)
	}

	Service interface {
		Create(ctx context.Context, cf ChildForm, exec ...core.DBExecutor) (Child, error)
		// CreateForGuardian creates the child of a sign up payload, with its health record,
		// its link to the guardian and the optional face photo.
		CreateForGuardian(ctx context.Context, guardianID int, p Payload, exec ...core.DBExecutor) (Child, error)
		Update(ctx context.Context, id int, cf ChildForm) (Child, error)
		Get(ctx context.Context, id int) (Child, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Child, error)
		Health(ctx context.Context, id int) (Health, error)
		Link(ctx context.Context, nl NewLink, exec ...core.DBExecutor) (GuardianLink, error)
		Links(ctx context.Context, filter *LinkFilter) ([]GuardianLink, error)
		Guardians(ctx context.Context, childID int) ([]GuardianLink, error)
		GuardianChildren(ctx context.Context, guardianID int) ([]Child, error)
		IsGuardianOf(ctx context.Context, guardianID, childID int) (bool, error)
		// CheckGuardian returns core.ErrPermissionDenied unless guardianID is linked to childID.
		CheckGuardian(ctx context.Context, guardianID, childID int) error
		Today() core.Date
	}

	service struct {
		repo    Repository
		storage core.FileStorage
		logger  core.Logger
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, storage core.FileStorage, logger core.Logger, conf *core.Config) Service {
	return &service{repo: repo, storage: storage, logger: logger, conf: conf}
}

func (svc *service) Today() core.Date {
	return core.Today(NowFunc(), svc.conf.Finance.Location)
}

func (svc *service) Create(ctx context.Context, cf ChildForm, exec ...core.DBExecutor) (Child, error) {
	now := NowFunc().UTC()
	c := Child{Active: true, CreatedAt: now, UpdatedAt: now}
	cf.apply(&c)
	if c.ClassGroup == "" {
		c.ClassGroup = ClassGroupFor(c.BirthDate, svc.Today())
	}
	c, err := svc.repo.CreateChild(ctx, c, exec...)
	if err != nil {
		return Child{}, errors.Wrap(err, "creating child")
	}
	return c, nil
}

func (svc *service) CreateForGuardian(ctx context.Context, guardianID int, p Payload, exec ...core.DBExecutor) (Child, error) {
	now := NowFunc().UTC()
	c := p.Child(svc.Today())
	c.CreatedAt, c.UpdatedAt = now, now

	c, err := svc.repo.CreateChild(ctx, c, exec...)
	if err != nil {
		return Child{}, errors.Wrap(err, "creating child")
	}
	if _, err := svc.repo.SaveLink(ctx, GuardianLink{GuardianID: guardianID, ChildID: c.ID, Relationship: RelGuardian}, exec...); err != nil {
		return Child{}, errors.Wrap(err, "linking guardian")
	}
	if err := svc.repo.SaveHealth(ctx, p.Health(c.ID), exec...); err != nil {
		return Child{}, errors.Wrap(err, "saving child health")
	}

	if p.Photo != nil {
		name := path.Join("child_faces", strconv.Itoa(c.ID)+path.Ext(p.Photo.Filename))
		url, err := svc.storage.Save(ctx, name, p.Photo.Content, p.Photo.ContentType)
		if err != nil {
			return Child{}, errors.Wrap(err, "storing face photo")
		}
		if _, err := svc.repo.CreateFace(ctx, Face{ChildID: c.ID, ImageURL: url, IsActive: true, CreatedAt: now}, exec...); err != nil {
			return Child{}, errors.Wrap(err, "saving face")
		}
	}
	return c, nil
}

func (svc *service) Update(ctx context.Context, id int, cf ChildForm) (Child, error) {
	c, err := svc.repo.GetChild(ctx, id)
	if err != nil {
		return Child{}, err
	}
	cf.apply(&c)
	c.UpdatedAt = NowFunc().UTC()
	if c, err = svc.repo.UpdateChild(ctx, c); err != nil {
		return Child{}, errors.Wrap(err, "updating child")
	}
	return c, nil
}

func (svc *service) Get(ctx context.Context, id int) (Child, error) {
	return svc.repo.GetChild(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Child, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryChildren(ctx, filter)
}

// Health returns an empty record for children registered without one.
func (svc *service) Health(ctx context.Context, id int) (Health, error) {
	h, err := svc.repo.GetHealth(ctx, id)
	if errors.Cause(err) == ErrHealthNotFound {
		return Health{ChildID: id}, nil
	}
	return h, err
}

func (svc *service) Link(ctx context.Context, nl NewLink, exec ...core.DBExecutor) (GuardianLink, error) {
	if _, err := svc.repo.GetChild(ctx, nl.ChildID, exec...); err != nil {
		return GuardianLink{}, err
	}
	link, err := svc.repo.SaveLink(ctx, GuardianLink{GuardianID: nl.GuardianID, ChildID: nl.ChildID, Relationship: nl.Relationship}, exec...)
	if err != nil {
		return GuardianLink{}, errors.Wrap(err, "saving guardian link")
	}
	return link, nil
}

func (svc *service) Links(ctx context.Context, filter *LinkFilter) ([]GuardianLink, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryLinks(ctx, filter)
}

func (svc *service) Guardians(ctx context.Context, childID int) ([]GuardianLink, error) {
	return svc.repo.QueryLinks(ctx, &LinkFilter{ChildID: childID})
}

func (svc *service) GuardianChildren(ctx context.Context, guardianID int) ([]Child, error) {
	return svc.repo.QueryChildren(ctx, &QueryFilter{GuardianID: guardianID})
}

func (svc *service) IsGuardianOf(ctx context.Context, guardianID, childID int) (bool, error) {
	if guardianID == 0 || childID == 0 {
		return false, nil
	}
	return svc.repo.IsGuardianOf(ctx, guardianID, childID)
}

func (svc *service) CheckGuardian(ctx context.Context, guardianID, childID int) error {
	ok, err := svc.IsGuardianOf(ctx, guardianID, childID)
	if err != nil {
		return errors.Wrapf(err, "checking guardian of child %d", childID)
	}
	if !ok {
		return core.ErrPermissionDenied
	}
	return nil
}
