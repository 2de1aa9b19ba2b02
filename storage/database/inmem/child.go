package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

type childRepository struct {
	db *DB
}

var _ child.Repository = (*childRepository)(nil) // interface compliance check

func NewChildRepository(db *DB) *childRepository {
	return &childRepository{db: db}
}

func (repo *childRepository) CreateChild(_ context.Context, c child.Child, _ ...core.DBExecutor) (child.Child, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = repo.db.nextPK()
	stored := c
	repo.db.children[c.ID] = &stored
	return c, nil
}

func (repo *childRepository) UpdateChild(_ context.Context, c child.Child, _ ...core.DBExecutor) (child.Child, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.children[c.ID]; !ok {
		return child.Child{}, child.ErrNotFound
	}
	stored := c
	repo.db.children[c.ID] = &stored
	return c, nil
}

func (repo *childRepository) GetChild(_ context.Context, id int, _ ...core.DBExecutor) (child.Child, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.children[id]; ok {
		return *c, nil
	}
	return child.Child{}, child.ErrNotFound
}

func (repo *childRepository) QueryChildren(_ context.Context, filter *child.QueryFilter, _ ...core.DBExecutor) ([]child.Child, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	children := make([]child.Child, 0, len(repo.db.children))
	for _, c := range repo.db.children {
		if filter != nil {
			if filter.ClassGroup != "" && c.ClassGroup != filter.ClassGroup {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.Active != nil && c.Active != *filter.Active {
				continue
			}
			if filter.GuardianID != 0 && !repo.db.isGuardianOf(filter.GuardianID, c.ID) {
				continue
			}
			if len(filter.IDs) > 0 && !containsInt(filter.IDs, c.ID) {
				continue
			}
		}
		children = append(children, *c)
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Name != children[j].Name {
			return children[i].Name < children[j].Name
		}
		return children[i].ID < children[j].ID
	})
	return children, nil
}

func (repo *childRepository) SaveHealth(_ context.Context, h child.Health, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := h
	repo.db.health[h.ChildID] = &stored
	return nil
}

func (repo *childRepository) GetHealth(_ context.Context, childID int) (child.Health, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if h, ok := repo.db.health[childID]; ok {
		return *h, nil
	}
	return child.Health{}, child.ErrHealthNotFound
}

func (repo *childRepository) CreateFace(_ context.Context, f child.Face, _ ...core.DBExecutor) (child.Face, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	f.ID = repo.db.nextPK()
	stored := f
	repo.db.faces[f.ID] = &stored
	return f, nil
}

func (repo *childRepository) SaveLink(_ context.Context, l child.GuardianLink, _ ...core.DBExecutor) (child.GuardianLink, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.links {
		if existing.GuardianID == l.GuardianID && existing.ChildID == l.ChildID {
			existing.Relationship = l.Relationship
			return child.GuardianLink{
				ID:           existing.ID,
				GuardianID:   existing.GuardianID,
				ChildID:      existing.ChildID,
				Relationship: existing.Relationship,
			}, nil
		}
	}
	l.ID = repo.db.nextPK()
	stored := child.GuardianLink{ID: l.ID, GuardianID: l.GuardianID, ChildID: l.ChildID, Relationship: l.Relationship}
	repo.db.links[l.ID] = &stored
	return l, nil
}

func (repo *childRepository) QueryLinks(_ context.Context, filter *child.LinkFilter, _ ...core.DBExecutor) ([]child.GuardianLink, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	links := make([]child.GuardianLink, 0, len(repo.db.links))
	firstNames := make(map[int]string)
	for _, l := range repo.db.links {
		link := *l
		if c, ok := repo.db.children[l.ChildID]; ok {
			link.ChildName = c.Name
		}
		var guardianFirst, guardianLast string
		if u, ok := repo.db.users[l.GuardianID]; ok {
			guardianFirst, guardianLast = u.FirstName, u.LastName
			link.GuardianName = u.FullName()
			link.GuardianWhatsapp = u.WhatsappNumber
			link.GuardianEmail = u.Email
			link.FinancialWhatsapp = u.FinancialWhatsapp
		}

		if filter != nil {
			if filter.Child != "" && !strings.Contains(strings.ToLower(link.ChildName), strings.ToLower(filter.Child)) {
				continue
			}
			if filter.Guardian != "" {
				s := strings.ToLower(filter.Guardian)
				if !strings.Contains(strings.ToLower(guardianFirst), s) &&
					!strings.Contains(strings.ToLower(guardianLast), s) &&
					!strings.Contains(link.GuardianWhatsapp, s) {
					continue
				}
			}
			if filter.Relationship != "" && link.Relationship != filter.Relationship {
				continue
			}
			if filter.GuardianID != 0 && link.GuardianID != filter.GuardianID {
				continue
			}
			if filter.ChildID != 0 && link.ChildID != filter.ChildID {
				continue
			}
		}
		firstNames[link.ID] = guardianFirst
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].ChildName != links[j].ChildName {
			return links[i].ChildName < links[j].ChildName
		}
		if fi, fj := firstNames[links[i].ID], firstNames[links[j].ID]; fi != fj {
			return fi < fj
		}
		return links[i].ID < links[j].ID
	})
	return links, nil
}

func (repo *childRepository) IsGuardianOf(_ context.Context, guardianID, childID int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.isGuardianOf(guardianID, childID), nil
}
