package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func copyUser(u *user.User) user.User {
	usr := *u
	usr.ExtraRoles = append([]string{}, u.ExtraRoles...)
	return usr
}

func (repo *userRepository) whatsappTaken(whatsapp string, id int) bool {
	for _, u := range repo.db.users {
		if u.WhatsappNumber == whatsapp && u.ID != id {
			return true
		}
	}
	return false
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.whatsappTaken(usr.WhatsappNumber, 0) {
		return user.User{}, user.ErrWhatsappExists
	}
	usr.ID = repo.db.nextPK()
	if usr.ExtraRoles == nil {
		usr.ExtraRoles = []string{}
	}
	stored := copyUser(&usr)
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		if filter != nil {
			if filter.Search != "" {
				s := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(u.FirstName), s) &&
					!strings.Contains(strings.ToLower(u.LastName), s) &&
					!strings.Contains(u.WhatsappNumber, s) {
					continue
				}
			}
			if filter.Role != "" && u.Role != filter.Role {
				continue
			}
			if filter.IsActive != nil && u.IsActive != *filter.IsActive {
				continue
			}
			if len(filter.Roles) > 0 && !containsString(filter.Roles, u.Role) {
				continue
			}
		}
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].FirstName != users[j].FirstName {
			return users[i].FirstName < users[j].FirstName
		}
		return users[i].WhatsappNumber < users[j].WhatsappNumber
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != 0:
		if u, ok := repo.db.users[filter.ID]; ok {
			return copyUser(u), nil
		}
	case filter.Whatsapp != "":
		for _, u := range repo.db.users {
			if u.WhatsappNumber == filter.Whatsapp {
				return copyUser(u), nil
			}
		}
	case filter.Email != "":
		for _, u := range repo.db.users {
			if strings.EqualFold(u.Email, filter.Email) {
				return copyUser(u), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if repo.whatsappTaken(usr.WhatsappNumber, usr.ID) {
		return user.User{}, user.ErrWhatsappExists
	}
	stored := copyUser(&usr)
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) SetLastLogin(_ context.Context, id int, at time.Time, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	u, ok := repo.db.users[id]
	if !ok {
		return user.ErrNotFound
	}
	at = at.UTC()
	u.LastLogin = &at
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
