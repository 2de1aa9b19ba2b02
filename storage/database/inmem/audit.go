package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/pinhaljunior/aventureiros/core/audit"
)

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateLog(_ context.Context, l audit.Log) (audit.Log, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	l.ID = repo.db.nextPK()
	stored := l
	stored.UserName = ""
	repo.db.logs[l.ID] = &stored
	return l, nil
}

func (repo *auditRepository) QueryLogs(_ context.Context, filter *audit.Filter) ([]audit.Log, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	logs := make([]audit.Log, 0)
	for _, stored := range repo.db.logs {
		if filter != nil {
			if filter.UserID != 0 && (stored.UserID == nil || *stored.UserID != filter.UserID) {
				continue
			}
			if filter.PathPrefix != "" && !strings.HasPrefix(stored.Path, filter.PathPrefix) {
				continue
			}
			if filter.Success != nil && stored.Success != *filter.Success {
				continue
			}
			if !filter.From.IsZero() && stored.CreatedAt.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && !stored.CreatedAt.Before(filter.To) {
				continue
			}
		}
		l := *stored
		if l.UserID != nil {
			l.UserName = repo.db.userName(*l.UserID)
		}
		logs = append(logs, l)
	}
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].CreatedAt.After(logs[j].CreatedAt)
		}
		return logs[i].ID > logs[j].ID
	})
	if filter != nil && filter.Limit > 0 && len(logs) > filter.Limit {
		logs = logs[:filter.Limit]
	}
	return logs, nil
}
