package inmemdb

import (
	"context"
	"sort"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/curriculum"
	"github.com/pinhaljunior/aventureiros/core/points"
)

// attendance

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateSession(_ context.Context, s attendance.Session) (attendance.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = repo.db.nextPK()
	stored := s
	repo.db.sessions[s.ID] = &stored
	return s, nil
}

func (repo *attendanceRepository) GetSession(_ context.Context, id int) (attendance.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return *s, nil
	}
	return attendance.Session{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) QuerySessions(_ context.Context) ([]attendance.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sessions := make([]attendance.Session, 0, len(repo.db.sessions))
	for _, s := range repo.db.sessions {
		sessions = append(sessions, *s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].Date.Equal(sessions[j].Date) {
			return sessions[i].Date.After(sessions[j].Date)
		}
		return sessions[i].ID > sessions[j].ID
	})
	return sessions, nil
}

func (repo *attendanceRepository) SaveRecord(_ context.Context, r attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.records {
		if existing.SessionID == r.SessionID && existing.ChildID == r.ChildID {
			r.ID = existing.ID
			break
		}
	}
	if r.ID == 0 {
		r.ID = repo.db.nextPK()
	}
	stored := attendance.Record{
		ID:        r.ID,
		SessionID: r.SessionID,
		ChildID:   r.ChildID,
		Present:   r.Present,
		Note:      r.Note,
		MarkedBy:  r.MarkedBy,
		MarkedAt:  r.MarkedAt,
	}
	repo.db.records[r.ID] = &stored
	return r, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter *attendance.RecordFilter) ([]attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]attendance.Record, 0)
	for _, stored := range repo.db.records {
		r := *stored
		if filter != nil {
			if filter.SessionID != 0 && r.SessionID != filter.SessionID {
				continue
			}
			if filter.ChildID != 0 && r.ChildID != filter.ChildID {
				continue
			}
			if filter.GuardianID != 0 && !repo.db.isGuardianOf(filter.GuardianID, r.ChildID) {
				continue
			}
		}
		r.ChildName = repo.db.childName(r.ChildID)
		if s, ok := repo.db.sessions[r.SessionID]; ok {
			r.SessionDate = s.Date
			r.SessionType = s.Type
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].SessionDate.Equal(records[j].SessionDate) {
			return records[i].SessionDate.After(records[j].SessionDate)
		}
		if records[i].ChildName != records[j].ChildName {
			return records[i].ChildName < records[j].ChildName
		}
		return records[i].ID < records[j].ID
	})
	if filter != nil && filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

func (repo *attendanceRepository) CountSessions(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.sessions), nil
}

func (repo *attendanceRepository) CountRecords(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.records), nil
}

// curriculum

type curriculumRepository struct {
	db *DB
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(db *DB) *curriculumRepository {
	return &curriculumRepository{db: db}
}

func (repo *curriculumRepository) CreateContent(_ context.Context, item curriculum.ContentItem) (curriculum.ContentItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	item.ID = repo.db.nextPK()
	stored := item
	repo.db.contents[item.ID] = &stored
	return item, nil
}

func (repo *curriculumRepository) UpdateContent(_ context.Context, item curriculum.ContentItem) (curriculum.ContentItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.contents[item.ID]; !ok {
		return curriculum.ContentItem{}, curriculum.ErrNotFound
	}
	stored := item
	repo.db.contents[item.ID] = &stored
	return item, nil
}

func (repo *curriculumRepository) GetContent(_ context.Context, id int) (curriculum.ContentItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if item, ok := repo.db.contents[id]; ok {
		return *item, nil
	}
	return curriculum.ContentItem{}, curriculum.ErrNotFound
}

func (repo *curriculumRepository) QueryContent(_ context.Context, filter *curriculum.ContentFilter) ([]curriculum.ContentItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]curriculum.ContentItem, 0, len(repo.db.contents))
	for _, item := range repo.db.contents {
		if filter != nil && filter.Active != nil && item.Active != *filter.Active {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].Title < items[j].Title
	})
	return items, nil
}

func (repo *curriculumRepository) CreateSchedule(_ context.Context, s curriculum.ClassSchedule) (curriculum.ClassSchedule, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.schedules {
		if existing.ClassGroup == s.ClassGroup && existing.ContentItemID == s.ContentItemID && existing.PlannedDate.Equal(s.PlannedDate) {
			return curriculum.ClassSchedule{}, curriculum.ErrScheduleExists
		}
	}
	s.ID = repo.db.nextPK()
	stored := s
	repo.db.schedules[s.ID] = &stored
	return s, nil
}

func (repo *curriculumRepository) QuerySchedules(_ context.Context, filter *curriculum.ScheduleFilter) ([]curriculum.ClassSchedule, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	schedules := make([]curriculum.ClassSchedule, 0, len(repo.db.schedules))
	for _, stored := range repo.db.schedules {
		if filter != nil && filter.ClassGroup != "" && stored.ClassGroup != filter.ClassGroup {
			continue
		}
		s := *stored
		if item, ok := repo.db.contents[s.ContentItemID]; ok {
			s.ContentTitle = item.Title
		}
		schedules = append(schedules, s)
	}
	sort.Slice(schedules, func(i, j int) bool {
		if !schedules[i].PlannedDate.Equal(schedules[j].PlannedDate) {
			return schedules[i].PlannedDate.Before(schedules[j].PlannedDate)
		}
		if schedules[i].ClassGroup != schedules[j].ClassGroup {
			return schedules[i].ClassGroup < schedules[j].ClassGroup
		}
		return schedules[i].ID < schedules[j].ID
	})
	return schedules, nil
}

func (repo *curriculumRepository) SaveProgress(_ context.Context, p curriculum.ChildProgress, _ ...core.DBExecutor) (curriculum.ChildProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.progress {
		if existing.ChildID == p.ChildID && existing.ContentItemID == p.ContentItemID {
			p.ID = existing.ID
			break
		}
	}
	if p.ID == 0 {
		p.ID = repo.db.nextPK()
	}
	stored := curriculum.ChildProgress{
		ID:            p.ID,
		ChildID:       p.ChildID,
		ContentItemID: p.ContentItemID,
		Status:        p.Status,
		Note:          p.Note,
		MarkedBy:      p.MarkedBy,
		MarkedAt:      p.MarkedAt,
	}
	repo.db.progress[p.ID] = &stored
	return p, nil
}

func (repo *curriculumRepository) QueryProgress(_ context.Context, filter *curriculum.ProgressFilter) ([]curriculum.ChildProgress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	progress := make([]curriculum.ChildProgress, 0)
	for _, stored := range repo.db.progress {
		if filter != nil {
			if len(filter.ChildIDs) > 0 && !containsInt(filter.ChildIDs, stored.ChildID) {
				continue
			}
			if filter.ContentItemID != 0 && stored.ContentItemID != filter.ContentItemID {
				continue
			}
		}
		p := *stored
		p.ChildName = repo.db.childName(p.ChildID)
		if item, ok := repo.db.contents[p.ContentItemID]; ok {
			p.ContentTitle = item.Title
			p.ContentOrder = item.Order
		}
		progress = append(progress, p)
	}

	if filter != nil && filter.LatestFirst {
		sort.Slice(progress, func(i, j int) bool {
			if !progress[i].MarkedAt.Equal(progress[j].MarkedAt) {
				return progress[i].MarkedAt.After(progress[j].MarkedAt)
			}
			return progress[i].ID > progress[j].ID
		})
	} else {
		sort.Slice(progress, func(i, j int) bool {
			if progress[i].ChildName != progress[j].ChildName {
				return progress[i].ChildName < progress[j].ChildName
			}
			if progress[i].ContentOrder != progress[j].ContentOrder {
				return progress[i].ContentOrder < progress[j].ContentOrder
			}
			return progress[i].ContentTitle < progress[j].ContentTitle
		})
	}
	if filter != nil && filter.Limit > 0 && len(progress) > filter.Limit {
		progress = progress[:filter.Limit]
	}
	return progress, nil
}

// points

type pointsRepository struct {
	db *DB
}

var _ points.Repository = (*pointsRepository)(nil) // interface compliance check

func NewPointsRepository(db *DB) *pointsRepository {
	return &pointsRepository{db: db}
}

func (repo *pointsRepository) CreateEntry(_ context.Context, e points.Entry, _ ...core.DBExecutor) (points.Entry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	e.ID = repo.db.nextPK()
	stored := points.Entry{
		ID:        e.ID,
		ChildID:   e.ChildID,
		Points:    e.Points,
		Reason:    e.Reason,
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt,
	}
	repo.db.entries[e.ID] = &stored
	return e, nil
}

func (repo *pointsRepository) QueryEntries(_ context.Context, filter *points.Filter) ([]points.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]points.Entry, 0)
	for _, stored := range repo.db.entries {
		e := *stored
		c, ok := repo.db.children[e.ChildID]
		if !ok {
			continue
		}
		e.ChildName, e.ClassGroup = c.Name, c.ClassGroup
		e.CreatedByName = repo.db.userName(e.CreatedBy)

		if filter != nil {
			if filter.ClassGroup != "" && e.ClassGroup != filter.ClassGroup {
				continue
			}
			if filter.ChildID != 0 && e.ChildID != filter.ChildID {
				continue
			}
			if len(filter.ChildIDs) > 0 && !containsInt(filter.ChildIDs, e.ChildID) {
				continue
			}
			if !filter.From.IsZero() && e.CreatedAt.Before(filter.From.Time) {
				continue
			}
			if !filter.To.IsZero() && !e.CreatedAt.Before(filter.To.AddDays(1).Time) {
				continue
			}
			if filter.GuardianID != 0 && !repo.db.isGuardianOf(filter.GuardianID, e.ChildID) {
				continue
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
	if filter != nil && filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (repo *pointsRepository) SumPoints(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	total := 0
	for _, e := range repo.db.entries {
		total += e.Points
	}
	return total, nil
}
