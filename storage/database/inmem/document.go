package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/document"
)

type documentRepository struct {
	db *DB
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(db *DB) *documentRepository {
	return &documentRepository{db: db}
}

func (repo *documentRepository) CreateType(_ context.Context, t document.Type) (document.Type, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t.ID = repo.db.nextPK()
	stored := t
	repo.db.docTypes[t.ID] = &stored
	return t, nil
}

func (repo *documentRepository) UpdateType(_ context.Context, t document.Type) (document.Type, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.docTypes[t.ID]; !ok {
		return document.Type{}, document.ErrTypeNotFound
	}
	stored := t
	repo.db.docTypes[t.ID] = &stored
	return t, nil
}

func (repo *documentRepository) GetType(_ context.Context, id int) (document.Type, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.docTypes[id]; ok {
		return *t, nil
	}
	return document.Type{}, document.ErrTypeNotFound
}

func (repo *documentRepository) QueryTypes(_ context.Context, activeOnly bool) ([]document.Type, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	types := make([]document.Type, 0, len(repo.db.docTypes))
	for _, t := range repo.db.docTypes {
		if activeOnly && !t.Active {
			continue
		}
		types = append(types, *t)
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Name != types[j].Name {
			return types[i].Name < types[j].Name
		}
		return types[i].ID < types[j].ID
	})
	return types, nil
}

// document must be called with the lock held.
func (repo *documentRepository) document(d *document.Document) document.Document {
	doc := *d
	if t, ok := repo.db.docTypes[d.TypeID]; ok {
		doc.TypeName = t.Name
		doc.ValidityDays = t.ValidityDays
	}
	if c, ok := repo.db.children[d.ChildID]; ok {
		doc.ChildName = c.Name
		doc.ClassGroup = c.ClassGroup
	}
	return doc
}

func (repo *documentRepository) GetOrCreateDocument(_ context.Context, childID, typeID int) (document.Document, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, d := range repo.db.documents {
		if d.ChildID == childID && d.TypeID == typeID {
			return repo.document(d), nil
		}
	}
	if _, ok := repo.db.children[childID]; !ok {
		return document.Document{}, document.ErrNotFound
	}
	if _, ok := repo.db.docTypes[typeID]; !ok {
		return document.Document{}, document.ErrNotFound
	}
	d := &document.Document{
		ID:        repo.db.nextPK(),
		ChildID:   childID,
		TypeID:    typeID,
		Status:    document.StatusPendente,
		UpdatedAt: time.Now().UTC(),
	}
	repo.db.documents[d.ID] = d
	return repo.document(d), nil
}

func (repo *documentRepository) GetDocument(_ context.Context, id int) (document.Document, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if d, ok := repo.db.documents[id]; ok {
		return repo.document(d), nil
	}
	return document.Document{}, document.ErrNotFound
}

func (repo *documentRepository) QueryDocuments(_ context.Context, filter *document.Filter) ([]document.Document, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	docs := make([]document.Document, 0)
	for _, stored := range repo.db.documents {
		if filter != nil {
			if filter.ChildID != 0 && stored.ChildID != filter.ChildID {
				continue
			}
			if len(filter.ChildIDs) > 0 && !containsInt(filter.ChildIDs, stored.ChildID) {
				continue
			}
			if filter.ActiveOnly {
				c, cok := repo.db.children[stored.ChildID]
				t, tok := repo.db.docTypes[stored.TypeID]
				if !cok || !tok || !c.Active || !t.Active {
					continue
				}
			}
		}
		docs = append(docs, repo.document(stored))
	}
	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.ClassGroup != b.ClassGroup {
			return a.ClassGroup < b.ClassGroup
		}
		if a.ChildName != b.ChildName {
			return a.ChildName < b.ChildName
		}
		if a.TypeName != b.TypeName {
			return a.TypeName < b.TypeName
		}
		return a.ID < b.ID
	})
	return docs, nil
}

func (repo *documentRepository) UpdateDocument(_ context.Context, d document.Document) (document.Document, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.documents[d.ID]
	if !ok {
		return document.Document{}, document.ErrNotFound
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	stored.Status = d.Status
	stored.ReceivedDate = copyDate(d.ReceivedDate)
	stored.ValidUntil = copyDate(d.ValidUntil)
	stored.Note = d.Note
	stored.UpdatedBy = d.UpdatedBy
	stored.UpdatedAt = d.UpdatedAt
	return repo.document(stored), nil
}

func (repo *documentRepository) CreateFile(_ context.Context, f document.File) (document.File, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	f.ID = repo.db.nextPK()
	stored := f
	repo.db.files[f.ID] = &stored
	return f, nil
}

func (repo *documentRepository) QueryFiles(_ context.Context, documentID int) ([]document.File, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	files := make([]document.File, 0)
	for _, f := range repo.db.files {
		if f.DocumentID == documentID {
			files = append(files, *f)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].UploadedAt.Equal(files[j].UploadedAt) {
			return files[i].UploadedAt.After(files[j].UploadedAt)
		}
		return files[i].ID > files[j].ID
	})
	return files, nil
}

func (repo *documentRepository) CreateRequest(_ context.Context, r document.Request) (document.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.ID = repo.db.nextPK()
	stored := r
	stored.TypeName, stored.WhatsappURL = "", ""
	repo.db.requests[r.ID] = &stored
	return r, nil
}

func (repo *documentRepository) QueryRequests(_ context.Context, childID int) ([]document.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	requests := make([]document.Request, 0)
	for _, stored := range repo.db.requests {
		if stored.ChildID != childID {
			continue
		}
		r := *stored
		if t, ok := repo.db.docTypes[r.TypeID]; ok {
			r.TypeName = t.Name
		}
		requests = append(requests, r)
	}
	sort.Slice(requests, func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.After(requests[j].CreatedAt)
		}
		return requests[i].ID > requests[j].ID
	})
	return requests, nil
}

func copyDate(d *core.Date) *core.Date {
	if d == nil {
		return nil
	}
	date := *d
	return &date
}
