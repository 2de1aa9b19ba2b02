package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pinhaljunior/aventureiros/core/document"
)

var docTypeColumns = []string{"id", "name", "required", "validity_days", "active"}

type docTypeRow struct {
	ID           int      `db:"id"`
	Name         string   `db:"name"`
	Required     bool     `db:"required"`
	ValidityDays null.Int `db:"validity_days"`
	Active       bool     `db:"active"`
}

func (r docTypeRow) docType() document.Type {
	return document.Type{
		ID:           r.ID,
		Name:         r.Name,
		Required:     r.Required,
		ValidityDays: intPtr(r.ValidityDays),
		Active:       r.Active,
	}
}

type documentRow struct {
	ID           int       `db:"id"`
	ChildID      int       `db:"child_id"`
	TypeID       int       `db:"document_type_id"`
	Status       string    `db:"status"`
	ReceivedDate null.Time `db:"received_date"`
	ValidUntil   null.Time `db:"valid_until"`
	Note         string    `db:"note"`
	UpdatedBy    null.Int  `db:"updated_by"`
	UpdatedAt    time.Time `db:"updated_at"`

	TypeName     string   `db:"type_name"`
	ValidityDays null.Int `db:"validity_days"`
	ChildName    string   `db:"child_name"`
	ClassGroup   string   `db:"class_group"`
}

func (r documentRow) document() document.Document {
	return document.Document{
		ID:           r.ID,
		ChildID:      r.ChildID,
		TypeID:       r.TypeID,
		Status:       r.Status,
		ReceivedDate: datePtr(r.ReceivedDate),
		ValidUntil:   datePtr(r.ValidUntil),
		Note:         r.Note,
		UpdatedBy:    r.UpdatedBy.Int,
		UpdatedAt:    r.UpdatedAt.UTC(),
		TypeName:     r.TypeName,
		ValidityDays: intPtr(r.ValidityDays),
		ChildName:    r.ChildName,
		ClassGroup:   r.ClassGroup,
	}
}

type fileRow struct {
	ID         int       `db:"id"`
	DocumentID int       `db:"child_document_id"`
	FileURL    string    `db:"file_url"`
	UploadedBy null.Int  `db:"uploaded_by"`
	UploadedAt time.Time `db:"uploaded_at"`
}

type requestRow struct {
	ID          int       `db:"id"`
	ChildID     int       `db:"child_id"`
	TypeID      int       `db:"document_type_id"`
	Channel     string    `db:"channel"`
	Status      string    `db:"status"`
	Message     string    `db:"message"`
	RequestedBy null.Int  `db:"requested_by"`
	CreatedAt   time.Time `db:"created_at"`

	TypeName string `db:"type_name"`
}

type documentRepository struct {
	base
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(db *sqlx.DB) *documentRepository {
	return &documentRepository{base{db: db}}
}

func (repo documentRepository) CreateType(ctx context.Context, t document.Type) (document.Type, error) {
	var row docTypeRow
	q := psql.Insert("document_types").
		Columns("name", "required", "validity_days", "active").
		Values(t.Name, t.Required, ptrInt(t.ValidityDays), t.Active).
		Suffix("RETURNING " + strings.Join(docTypeColumns, ", "))
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return document.Type{}, errors.Wrap(err, "inserting document type")
	}
	return row.docType(), nil
}

func (repo documentRepository) UpdateType(ctx context.Context, t document.Type) (document.Type, error) {
	var row docTypeRow
	q := psql.Update("document_types").
		Set("name", t.Name).
		Set("required", t.Required).
		Set("validity_days", ptrInt(t.ValidityDays)).
		Set("active", t.Active).
		Where(sq.Eq{"id": t.ID}).
		Suffix("RETURNING " + strings.Join(docTypeColumns, ", "))
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return document.Type{}, trapNoRowsErr(err, document.ErrTypeNotFound, "updating document type")
	}
	return row.docType(), nil
}

func (repo documentRepository) GetType(ctx context.Context, id int) (document.Type, error) {
	var row docTypeRow
	q := psql.Select(docTypeColumns...).From("document_types").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return document.Type{}, trapNoRowsErr(err, document.ErrTypeNotFound, "getting document type")
	}
	return row.docType(), nil
}

func (repo documentRepository) QueryTypes(ctx context.Context, activeOnly bool) ([]document.Type, error) {
	q := psql.Select(docTypeColumns...).From("document_types").OrderBy("name")
	if activeOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	var rows []docTypeRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying document types")
	}
	types := make([]document.Type, 0, len(rows))
	for _, r := range rows {
		types = append(types, r.docType())
	}
	return types, nil
}

func (repo documentRepository) documentQuery() sq.SelectBuilder {
	return psql.Select(
		"d.id", "d.child_id", "d.document_type_id", "d.status", "d.received_date", "d.valid_until",
		"d.note", "d.updated_by", "d.updated_at",
		"t.name AS type_name", "t.validity_days", "c.name AS child_name", "c.class_group",
	).
		From("child_documents d").
		Join("document_types t ON t.id = d.document_type_id").
		Join("children c ON c.id = d.child_id")
}

func (repo documentRepository) GetOrCreateDocument(ctx context.Context, childID, typeID int) (document.Document, error) {
	ins := psql.Insert("child_documents").
		Columns("child_id", "document_type_id", "status", "updated_at").
		Values(childID, typeID, document.StatusPendente, time.Now().UTC()).
		Suffix("ON CONFLICT (child_id, document_type_id) DO NOTHING")
	if _, err := repo.exec(ctx, repo.db, ins); err != nil {
		return document.Document{}, errors.Wrap(err, "inserting child document")
	}

	var row documentRow
	q := repo.documentQuery().Where(sq.Eq{"d.child_id": childID, "d.document_type_id": typeID})
	if err := repo.get(ctx, repo.db, &row, q); err != nil {
		return document.Document{}, trapNoRowsErr(err, document.ErrNotFound, "getting child document")
	}
	return row.document(), nil
}

func (repo documentRepository) GetDocument(ctx context.Context, id int) (document.Document, error) {
	var row documentRow
	if err := repo.get(ctx, repo.db, &row, repo.documentQuery().Where(sq.Eq{"d.id": id})); err != nil {
		return document.Document{}, trapNoRowsErr(err, document.ErrNotFound, "getting child document")
	}
	return row.document(), nil
}

func (repo documentRepository) QueryDocuments(ctx context.Context, filter *document.Filter) ([]document.Document, error) {
	q := repo.documentQuery().OrderBy("c.class_group", "c.name", "t.name")
	if filter != nil {
		if filter.ChildID != 0 {
			q = q.Where(sq.Eq{"d.child_id": filter.ChildID})
		}
		if len(filter.ChildIDs) > 0 {
			q = q.Where(sq.Eq{"d.child_id": filter.ChildIDs})
		}
		if filter.ActiveOnly {
			q = q.Where(sq.Eq{"c.active": true, "t.active": true})
		}
	}

	var rows []documentRow
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying child documents")
	}
	docs := make([]document.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.document())
	}
	return docs, nil
}

func (repo documentRepository) UpdateDocument(ctx context.Context, d document.Document) (document.Document, error) {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	q := psql.Update("child_documents").
		Set("status", d.Status).
		Set("received_date", nullDate(d.ReceivedDate)).
		Set("valid_until", nullDate(d.ValidUntil)).
		Set("note", d.Note).
		Set("updated_by", nullID(d.UpdatedBy)).
		Set("updated_at", d.UpdatedAt.UTC()).
		Where(sq.Eq{"id": d.ID})
	res, err := repo.exec(ctx, repo.db, q)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "updating child document")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return document.Document{}, document.ErrNotFound
	}
	return repo.GetDocument(ctx, d.ID)
}

func (repo documentRepository) CreateFile(ctx context.Context, f document.File) (document.File, error) {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	var id int
	q := psql.Insert("document_files").
		Columns("child_document_id", "file_url", "uploaded_by", "uploaded_at").
		Values(f.DocumentID, f.FileURL, nullID(f.UploadedBy), f.UploadedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, repo.db, &id, q); err != nil {
		return document.File{}, errors.Wrap(err, "inserting document file")
	}
	f.ID = id
	return f, nil
}

func (repo documentRepository) QueryFiles(ctx context.Context, documentID int) ([]document.File, error) {
	var rows []fileRow
	q := psql.Select("id", "child_document_id", "file_url", "uploaded_by", "uploaded_at").
		From("document_files").
		Where(sq.Eq{"child_document_id": documentID}).
		OrderBy("uploaded_at DESC", "id DESC")
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying document files")
	}
	files := make([]document.File, 0, len(rows))
	for _, r := range rows {
		files = append(files, document.File{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			FileURL:    r.FileURL,
			UploadedBy: r.UploadedBy.Int,
			UploadedAt: r.UploadedAt.UTC(),
		})
	}
	return files, nil
}

func (repo documentRepository) CreateRequest(ctx context.Context, r document.Request) (document.Request, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	var id int
	q := psql.Insert("document_requests").
		Columns("child_id", "document_type_id", "channel", "status", "message", "requested_by", "created_at").
		Values(r.ChildID, r.TypeID, r.Channel, r.Status, r.Message, nullID(r.RequestedBy), r.CreatedAt.UTC()).
		Suffix("RETURNING id")
	if err := repo.get(ctx, repo.db, &id, q); err != nil {
		return document.Request{}, errors.Wrap(err, "inserting document request")
	}
	r.ID = id
	return r, nil
}

func (repo documentRepository) QueryRequests(ctx context.Context, childID int) ([]document.Request, error) {
	var rows []requestRow
	q := psql.Select(
		"r.id", "r.child_id", "r.document_type_id", "r.channel", "r.status", "r.message", "r.requested_by", "r.created_at",
		"t.name AS type_name",
	).
		From("document_requests r").
		Join("document_types t ON t.id = r.document_type_id").
		Where(sq.Eq{"r.child_id": childID}).
		OrderBy("r.created_at DESC", "r.id DESC")
	if err := repo.selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying document requests")
	}
	requests := make([]document.Request, 0, len(rows))
	for _, r := range rows {
		requests = append(requests, document.Request{
			ID:          r.ID,
			ChildID:     r.ChildID,
			TypeID:      r.TypeID,
			Channel:     r.Channel,
			Status:      r.Status,
			Message:     r.Message,
			RequestedBy: r.RequestedBy.Int,
			CreatedAt:   r.CreatedAt.UTC(),
			TypeName:    r.TypeName,
		})
	}
	return requests, nil
}
