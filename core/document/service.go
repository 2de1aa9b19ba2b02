// Package document tracks the documents each child must hand in to the club.
package document

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

var (
	ErrNotFound     = core.NewNotFoundError("child document")
	ErrTypeNotFound = core.NewNotFoundError("document type")
	ErrNoGuardian   = core.NewValidationError(errors.New("Nenhum responsável vinculado."))

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateType(ctx context.Context, t Type) (Type, error)
		UpdateType(ctx context.Context, t Type) (Type, error)
		GetType(ctx context.Context, id int) (Type, error)
		// QueryTypes is ordered by name.
		QueryTypes(ctx context.Context, activeOnly bool) ([]Type, error)
		// GetOrCreateDocument returns the document of (child, type), creating it as PENDENTE.
		GetOrCreateDocument(ctx context.Context, childID, typeID int) (Document, error)
		GetDocument(ctx context.Context, id int) (Document, error)
		// QueryDocuments is ordered by class group, child name then type name.
		QueryDocuments(ctx context.Context, filter *Filter) ([]Document, error)
		UpdateDocument(ctx context.Context, d Document) (Document, error)
		CreateFile(ctx context.Context, f File) (File, error)
		QueryFiles(ctx context.Context, documentID int) ([]File, error)
		CreateRequest(ctx context.Context, r Request) (Request, error)
		// QueryRequests returns the requests of a child, newest first.
		QueryRequests(ctx context.Context, childID int) ([]Request, error)
	}

	Service interface {
		Types(ctx context.Context, activeOnly bool) ([]Type, error)
		CreateType(ctx context.Context, tf TypeForm) (Type, error)
		UpdateType(ctx context.Context, id int, tf TypeForm) (Type, error)
		Overview(ctx context.Context) (Overview, error)
		// ChildDocuments makes sure the child has one document per active type and lists them.
		ChildDocuments(ctx context.Context, childID int) (ChildDocuments, error)
		UpdateStatus(ctx context.Context, childID, docID int, sf StatusForm, updatedBy int) (Document, error)
		Upload(ctx context.Context, childID, docID int, upload core.Upload, uploadedBy int) (File, error)
		Files(ctx context.Context, childID, docID int) ([]File, error)
		// RequestDocument records a WhatsApp request to the child's guardian and returns it with the wa.me link.
		RequestDocument(ctx context.Context, childID, typeID int, requestedBy int) (Request, error)
		GuardianDocuments(ctx context.Context, guardianID int) ([]ChildDocuments, error)
		// Recent lists the child's documents, last updated first.
		Recent(ctx context.Context, childID, limit int) ([]Document, error)
	}

	service struct {
		repo     Repository
		children child.Service
		storage  core.FileStorage
		logger   core.Logger
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, children child.Service, storage core.FileStorage, logger core.Logger, conf *core.Config) Service {
	return &service{repo: repo, children: children, storage: storage, logger: logger, conf: conf}
}

func (svc *service) today() core.Date {
	return core.Today(NowFunc(), svc.conf.Finance.Location)
}

func (svc *service) Types(ctx context.Context, activeOnly bool) ([]Type, error) {
	return svc.repo.QueryTypes(ctx, activeOnly)
}

func (svc *service) CreateType(ctx context.Context, tf TypeForm) (Type, error) {
	t := Type{Required: true, Active: true}
	tf.apply(&t)
	t, err := svc.repo.CreateType(ctx, t)
	if err != nil {
		return Type{}, errors.Wrap(err, "creating document type")
	}
	return t, nil
}

func (svc *service) UpdateType(ctx context.Context, id int, tf TypeForm) (Type, error) {
	t, err := svc.repo.GetType(ctx, id)
	if err != nil {
		return Type{}, err
	}
	tf.apply(&t)
	if t, err = svc.repo.UpdateType(ctx, t); err != nil {
		return Type{}, errors.Wrap(err, "updating document type")
	}
	return t, nil
}

func (svc *service) Overview(ctx context.Context) (Overview, error) {
	types, err := svc.repo.QueryTypes(ctx, true)
	if err != nil {
		return Overview{}, errors.Wrap(err, "querying document types")
	}
	active := true
	kids, err := svc.children.Query(ctx, &child.QueryFilter{Active: &active})
	if err != nil {
		return Overview{}, errors.Wrap(err, "querying children")
	}
	docs, err := svc.repo.QueryDocuments(ctx, &Filter{ActiveOnly: true})
	if err != nil {
		return Overview{}, errors.Wrap(err, "querying documents")
	}

	type key struct{ child, typ int }
	byKey := make(map[key]Document, len(docs))
	for _, d := range docs {
		byKey[key{d.ChildID, d.TypeID}] = d
	}

	today := svc.today()
	ov := Overview{Types: types, Children: make([]ChildDocuments, 0, len(kids)), Pending: make(map[int]int, len(types))}
	for _, c := range kids {
		cd := ChildDocuments{Child: c, Documents: make([]Document, 0, len(types))}
		for _, t := range types {
			d, ok := byKey[key{c.ID, t.ID}]
			if !ok {
				d = Document{ChildID: c.ID, TypeID: t.ID, Status: StatusPendente, TypeName: t.Name}
			}
			d.Status = d.Effective(today)
			if d.Status != StatusRecebido {
				cd.Pending++
				ov.Pending[t.ID]++
			}
			cd.Documents = append(cd.Documents, d)
		}
		ov.Children = append(ov.Children, cd)
	}
	return ov, nil
}

func (svc *service) ensureDocuments(ctx context.Context, childID int) ([]Document, error) {
	types, err := svc.repo.QueryTypes(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "querying document types")
	}
	for _, t := range types {
		if _, err := svc.repo.GetOrCreateDocument(ctx, childID, t.ID); err != nil {
			return nil, errors.Wrapf(err, "creating document %d of child %d", t.ID, childID)
		}
	}
	docs, err := svc.repo.QueryDocuments(ctx, &Filter{ChildID: childID})
	if err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	today := svc.today()
	for i := range docs {
		docs[i].Status = docs[i].Effective(today)
	}
	return docs, nil
}

func (svc *service) ChildDocuments(ctx context.Context, childID int) (ChildDocuments, error) {
	c, err := svc.children.Get(ctx, childID)
	if err != nil {
		return ChildDocuments{}, err
	}
	docs, err := svc.ensureDocuments(ctx, c.ID)
	if err != nil {
		return ChildDocuments{}, err
	}
	requests, err := svc.repo.QueryRequests(ctx, c.ID)
	if err != nil {
		return ChildDocuments{}, errors.Wrap(err, "querying requests")
	}
	return newChildDocuments(c, docs, requests), nil
}

func newChildDocuments(c child.Child, docs []Document, requests []Request) ChildDocuments {
	cd := ChildDocuments{Child: c, Documents: docs, Requests: requests}
	for _, d := range docs {
		if d.Status != StatusRecebido {
			cd.Pending++
		}
	}
	return cd
}

// childDocument loads a document and checks it belongs to the child.
func (svc *service) childDocument(ctx context.Context, childID, docID int) (Document, error) {
	d, err := svc.repo.GetDocument(ctx, docID)
	if err != nil {
		return Document{}, err
	}
	if d.ChildID != childID {
		return Document{}, ErrNotFound
	}
	return d, nil
}

func (svc *service) UpdateStatus(ctx context.Context, childID, docID int, sf StatusForm, updatedBy int) (Document, error) {
	d, err := svc.childDocument(ctx, childID, docID)
	if err != nil {
		return Document{}, err
	}
	today := svc.today()
	d.Status = sf.Status
	d.Note = sf.Note
	d.UpdatedBy = updatedBy
	d.UpdatedAt = NowFunc().UTC()
	if sf.ReceivedDate != nil && !sf.ReceivedDate.IsZero() {
		d.ReceivedDate = sf.ReceivedDate
	}
	if d.Status == StatusRecebido {
		if d.ReceivedDate == nil || d.ReceivedDate.IsZero() {
			d.ReceivedDate = &today
		}
		d.ApplyValidity(today)
	}
	if d, err = svc.repo.UpdateDocument(ctx, d); err != nil {
		return Document{}, errors.Wrap(err, "updating document")
	}
	return d, nil
}

func (svc *service) Upload(ctx context.Context, childID, docID int, upload core.Upload, uploadedBy int) (File, error) {
	d, err := svc.childDocument(ctx, childID, docID)
	if err != nil {
		return File{}, err
	}
	name := path.Join("documents", strconv.Itoa(childID), strconv.Itoa(d.ID)+path.Ext(upload.Filename))
	fileURL, err := svc.storage.Save(ctx, name, upload.Content, upload.ContentType)
	if err != nil {
		return File{}, errors.Wrap(err, "storing document file")
	}
	f, err := svc.repo.CreateFile(ctx, File{DocumentID: d.ID, FileURL: fileURL, UploadedBy: uploadedBy, UploadedAt: NowFunc().UTC()})
	if err != nil {
		if derr := svc.storage.Delete(ctx, fileURL); derr != nil {
			svc.logger.Warn(fmt.Sprintf("removing orphan file %s: %v", fileURL, derr))
		}
		return File{}, errors.Wrap(err, "saving document file")
	}
	return f, nil
}

func (svc *service) Files(ctx context.Context, childID, docID int) ([]File, error) {
	d, err := svc.childDocument(ctx, childID, docID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryFiles(ctx, d.ID)
}

func (svc *service) RequestDocument(ctx context.Context, childID, typeID int, requestedBy int) (Request, error) {
	c, err := svc.children.Get(ctx, childID)
	if err != nil {
		return Request{}, err
	}
	t, err := svc.repo.GetType(ctx, typeID)
	if err != nil {
		return Request{}, err
	}
	links, err := svc.children.Guardians(ctx, c.ID)
	if err != nil {
		return Request{}, errors.Wrap(err, "querying guardians")
	}
	if len(links) == 0 {
		return Request{}, ErrNoGuardian
	}
	guardian := links[0]

	name := guardian.GuardianName
	if name == "" {
		name = guardian.GuardianWhatsapp
	}
	msg := fmt.Sprintf(
		"Olá %s,\nPrecisamos do documento '%s' de %s.\nEnvie foto deste documento aqui no WhatsApp. Obrigado!",
		name, t.Name, c.Name,
	)
	phone := guardian.FinancialWhatsapp
	if phone == "" {
		phone = guardian.GuardianWhatsapp
	}

	r, err := svc.repo.CreateRequest(ctx, Request{
		ChildID:     c.ID,
		TypeID:      t.ID,
		Channel:     ChannelWhatsapp,
		Status:      RequestEnviado,
		Message:     msg,
		RequestedBy: requestedBy,
		CreatedAt:   NowFunc().UTC(),
	})
	if err != nil {
		return Request{}, errors.Wrap(err, "creating document request")
	}
	r.TypeName = t.Name
	r.WhatsappURL = WhatsappURL(phone, msg)
	return r, nil
}

// WhatsappURL builds the wa.me link that opens a chat with `phone` prefilled with `text`.
func WhatsappURL(phone, text string) string {
	return "https://wa.me/" + core.DigitsOnly(phone) + "?" + url.Values{"text": {text}}.Encode()
}

func (svc *service) GuardianDocuments(ctx context.Context, guardianID int) ([]ChildDocuments, error) {
	kids, err := svc.children.GuardianChildren(ctx, guardianID)
	if err != nil {
		return nil, errors.Wrap(err, "querying guardian children")
	}
	res := make([]ChildDocuments, 0, len(kids))
	for _, c := range kids {
		docs, err := svc.ensureDocuments(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, newChildDocuments(c, docs, nil))
	}
	return res, nil
}

func (svc *service) Recent(ctx context.Context, childID, limit int) ([]Document, error) {
	docs, err := svc.repo.QueryDocuments(ctx, &Filter{ChildID: childID})
	if err != nil {
		return nil, err
	}
	today := svc.today()
	for i := range docs {
		docs[i].Status = docs[i].Effective(today)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}
