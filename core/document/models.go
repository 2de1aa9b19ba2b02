package document

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

// Document statuses
const (
	StatusPendente  = "PENDENTE"
	StatusRecebido  = "RECEBIDO"
	StatusVencido   = "VENCIDO"
	StatusRejeitado = "REJEITADO"
)

// Request channels and statuses
const (
	ChannelWhatsapp = "WHATSAPP"
	ChannelSite     = "SITE"

	RequestEnviado    = "ENVIADO"
	RequestRespondido = "RESPONDIDO"
	RequestResolvido  = "RESOLVIDO"
)

var StatusLabels = map[string]string{
	StatusPendente:  "Pendente",
	StatusRecebido:  "Recebido",
	StatusVencido:   "Vencido",
	StatusRejeitado: "Rejeitado",
}

type Type struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Required     bool   `json:"required"`
	ValidityDays *int   `json:"validity_days"`
	Active       bool   `json:"active"`
}

type Document struct {
	ID           int        `json:"id"`
	ChildID      int        `json:"child_id"`
	TypeID       int        `json:"document_type_id"`
	Status       string     `json:"status"`
	ReceivedDate *core.Date `json:"received_date"`
	ValidUntil   *core.Date `json:"valid_until"`
	Note         string     `json:"note"`
	UpdatedBy    int        `json:"updated_by,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// read only
	TypeName     string `json:"document_type,omitempty"`
	ValidityDays *int   `json:"validity_days,omitempty"`
	ChildName    string `json:"child_name,omitempty"`
	ClassGroup   string `json:"class_group,omitempty"`
}

// ApplyValidity sets the validity end of a received document whose type expires, and marks it
// VENCIDO once that day has passed.
func (d *Document) ApplyValidity(today core.Date) {
	if d.ValidityDays == nil || *d.ValidityDays <= 0 || d.ReceivedDate == nil || d.ReceivedDate.IsZero() {
		return
	}
	until := d.ReceivedDate.AddDays(*d.ValidityDays)
	d.ValidUntil = &until
	if until.Before(today) {
		d.Status = StatusVencido
	}
}

// Effective is the status shown to users: a received document past its validity is expired.
func (d Document) Effective(today core.Date) string {
	if d.Status == StatusRecebido && d.ValidUntil != nil && d.ValidUntil.Before(today) {
		return StatusVencido
	}
	return d.Status
}

type File struct {
	ID         int       `json:"id"`
	DocumentID int       `json:"child_document_id"`
	FileURL    string    `json:"file_url"`
	UploadedBy int       `json:"uploaded_by,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Request struct {
	ID          int       `json:"id"`
	ChildID     int       `json:"child_id"`
	TypeID      int       `json:"document_type_id"`
	Channel     string    `json:"channel"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	RequestedBy int       `json:"requested_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// read only
	TypeName    string `json:"document_type,omitempty"`
	WhatsappURL string `json:"whatsapp_url,omitempty"`
}

type TypeForm struct {
	Name         string `json:"name" validate:"required,max=120"`
	Required     *bool  `json:"required"`
	ValidityDays *int   `json:"validity_days" validate:"omitempty,min=1"`
	Active       *bool  `json:"active"`
}

func (tf *TypeForm) Validate(validate *validator.Validate) error {
	tf.Name = core.CleanString(tf.Name)
	return validate.Struct(tf)
}

func (tf TypeForm) apply(t *Type) {
	t.Name = tf.Name
	t.ValidityDays = tf.ValidityDays
	if tf.Required != nil {
		t.Required = *tf.Required
	}
	if tf.Active != nil {
		t.Active = *tf.Active
	}
}

type StatusForm struct {
	Status       string     `json:"status" validate:"required,oneof=PENDENTE RECEBIDO VENCIDO REJEITADO"`
	ReceivedDate *core.Date `json:"received_date"`
	Note         string     `json:"note"`
}

func (sf *StatusForm) Validate(validate *validator.Validate) error {
	sf.Status = core.CleanString(sf.Status)
	sf.Note = core.CleanString(sf.Note)
	if err := validate.Struct(sf); err != nil {
		return err
	}
	if sf.Status == StatusRejeitado && sf.Note == "" {
		return core.NewFieldError("note", "Informe o motivo da rejeição.")
	}
	return nil
}

type Filter struct {
	ChildID  int
	ChildIDs []int
	// ActiveOnly limits to active children and active document types.
	ActiveOnly bool
}

type ChildDocuments struct {
	Child     child.Child `json:"child"`
	Documents []Document  `json:"documents"`
	Requests  []Request   `json:"requests,omitempty"`
	Pending   int         `json:"pending"`
}

type Overview struct {
	Types    []Type           `json:"types"`
	Children []ChildDocuments `json:"children"`
	// Pending counts, per document type id, the children whose document is not received.
	Pending map[int]int `json:"pending"`
}
