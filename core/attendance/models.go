package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

// Session types
const (
	TypeReuniao = "REUNIAO"
	TypeEvento  = "EVENTO"
	TypeAula    = "AULA"
)

var TypeLabels = map[string]string{
	TypeReuniao: "Reunião",
	TypeEvento:  "Evento",
	TypeAula:    "Aula",
}

type Session struct {
	ID         int       `json:"id"`
	Date       core.Date `json:"date"`
	Type       string    `json:"type"`
	ClassGroup string    `json:"class_group"`
	CreatedBy  int       `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Record struct {
	ID        int       `json:"id"`
	SessionID int       `json:"session_id"`
	ChildID   int       `json:"child_id"`
	Present   bool      `json:"present"`
	Note      string    `json:"note"`
	MarkedBy  int       `json:"marked_by,omitempty"`
	MarkedAt  time.Time `json:"marked_at"`

	// read only
	ChildName   string    `json:"child_name,omitempty"`
	SessionDate core.Date `json:"session_date"`
	SessionType string    `json:"session_type,omitempty"`
}

type SessionForm struct {
	Date       core.Date `json:"date"`
	Type       string    `json:"type" validate:"required,oneof=REUNIAO EVENTO AULA"`
	ClassGroup string    `json:"class_group" validate:"omitempty,classgroup"`
}

func (sf *SessionForm) Validate(validate *validator.Validate) error {
	sf.Type = core.CleanString(sf.Type)
	sf.ClassGroup = core.CleanString(sf.ClassGroup)
	if err := validate.Struct(sf); err != nil {
		return err
	}
	if sf.Date.IsZero() {
		return core.NewFieldError("date", "este campo é obrigatório")
	}
	return nil
}

// Mark is the attendance of one child in a session.
type Mark struct {
	ChildID int    `json:"child_id"`
	Present bool   `json:"present"`
	Note    string `json:"note" validate:"max=255"`
}

// SheetEntry is a line of the attendance sheet: the child and its current mark, if any.
type SheetEntry struct {
	Child   child.Child `json:"child"`
	Present bool        `json:"present"`
	Note    string      `json:"note"`
	Marked  bool        `json:"marked"`
}

type Sheet struct {
	Session Session      `json:"session"`
	Entries []SheetEntry `json:"entries"`
}

type RecordFilter struct {
	SessionID  int
	ChildID    int
	GuardianID int
	Limit      int
}
