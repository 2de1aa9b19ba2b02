package curriculum

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
)

// Schedule statuses
const (
	SchedulePlanejado = "PLANEJADO"
	ScheduleDado      = "DADO"
)

// Progress statuses
const (
	ProgressNaoIniciado = "NAO_INICIADO"
	ProgressAndamento   = "EM_ANDAMENTO"
	ProgressConcluido   = "CONCLUIDO"
)

var ProgressLabels = map[string]string{
	ProgressNaoIniciado: "Não iniciado",
	ProgressAndamento:   "Em andamento",
	ProgressConcluido:   "Concluído",
}

type ContentItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
	Module      string `json:"module"`
	Active      bool   `json:"active"`
}

type ClassSchedule struct {
	ID            int       `json:"id"`
	ClassGroup    string    `json:"class_group"`
	ContentItemID int       `json:"content_item_id"`
	PlannedDate   core.Date `json:"planned_date"`
	Status        string    `json:"status"`
	CreatedBy     int       `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	// read only
	ContentTitle string `json:"content_title,omitempty"`
}

type ChildProgress struct {
	ID            int       `json:"id"`
	ChildID       int       `json:"child_id"`
	ContentItemID int       `json:"content_item_id"`
	Status        string    `json:"status"`
	Note          string    `json:"note"`
	MarkedBy      int       `json:"marked_by,omitempty"`
	MarkedAt      time.Time `json:"marked_at"`

	// read only
	ChildName    string `json:"child_name,omitempty"`
	ContentTitle string `json:"content_title,omitempty"`
	ContentOrder int    `json:"content_order"`
}

type ContentForm struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Order       *int   `json:"order"`
	Module      string `json:"module" validate:"max=100"`
	Active      *bool  `json:"active"`
}

func (cf *ContentForm) Validate(validate *validator.Validate) error {
	cf.Title = core.CleanString(cf.Title)
	cf.Module = core.CleanString(cf.Module)
	cf.Description = core.CleanString(cf.Description)
	return validate.Struct(cf)
}

func (cf ContentForm) apply(item *ContentItem) {
	item.Title = cf.Title
	item.Description = cf.Description
	item.Module = cf.Module
	if cf.Order != nil {
		item.Order = *cf.Order
	}
	if cf.Active != nil {
		item.Active = *cf.Active
	}
}

type ScheduleForm struct {
	ClassGroup    string    `json:"class_group" validate:"required,classgroup"`
	ContentItemID int       `json:"content_item_id" validate:"required"`
	PlannedDate   core.Date `json:"planned_date"`
	Status        string    `json:"status" validate:"omitempty,oneof=PLANEJADO DADO"`
}

func (sf *ScheduleForm) Validate(validate *validator.Validate) error {
	sf.ClassGroup = core.CleanString(sf.ClassGroup)
	sf.Status = core.CleanString(sf.Status)
	if err := validate.Struct(sf); err != nil {
		return err
	}
	if sf.PlannedDate.IsZero() {
		return core.NewFieldError("planned_date", "este campo é obrigatório")
	}
	return nil
}

// ProgressMark is one line of a progress sheet submission. Lines without a status are skipped.
type ProgressMark struct {
	ChildID int    `json:"child_id"`
	Status  string `json:"status" validate:"omitempty,oneof=NAO_INICIADO EM_ANDAMENTO CONCLUIDO"`
	Note    string `json:"note"`
}

type ProgressForm struct {
	ClassGroup    string         `json:"class_group" validate:"required,classgroup"`
	ContentItemID int            `json:"content_item_id" validate:"required"`
	Marks         []ProgressMark `json:"marks" validate:"dive"`
}

func (pf *ProgressForm) Validate(validate *validator.Validate) error {
	pf.ClassGroup = core.CleanString(pf.ClassGroup)
	return validate.Struct(pf)
}

type SheetEntry struct {
	Child  child.Child `json:"child"`
	Status string      `json:"status"`
	Note   string      `json:"note"`
}

// Sheet is the progress of a class group on one content item.
type Sheet struct {
	Content    ContentItem  `json:"content"`
	ClassGroup string       `json:"class_group"`
	Entries    []SheetEntry `json:"entries"`
}

// ChildSheet groups the progress of one child.
type ChildSheet struct {
	Child    child.Child     `json:"child"`
	Progress []ChildProgress `json:"progress"`
}

type ContentFilter struct {
	Active *bool `query:"active"`
}

type ScheduleFilter struct {
	ClassGroup string `query:"class_group"`
}

type ProgressFilter struct {
	ChildIDs      []int
	ContentItemID int
	Limit         int
	// LatestFirst orders by marking time instead of content order.
	LatestFirst bool
}
