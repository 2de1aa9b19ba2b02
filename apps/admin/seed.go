package main

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/curriculum"
	"github.com/pinhaljunior/aventureiros/core/document"
	"github.com/pinhaljunior/aventureiros/core/finance"
	"github.com/pinhaljunior/aventureiros/core/points"
	"github.com/pinhaljunior/aventureiros/core/store"
	"github.com/pinhaljunior/aventureiros/core/user"
	appfs "github.com/pinhaljunior/aventureiros/fs"
)

const seedDir = "seed"

var (
	seedNames = []string{"demo", "finance", "documents", "curriculum"}

	errUnknownSeed = errors.New("unknown seed")
	errSeedRef     = errors.New("unknown reference")
)

// Seed files reference users by WhatsApp number, children and document types by name and
// content items by title. Relative dates are given in days from today.
type (
	seedData struct {
		Password      string         `yaml:"password"`
		Users         []seedUser     `yaml:"users"`
		Children      []seedChild    `yaml:"children"`
		Sessions      []seedSession  `yaml:"sessions"`
		Points        []seedPoints   `yaml:"points"`
		Fees          []seedFee      `yaml:"fees"`
		DocumentTypes []seedDocType  `yaml:"document_types"`
		Documents     []seedDocument `yaml:"documents"`
		Requests      []seedRequest  `yaml:"requests"`
		Contents      []seedContent  `yaml:"contents"`
		Schedules     []seedSchedule `yaml:"schedules"`
		Progress      []seedProgress `yaml:"progress"`
		Categories    []seedCategory `yaml:"categories"`
	}

	seedUser struct {
		Whatsapp  string `yaml:"whatsapp"`
		FirstName string `yaml:"first_name"`
		LastName  string `yaml:"last_name"`
		Role      string `yaml:"role"`
	}

	seedChild struct {
		Name         string   `yaml:"name"`
		Age          int      `yaml:"age"`
		ClassGroup   string   `yaml:"class_group"`
		Guardians    []string `yaml:"guardians"`
		Relationship string   `yaml:"relationship"`
	}

	seedSession struct {
		DaysAgo    int    `yaml:"days_ago"`
		Type       string `yaml:"type"`
		ClassGroup string `yaml:"class_group"`
		By         string `yaml:"by"`
		Present    bool   `yaml:"present"`
		Note       string `yaml:"note"`
	}

	seedPoints struct {
		Points int    `yaml:"points"`
		Reason string `yaml:"reason"`
		By     string `yaml:"by"`
	}

	seedFee struct {
		Month     string          `yaml:"month"`
		Amount    decimal.Decimal `yaml:"amount"`
		Discount  decimal.Decimal `yaml:"discount"`
		DueInDays int             `yaml:"due_in_days"`
		Status    string          `yaml:"status"`
	}

	seedDocType struct {
		Name         string `yaml:"name"`
		Required     bool   `yaml:"required"`
		ValidityDays int    `yaml:"validity_days"`
	}

	seedDocument struct {
		Type            string `yaml:"type"`
		Status          string `yaml:"status"`
		ReceivedDaysAgo *int   `yaml:"received_days_ago"`
		Note            string `yaml:"note"`
		By              string `yaml:"by"`
	}

	seedRequest struct {
		Type string `yaml:"type"`
		By   string `yaml:"by"`
	}

	seedContent struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Module      string `yaml:"module"`
		Order       int    `yaml:"order"`
	}

	seedSchedule struct {
		ClassGroup string `yaml:"class_group"`
		Content    string `yaml:"content"`
		InDays     int    `yaml:"in_days"`
		Status     string `yaml:"status"`
		By         string `yaml:"by"`
	}

	seedProgress struct {
		Content string `yaml:"content"`
		Status  string `yaml:"status"`
		Note    string `yaml:"note"`
		By      string `yaml:"by"`
	}

	seedCategory struct {
		Name     string        `yaml:"name"`
		Products []seedProduct `yaml:"products"`
	}

	seedProduct struct {
		Name        string          `yaml:"name"`
		Description string          `yaml:"description"`
		Price       decimal.Decimal `yaml:"price"`
		Stock       int             `yaml:"stock"`
		ImageURL    string          `yaml:"image_url"`
		Variants    []seedVariant   `yaml:"variants"`
	}

	seedVariant struct {
		Name  string          `yaml:"name"`
		Price decimal.Decimal `yaml:"price"`
		Stock int             `yaml:"stock"`
	}
)

func loadSeed(name string) (seedData, error) {
	var data seedData
	raw, err := appfs.FS.ReadFile(path.Join(seedDir, name+".yaml"))
	if err != nil {
		return data, errors.Wrap(errUnknownSeed, name)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, errors.Wrapf(err, "parsing seed %s", name)
	}
	return data, nil
}

// seeder applies a seed file. Running it twice updates what it created the first time.
type seeder struct {
	cli      *commandLine
	ctx      context.Context
	today    core.Date
	users    map[string]user.User
	children []child.Child
	types    map[string]document.Type
	contents map[string]curriculum.ContentItem
}

func (cli *commandLine) seed(name string) error {
	data, err := loadSeed(name)
	if err != nil {
		return err
	}
	s := &seeder{
		cli:      cli,
		ctx:      context.Background(),
		today:    cli.children.Today(),
		users:    make(map[string]user.User),
		types:    make(map[string]document.Type),
		contents: make(map[string]curriculum.ContentItem),
	}

	steps := []struct {
		what string
		run  func(seedData) error
	}{
		{"users", s.seedUsers},
		{"children", s.seedChildren},
		{"attendance", s.seedSessions},
		{"points", s.seedPoints},
		{"fees", s.seedFees},
		{"documents", s.seedDocuments},
		{"curriculum", s.seedCurriculum},
		{"store", s.seedStore},
	}
	for _, step := range steps {
		if err := step.run(data); err != nil {
			return errors.Wrapf(err, "seeding %s", step.what)
		}
	}
	fmt.Printf("seed %q applied: %d users, %d children\n", name, len(s.users), len(s.children))
	return nil
}

func (s *seeder) user(whatsapp string) (int, error) {
	usr, ok := s.users[user.NormalizeWhatsapp(whatsapp)]
	if !ok {
		return 0, errors.Wrapf(errSeedRef, "user %s", whatsapp)
	}
	return usr.ID, nil
}

func (s *seeder) seedUsers(data seedData) error {
	for _, su := range data.Users {
		nu := user.NewUser{
			WhatsappNumber: su.Whatsapp,
			FirstName:      su.FirstName,
			LastName:       su.LastName,
			Role:           su.Role,
			Password:       data.Password,
		}
		if err := nu.Validate(s.cli.validate); err != nil {
			return errors.Wrapf(err, "user %s", su.Whatsapp)
		}
		usr, _, err := s.cli.users.Create(s.ctx, nu)
		if err != nil {
			return err
		}
		s.users[usr.WhatsappNumber] = usr
	}
	return nil
}

func (s *seeder) findChild(name string) (child.Child, bool, error) {
	kids, err := s.cli.children.Query(s.ctx, &child.QueryFilter{Search: name})
	if err != nil {
		return child.Child{}, false, err
	}
	for _, c := range kids {
		if strings.EqualFold(c.Name, name) {
			return c, true, nil
		}
	}
	return child.Child{}, false, nil
}

func (s *seeder) seedChildren(data seedData) error {
	for _, sc := range data.Children {
		c, found, err := s.findChild(sc.Name)
		if err != nil {
			return err
		}
		if !found {
			cf := child.ChildForm{
				Name:       sc.Name,
				BirthDate:  core.NewDate(s.today.Year()-sc.Age, s.today.Month(), s.today.Day()),
				ClassGroup: sc.ClassGroup,
			}
			if err := cf.Validate(s.cli.validate); err != nil {
				return errors.Wrapf(err, "child %s", sc.Name)
			}
			if c, err = s.cli.children.Create(s.ctx, cf); err != nil {
				return err
			}
		}
		for _, g := range sc.Guardians {
			guardianID, err := s.user(g)
			if err != nil {
				return err
			}
			nl := child.NewLink{GuardianID: guardianID, ChildID: c.ID, Relationship: sc.Relationship}
			if err := nl.Validate(s.cli.validate); err != nil {
				return err
			}
			if _, err := s.cli.children.Link(s.ctx, nl); err != nil {
				return errors.Wrapf(err, "linking %s", sc.Name)
			}
		}
		s.children = append(s.children, c)
	}
	return nil
}

func (s *seeder) seedSessions(data seedData) error {
	if len(data.Sessions) == 0 {
		return nil
	}
	existing, err := s.cli.attendance.Sessions(s.ctx)
	if err != nil {
		return err
	}
	for _, ss := range data.Sessions {
		by, err := s.user(ss.By)
		if err != nil {
			return err
		}
		sf := attendance.SessionForm{Date: s.today.AddDays(-ss.DaysAgo), Type: ss.Type, ClassGroup: ss.ClassGroup}
		if err := sf.Validate(s.cli.validate); err != nil {
			return err
		}

		var session attendance.Session
		for _, e := range existing {
			if e.Date.Equal(sf.Date) && e.Type == sf.Type && e.ClassGroup == sf.ClassGroup {
				session = e
				break
			}
		}
		if session.ID == 0 {
			if session, err = s.cli.attendance.CreateSession(s.ctx, sf, by); err != nil {
				return err
			}
		}

		sheet, err := s.cli.attendance.Sheet(s.ctx, session.ID)
		if err != nil {
			return err
		}
		marks := make([]attendance.Mark, len(sheet.Entries))
		for i, e := range sheet.Entries {
			marks[i] = attendance.Mark{ChildID: e.Child.ID, Present: ss.Present, Note: ss.Note}
		}
		if _, err := s.cli.attendance.Mark(s.ctx, session.ID, marks, by); err != nil {
			return err
		}
	}
	return nil
}

// seedPoints gives each seeded child the listed entries, unless it already has one with the same reason.
func (s *seeder) seedPoints(data seedData) error {
	for _, c := range s.children {
		st, err := s.cli.points.Statement(s.ctx, c.ID, 0)
		if err != nil {
			return err
		}
		given := make(map[string]bool, len(st.Entries))
		for _, e := range st.Entries {
			given[e.Reason] = true
		}
		for _, sp := range data.Points {
			if given[sp.Reason] {
				continue
			}
			by, err := s.user(sp.By)
			if err != nil {
				return err
			}
			if _, err := s.cli.points.Add(s.ctx, points.EntryForm{ChildID: c.ID, Points: sp.Points, Reason: sp.Reason}, by); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *seeder) seedFees(data seedData) error {
	now := time.Now().UTC()
	for _, c := range s.children {
		for _, sf := range data.Fees {
			status := sf.Status
			if status == "" {
				status = finance.StatusPendente
			}
			final := sf.Amount.Sub(sf.Discount)
			if final.IsNegative() {
				final = decimal.Zero
			}
			_, _, err := s.cli.feeRepo.GetOrCreateFee(s.ctx, finance.Fee{
				ChildID:        c.ID,
				ReferenceMonth: sf.Month,
				Amount:         sf.Amount,
				DiscountAmount: sf.Discount,
				FinalAmount:    final,
				DueDate:        s.today.AddDays(sf.DueInDays),
				Status:         status,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			if err != nil {
				return errors.Wrapf(err, "fee %s of %s", sf.Month, c.Name)
			}
		}
	}
	return nil
}

func (s *seeder) seedDocuments(data seedData) error {
	types, err := s.cli.documents.Types(s.ctx, false)
	if err != nil {
		return err
	}
	for _, t := range types {
		s.types[t.Name] = t
	}
	for _, sdt := range data.DocumentTypes {
		if _, ok := s.types[sdt.Name]; ok {
			continue
		}
		tf := document.TypeForm{Name: sdt.Name, Required: &sdt.Required}
		if sdt.ValidityDays > 0 {
			days := sdt.ValidityDays
			tf.ValidityDays = &days
		}
		if err := tf.Validate(s.cli.validate); err != nil {
			return err
		}
		t, err := s.cli.documents.CreateType(s.ctx, tf)
		if err != nil {
			return err
		}
		s.types[t.Name] = t
	}

	for _, c := range s.children {
		cd, err := s.cli.documents.ChildDocuments(s.ctx, c.ID)
		if err != nil {
			return err
		}
		byType := make(map[int]document.Document, len(cd.Documents))
		for _, d := range cd.Documents {
			byType[d.TypeID] = d
		}
		for _, sd := range data.Documents {
			t, ok := s.types[sd.Type]
			if !ok {
				return errors.Wrapf(errSeedRef, "document type %s", sd.Type)
			}
			d, ok := byType[t.ID]
			if !ok {
				continue
			}
			by, err := s.user(sd.By)
			if err != nil {
				return err
			}
			sf := document.StatusForm{Status: sd.Status, Note: sd.Note}
			if sd.ReceivedDaysAgo != nil {
				received := s.today.AddDays(-*sd.ReceivedDaysAgo)
				sf.ReceivedDate = &received
			}
			if err := sf.Validate(s.cli.validate); err != nil {
				return err
			}
			if _, err := s.cli.documents.UpdateStatus(s.ctx, c.ID, d.ID, sf, by); err != nil {
				return errors.Wrapf(err, "%s of %s", sd.Type, c.Name)
			}
		}

		requested := make(map[int]bool, len(cd.Requests))
		for _, r := range cd.Requests {
			requested[r.TypeID] = true
		}
		for _, sr := range data.Requests {
			t, ok := s.types[sr.Type]
			if !ok {
				return errors.Wrapf(errSeedRef, "document type %s", sr.Type)
			}
			if requested[t.ID] {
				continue
			}
			by, err := s.user(sr.By)
			if err != nil {
				return err
			}
			if _, err := s.cli.documents.RequestDocument(s.ctx, c.ID, t.ID, by); err != nil {
				return errors.Wrapf(err, "requesting %s of %s", sr.Type, c.Name)
			}
		}
	}
	return nil
}

func (s *seeder) seedCurriculum(data seedData) error {
	items, err := s.cli.curriculum.Contents(s.ctx, nil)
	if err != nil {
		return err
	}
	for _, item := range items {
		s.contents[item.Title] = item
	}
	for _, sc := range data.Contents {
		if _, ok := s.contents[sc.Title]; ok {
			continue
		}
		order := sc.Order
		cf := curriculum.ContentForm{Title: sc.Title, Description: sc.Description, Module: sc.Module, Order: &order}
		if err := cf.Validate(s.cli.validate); err != nil {
			return err
		}
		item, err := s.cli.curriculum.CreateContent(s.ctx, cf)
		if err != nil {
			return err
		}
		s.contents[item.Title] = item
	}

	content := func(title string) (int, error) {
		item, ok := s.contents[title]
		if !ok {
			return 0, errors.Wrapf(errSeedRef, "content %s", title)
		}
		return item.ID, nil
	}

	for _, ss := range data.Schedules {
		contentID, err := content(ss.Content)
		if err != nil {
			return err
		}
		by, err := s.user(ss.By)
		if err != nil {
			return err
		}
		sf := curriculum.ScheduleForm{
			ClassGroup:    ss.ClassGroup,
			ContentItemID: contentID,
			PlannedDate:   s.today.AddDays(ss.InDays),
			Status:        ss.Status,
		}
		if err := sf.Validate(s.cli.validate); err != nil {
			return err
		}
		if _, err := s.cli.curriculum.CreateSchedule(s.ctx, sf, by); err != nil && !errors.Is(err, curriculum.ErrScheduleExists) {
			return err
		}
	}

	for _, c := range s.children {
		for _, sp := range data.Progress {
			contentID, err := content(sp.Content)
			if err != nil {
				return err
			}
			by, err := s.user(sp.By)
			if err != nil {
				return err
			}
			pf := curriculum.ProgressForm{
				ClassGroup:    c.ClassGroup,
				ContentItemID: contentID,
				Marks:         []curriculum.ProgressMark{{ChildID: c.ID, Status: sp.Status, Note: sp.Note}},
			}
			if err := pf.Validate(s.cli.validate); err != nil {
				return err
			}
			if _, err := s.cli.curriculum.Mark(s.ctx, pf, by); err != nil {
				return errors.Wrapf(err, "progress of %s", c.Name)
			}
		}
	}
	return nil
}

func (s *seeder) seedStore(data seedData) error {
	if len(data.Categories) == 0 {
		return nil
	}
	categories, err := s.cli.store.Categories(s.ctx)
	if err != nil {
		return err
	}
	products, err := s.cli.store.Products(s.ctx)
	if err != nil {
		return err
	}

	for _, sc := range data.Categories {
		var cat store.Category
		for _, c := range categories {
			if c.Name == sc.Name {
				cat = c
				break
			}
		}
		if cat.ID == 0 {
			cf := store.CategoryForm{Name: sc.Name}
			if err := cf.Validate(s.cli.validate); err != nil {
				return err
			}
			if cat, err = s.cli.store.CreateCategory(s.ctx, cf); err != nil {
				return err
			}
		}

		for _, sp := range sc.Products {
			pf := store.ProductForm{
				CategoryID:  &cat.ID,
				Name:        sp.Name,
				Description: sp.Description,
				Price:       sp.Price,
				Stock:       sp.Stock,
				ImageURL:    sp.ImageURL,
			}
			for _, v := range sp.Variants {
				pf.Variants = append(pf.Variants, store.VariantForm{Name: v.Name, Price: v.Price, Stock: v.Stock})
			}
			if err := pf.Validate(s.cli.validate); err != nil {
				return errors.Wrapf(err, "product %s", sp.Name)
			}

			productID := 0
			for _, p := range products {
				if p.Name == sp.Name {
					productID = p.ID
					break
				}
			}
			if productID == 0 {
				_, err = s.cli.store.CreateProduct(s.ctx, pf)
			} else {
				_, err = s.cli.store.UpdateProduct(s.ctx, productID, pf)
			}
			if err != nil {
				return errors.Wrapf(err, "saving product %s", sp.Name)
			}
		}
	}
	return nil
}
