// Package inmemdb keeps every table in memory. It backs the API tests and the "inmem" database engine.
package inmemdb

import (
	"context"
	"sync"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/audit"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/curriculum"
	"github.com/pinhaljunior/aventureiros/core/document"
	"github.com/pinhaljunior/aventureiros/core/finance"
	"github.com/pinhaljunior/aventureiros/core/points"
	"github.com/pinhaljunior/aventureiros/core/store"
	"github.com/pinhaljunior/aventureiros/core/user"
)

// DB guards all tables with a single lock, so repositories may read across tables (joins).
type DB struct {
	mutex   sync.RWMutex
	pkCount int

	users    map[int]*user.User
	children map[int]*child.Child
	health   map[int]*child.Health // by child id
	faces    map[int]*child.Face
	links    map[int]*child.GuardianLink

	fees     map[int]*finance.Fee
	payments map[int]*finance.Payment

	sessions map[int]*attendance.Session
	records  map[int]*attendance.Record

	contents  map[int]*curriculum.ContentItem
	schedules map[int]*curriculum.ClassSchedule
	progress  map[int]*curriculum.ChildProgress

	entries map[int]*points.Entry

	docTypes  map[int]*document.Type
	documents map[int]*document.Document
	files     map[int]*document.File
	requests  map[int]*document.Request

	categories map[int]*store.Category
	products   map[int]*store.Product
	variants   map[int]*store.Variant
	carts      map[int]*store.Cart
	cartItems  map[int]*store.CartItem
	orders     map[int]*store.Order
	orderItems map[int]*store.OrderItem

	logs map[int]*audit.Log
}

func Open() *DB {
	return &DB{
		users:      make(map[int]*user.User),
		children:   make(map[int]*child.Child),
		health:     make(map[int]*child.Health),
		faces:      make(map[int]*child.Face),
		links:      make(map[int]*child.GuardianLink),
		fees:       make(map[int]*finance.Fee),
		payments:   make(map[int]*finance.Payment),
		sessions:   make(map[int]*attendance.Session),
		records:    make(map[int]*attendance.Record),
		contents:   make(map[int]*curriculum.ContentItem),
		schedules:  make(map[int]*curriculum.ClassSchedule),
		progress:   make(map[int]*curriculum.ChildProgress),
		entries:    make(map[int]*points.Entry),
		docTypes:   make(map[int]*document.Type),
		documents:  make(map[int]*document.Document),
		files:      make(map[int]*document.File),
		requests:   make(map[int]*document.Request),
		categories: make(map[int]*store.Category),
		products:   make(map[int]*store.Product),
		variants:   make(map[int]*store.Variant),
		carts:      make(map[int]*store.Cart),
		cartItems:  make(map[int]*store.CartItem),
		orders:     make(map[int]*store.Order),
		orderItems: make(map[int]*store.OrderItem),
		logs:       make(map[int]*audit.Log),
	}
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int {
	db.pkCount++
	return db.pkCount
}

// isGuardianOf must be called with the lock held.
func (db *DB) isGuardianOf(guardianID, childID int) bool {
	for _, l := range db.links {
		if l.GuardianID == guardianID && l.ChildID == childID {
			return true
		}
	}
	return false
}

func (db *DB) childName(id int) string {
	if c, ok := db.children[id]; ok {
		return c.Name
	}
	return ""
}

func (db *DB) userName(id int) string {
	if u, ok := db.users[id]; ok {
		return u.FullName()
	}
	return ""
}

// Transactor runs fn right away: writes are applied as they happen and never rolled back.
type Transactor struct{}

var _ core.Transactor = (*Transactor)(nil) // interface compliance check

func NewTransactor() *Transactor {
	return &Transactor{}
}

func (Transactor) WithinTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	return fn(nil)
}

func containsInt(ids []int, id int) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
