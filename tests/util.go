// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/user"
)

// Logger drops everything; Errors counts the Error calls.
type Logger struct {
	Errors int
}

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Info(string, ...interface{})  {}
func (l *Logger) Warn(string, ...interface{})  {}
func (l *Logger) Error(string, ...interface{}) { l.Errors++ }
func (l *Logger) Fatal(msg string, _ ...interface{}) {
	panic(msg)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	firstName, whatsapp, email, pwd, role string,
	isActive bool,
	extraRoles ...string,
) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		FirstName:      firstName,
		WhatsappNumber: whatsapp,
		Email:          email,
		Role:           role,
		ExtraRoles:     extraRoles,
		IsActive:       isActive,
		IsStaff:        role != user.RoleResponsavel,
		DateJoined:     now,
		UpdatedAt:      now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateChild(t *testing.T, repo child.Repository, name, classGroup string, active bool) child.Child {
	t.Helper()

	now := time.Now().UTC()
	c, err := repo.CreateChild(context.Background(), child.Child{
		Name:       name,
		ClassGroup: classGroup,
		Active:     active,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("createChild() failed: %v", err)
	}
	return c
}

func LinkGuardian(t *testing.T, repo child.Repository, guardianID, childID int) {
	t.Helper()

	_, err := repo.SaveLink(context.Background(), child.GuardianLink{
		GuardianID:   guardianID,
		ChildID:      childID,
		Relationship: child.RelGuardian,
	})
	if err != nil {
		t.Fatalf("linkGuardian() failed: %v", err)
	}
}
