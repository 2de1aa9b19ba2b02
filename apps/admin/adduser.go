package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pinhaljunior/aventureiros/core/user"
)

// addUser updates or creates a user.User, identified by its WhatsApp number.
func (cli *commandLine) addUser(whatsapp, name, email, role string, extraRoles []string, pwd string) error {
	first, last := name, ""
	if i := strings.IndexByte(strings.TrimSpace(name), ' '); i > 0 {
		first, last = name[:i], name[i+1:]
	}
	nu := user.NewUser{
		WhatsappNumber: whatsapp,
		FirstName:      first,
		LastName:       last,
		Email:          email,
		Role:           strings.ToUpper(role),
		ExtraRoles:     extraRoles,
		Password:       pwd,
	}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}

	usr, created, err := cli.users.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		if usr, _, err = cli.users.Activate(context.Background(), usr.ID); err != nil {
			return err
		}
	}
	verb := "updated"
	if created {
		verb = "created"
	}
	fmt.Printf("%s %s (%s)\n", verb, usr.WhatsappNumber, usr.Role)
	return nil
}
