package main

import (
	"context"

	"github.com/pinhaljunior/aventureiros/core/user"
)

func (cli *commandLine) resetPassword(whatsapp, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Whatsapp: user.NormalizeWhatsapp(whatsapp)})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
