// Package appfs embeds the static assets shipped with the binaries:
// SQL migrations, email templates, seed data and the common passwords list.
package appfs

import "embed"

//go:embed migrations/*.sql
//go:embed templates/email/*
//go:embed seed/*.yaml
//go:embed passwords/common-passwords.txt
var FS embed.FS
