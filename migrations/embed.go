// Package migrations embeds the MySQL schema of the billing store as ordered
// golang-migrate files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
