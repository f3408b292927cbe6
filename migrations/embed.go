// Package migrations embeds the goose SQL migrations so binaries can apply
// them without access to the source tree.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
