// Package migrations embeds the SQL migration files for the search index
// table. Catalog tables are owned by the catalog services and are not
// migrated here.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
