// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for the catalog, rule, promotion and ledger
// tables. Statements are idempotent so re-running them is safe.
//
//go:embed migrations/001_schema.sql
var Schema string
