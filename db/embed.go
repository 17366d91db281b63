// Package db embeds the database schema.
package db

import _ "embed"

// Schema creates every table used by the catalog, coupons, orders and API
// keys. Statements are idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
