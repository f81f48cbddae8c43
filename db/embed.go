// Package db embeds the SQL schema applied at service startup.
package db

import _ "embed"

// Schema holds the DDL for every table the three services own.
//
//go:embed migrations/001_schema.sql
var Schema string
