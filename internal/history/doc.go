// Package history persists regeneration runs and their per-record outcomes in
// a small SQLite database so earlier runs can be reviewed after the fact.
//
// Migrations are embedded and applied in lexical order on Open; each applied
// version is recorded in schema_migrations.
package history
