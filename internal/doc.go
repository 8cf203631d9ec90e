// Package internal documents the warehouse server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: the ingestion pipeline, analytics projections, and inventory
// - storage: Postgres repositories, migrations, and the pgx wiring
// - config, metrics: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
