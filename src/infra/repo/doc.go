// Package repo contains PostgreSQL implementations of repository interfaces.
//
// This package implements the ports defined in src/core/ports. Repositories
// never touch pgx directly: every statement goes through the db.Manager so
// that pool bounds, statement timeouts, retry state and query logging apply
// uniformly.
//
// Database failures are translated into domain errors:
//
//	connectivity, pool exhausted, not connected  -> domain.ErrUnavailable
//	unique violation (23505)                     -> domain.ErrConflict
//	invalid text representation (22P02)          -> domain.ErrInvalidInput
//	check violation (23514)                      -> domain.ErrInvalidInput
//
// Anything else is returned wrapped and surfaces as an internal error.
package repo
