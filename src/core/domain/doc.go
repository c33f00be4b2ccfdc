// Package domain contains the core domain model for the product catalog.
//
// This package defines:
//   - Entities: Product and its closed Category set
//   - Value objects: ProductDraft, ProductPatch, ProductFilter, Pagination
//   - Domain errors: business rule violations and availability errors
//
// Rules for this package:
//   - No external dependencies except the standard library
//   - No infrastructure concerns (database, HTTP, etc.)
//   - Drafts and patches validate their own invariants
//
// Partial updates only touch fields listed in UpdatableFields; each maps to
// exactly one column through ProductField.Column, so no caller-supplied name
// ever reaches SQL.
package domain
