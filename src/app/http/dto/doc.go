// Package dto contains Data Transfer Objects for HTTP requests and responses.
//
// DTOs are separate from domain entities so that the JSON shape of the API
// (camelCase fields, derived flags such as isLowStock) can evolve without
// touching the domain. Request types carry gin binding tags for the first
// line of validation; the use cases re-check every rule.
//
// Naming convention:
//   - Request types: <Action><Resource>Request (e.g., CreateProductRequest)
//   - Response types: <Resource>Response (e.g., ProductResponse)
package dto
