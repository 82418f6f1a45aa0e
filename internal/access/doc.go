// Package access resolves what an authenticated session is allowed to do
// in the workdesk dashboard.
//
// This package implements:
//   - The closed set of roles (admin, manager, employee, client)
//   - The closed catalog of permission identifiers
//   - The role -> permission table and its invariants
//   - Translation of identity-provider role labels into roles
//   - The per-client Session holding the active role
//
// Everything here is synchronous and in-memory. Persistence of the table
// lives in the repositories layer and is installed through Resolver.Replace.
package access
