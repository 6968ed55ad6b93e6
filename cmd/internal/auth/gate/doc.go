// Package gate enforces Burrow's three access tiers on HTTP routes.
//
// Public routes skip token handling entirely. Optional routes attach a
// verified identity when one is presented but never reject. Required routes
// reject unauthenticated requests. A separate group gate re-reads the user's
// role from the store, so a stale token never grants elevated access.
package gate
