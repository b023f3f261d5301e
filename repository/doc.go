// Package repository provides the generic query helper bound to a request
// session. It is the explicit form of a per-model query attribute: CRUD,
// filtered queries, pagination, and dialect-aware upserts, all routed
// through the session so each model reaches the engine of its bind.
package repository
