// Package database provides engine construction and caching for the
// configured database targets: URI parsing, dialect-specific pool defaults,
// the per-bind connector with its rebuild-on-change memo, query hooks,
// health checks, and related configuration types built on top of Bun.
package database
