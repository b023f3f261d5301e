// Package model keeps the registry of persistent model types. Each
// registration records the struct type, its table name, and the bind it
// belongs to; models without an explicit bind use the primary database.
// Registration is an explicit call made at application setup, and the
// registry is what routes a model to the right engine during sessions and
// schema operations.
package model
