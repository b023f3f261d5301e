// Package session implements the request-scoped unit of work. A session
// queues pending inserts, updates, and deletes, opens one lazy transaction
// per bind on first touch, and routes every operation to the transaction of
// the model's bind, resolving the bind on each access rather than caching it
// at construction. The HTTP middleware owns the session lifecycle: reset on
// request entry, guaranteed release on exit.
package session
