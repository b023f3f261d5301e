// Package sqlbind binds the Bun ORM to the net/http request lifecycle. An
// SQL extension object owns one cached engine per configured bind, hands
// out a unit-of-work session per request through middleware, and provides
// schema operations that walk every bind.
//
// Typical setup:
//
//	cfg := &database.Config{
//		DatabaseURI: "sqlite://app.db",
//		Binds:       map[string]string{"analytics": "sqlite://analytics.db"},
//	}
//	db, err := sqlbind.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = db.RegisterModel((*User)(nil))
//	_ = db.RegisterModel((*Event)(nil), model.WithBind("analytics"))
//	_ = db.CreateAll(ctx)
//
//	handler := db.Middleware(mux)
//
// Inside a handler the request's session is available from the context:
//
//	sess := sqlbind.SessionFromContext(r.Context())
//	_ = sess.Add(&User{Name: "ada"})
//	_ = sess.Commit(r.Context())
package sqlbind
