// Package db provides resilient connection management for PostgreSQL.
//
// This package is responsible for:
//   - Transport security negotiation from the host and DB_SSL override
//   - A bounded pgx connection pool with a connectivity state machine
//   - Reconnection probes with capped exponential backoff
//   - Single statements and multi-statement transactions with instrumentation
//   - Health reports and pool statistics
//   - Embedded schema migrations (see the migrations subpackage)
//
// Example usage:
//
//	ssl, err := db.ResolveSSL(cfg.Database.Host, cfg.Database.SSL)
//	if err != nil {
//	    return err
//	}
//	mgr := db.New(cfg.Database, ssl, log)
//	if err := mgr.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Shutdown(ctx)
//
//	res, err := mgr.Execute(ctx, "SELECT id FROM products WHERE sku = $1", sku)
package db
