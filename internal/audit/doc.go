// Package audit keeps the persistent history of configuration changes,
// command outcomes and logins in the audit_logs table.
//
// Entries arrive through Recorder, an events.Forwarder attached to the
// process event bus, and are read back through Repository.List for the
// GET /api/audit endpoint.
//
//	bus.AddForwarder("audit", audit.NewRecorder(audit.NewSQLiteRepository(db.DB)))
package audit
