// Package healthcheck runs named health procedures and aggregates their
// outcomes into a JSON-shaped report.
//
// Names containing '/' nest procedures into composite groups: registering
// "db/primary" and "db/replica" creates a group "db" whose status is UP only
// when both children are UP. Procedures complete a Promise; an empty
// completion means UP, a failure means DOWN with the failure message under
// data.cause, and a procedure that does not complete within the timeout is
// DOWN with cause "Timeout".
package healthcheck
