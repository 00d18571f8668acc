// Package sightings keeps the last-seen state of each configured sensor in
// SQLite.
//
// The Recorder observes the producer. Every enqueued record updates an
// in-memory entry for its address; entries are written to the
// device_sightings table in one transaction per flush interval, so the
// scanning path never waits on disk. Only the latest state is stored, never
// measurement history.
//
// Usage:
//
//	rec := sightings.NewRecorder(db.DB, devices, 30*time.Second)
//	rec.SetLogger(log)
//	if err := rec.Start(ctx); err != nil {
//	    return err
//	}
//	defer rec.Stop()
package sightings
