// Package mongo provides a MongoDB-backed implementation of the session
// store. Build the low-level client via
// features/session/mongo/clients/mongo and pass it to NewStore so hosts
// can persist session blackboards outside the engine process.
package mongo
