// Package remote is the HTTP client for the cadence REST service.
//
// Each syncable kind maps to one collection endpoint (see model.Kind.Endpoint).
// Every request carries a bearer token from a TokenSource. Failures come back
// as *Error, split into NetworkFailure (worth retrying later) and
// RemoteRejected (the service said no, retrying repeats the answer).
package remote
