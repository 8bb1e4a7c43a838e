// Package service is the only write entry point into the ledger. Every
// command is appended to the entry WAL, applied to a store transaction
// through the domain packages, and committed together with its outbox
// events. Commands are applied one at a time.
//
// It is decoupled from transports; api/grpcserver is a thin adapter.
package service
