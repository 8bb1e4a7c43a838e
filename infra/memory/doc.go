// Package memory holds typed object pools for buffers reused on the WAL
// append path.
package memory
