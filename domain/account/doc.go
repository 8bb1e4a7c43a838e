// Package account models the identity abstraction: an Address is the
// unique owner handle under which the resource store keeps records.
// Authentication happens before a request reaches this module; an Address
// handed to the service is trusted.
package account
