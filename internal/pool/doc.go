// Package pool shares venue clients across callers. Clients are keyed by
// venue and account identity so that every caller trading the same
// account reuses one socket; public (credential-free) callers share a
// single data connection per venue. Sockets stay warm on release and the
// embedded connection handles its own reconnects.
package pool
