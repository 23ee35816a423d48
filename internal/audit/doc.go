// Package audit defines the check contract and runs a registry of checks
// against one site.
//
// Every check is an isolated failure domain: a returned error or a panic
// becomes an ERROR result for that check alone, and the run always yields
// exactly one result per registration, in registration order. The
// aggregate helpers fold those results into one verdict and a process exit
// code.
package audit
