// Package memory provides in-memory implementations of the storage ports.
// They back tests and single-process runs where nothing needs to survive
// a restart.
package memory
