// Package api exposes Lectern over HTTP.
//
// Every route except /health requires the caller's identity in the
// X-Lectern-User and X-Lectern-Tenant headers; an upstream gateway is
// expected to authenticate the caller and set them. Errors are rendered
// as JSON with a status derived from the domain error kind.
package api
