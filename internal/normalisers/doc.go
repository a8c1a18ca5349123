// Package normalisers provides implementations of the Normaliser interface
// for the upload formats teachers use. Each normaliser knows how to
// extract text from a specific MIME type.
//
// Normalisers are registered with the Registry at startup.
package normalisers
