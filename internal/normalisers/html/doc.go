// Package html provides a Normaliser implementation for HTML uploads.
// It strips tags, scripts and styles, decodes entities and rewrites
// headings, list items and table rows into the plain text conventions
// the chunk pipeline understands.
package html
