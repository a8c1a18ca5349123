// Package connectors holds material sources that feed the ingestion
// pipeline from outside the CLI and HTTP surfaces. Each connector knows
// how to discover materials in one kind of location (a local folder).
package connectors
