// Package connectors provides implementations of the Connector interface.
// A connector knows how to read raw documents from one kind of origin and
// how to report changes to them; the sync service turns those into
// ingestion calls.
package connectors
