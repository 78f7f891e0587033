// Package eventlog writes device status changes to a file as JSON lines.
//
// Events are batched in memory and flushed when the batch is full, when
// the flush interval elapses, or when the writer is closed.
package eventlog
