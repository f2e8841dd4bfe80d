// Package suggest resolves normalized keys against the shard store and ranks
// what it finds.
package suggest

import "context"

// ICompleter answers one raw query. Sessions and the IPC server depend on
// this rather than on *Completer.
type ICompleter interface {
	// Complete normalizes raw, looks it up and returns at most limit results.
	Complete(ctx context.Context, raw string, limit int) (Completion, error)
}
