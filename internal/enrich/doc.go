// Package enrich fills in missing contact and profile fields by scheduling
// pluggable resolvers.
//
// A run proceeds in rounds. Each round picks the eligible resolver with the
// lowest priority, executes it, folds the net-new fields it returned into the
// accumulated result and records which resolver supplied each field. The run
// stops when no resolver can add anything or the round budget is spent.
// Logos and avatars that are still uploading when a resolver returns are
// reconciled by a finalizer once their uploads settle.
package enrich
