// Package sentiment holds the pure core of conversation analysis.
//
// ContentID names a message by its text. Calculator turns a batch of messages
// into per-message sentiment deltas by scoring overlapping three-message windows.
// Merge folds new records into a capped, deduplicated history. Nothing here
// touches storage; the only side effect is the injected scorer.
package sentiment
