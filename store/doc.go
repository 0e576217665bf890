// Package store persists the consensus core's durable state: the
// per-chain ChainManagerInfo checkpoint, confirmed certificates
// indexed by height and by hash, unacknowledged outbox bundles per
// (sender, recipient) pair, and inbox cursors. The Store interface
// is what the engine's Node depends on; Memory backs tests and
// Badger backs production.
package store
