// Package router implements cross-chain message delivery: the
// bundle/acknowledgement protocol by which chains observe each
// other's outgoing messages exactly once, in order, under restarts
// and duplicate transmission.
//
// The sender side (Outbox) turns a confirmed block's outgoing
// messages into bundles keyed by (certificate hash, transaction
// index), grouped per recipient chain, and keeps them queued until
// the recipient acknowledges their height, after which they are
// pruned. Delivery is push with ack: UpdateRecipient requests are
// re-sent idempotently until a ConfirmUpdatedRecipient arrives.
//
// The recipient side (Inbox) applies bundles strictly in sender
// height order using the previous-block pointers the sender embeds:
// duplicates and already-applied heights are no-ops, gaps are held
// until the missing bundle arrives, and nothing is ever applied
// early. Accepted bundles are exposed in order for the recipient
// chain's own block building.
//
// The router operates purely on confirmed, immutable block data.
// Bundles are derived artifacts, never references into live chain
// state, which is what keeps mutually-messaging chains acyclic.
package router
