// Package evidence retains proof of equivocation: two validly
// signed, conflicting artifacts from the same identity at the same
// chain location. Conflicts are never merged or silently dropped;
// they are kept pending until committed into a block or expired.
//
// The pool is fed by the vote aggregator (conflicting votes) and
// the chain manager (conflicting proposals). Both artifacts are
// stored verbatim so any third party can re-verify the signatures
// and punish the offender.
package evidence
