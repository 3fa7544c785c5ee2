// Package ledger is the durable, append-only record of what has been sent.
//
// It provides two things to the rest of the system:
//
//   - idempotency: a (day, channel, category) delivery slot can be claimed
//     exactly once via a two-phase claim/finalize protocol, so duplicate
//     scheduler triggers and same-day reruns never double-send;
//   - rotation history: finalized entries are the single source of truth for
//     which quotes have been used in the current rotation cycle.
//
// Claims carry a lease. A finalized entry is permanent; an unfinalized claim
// whose lease expired (crashed run) can be taken over by a later rerun, so a
// failure between claim and send never blocks the day's delivery.
package ledger
