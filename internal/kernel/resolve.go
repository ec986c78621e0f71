package kernel

import (
	"sort"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
)

// BatchReport is resolve_batch's output (spec 4.D): the accepted intents
// in canonical apply order, the rejected intents with reasons, and the
// batch_hash for distributed idempotency.
type BatchReport struct {
	Accepted  []action.Intent
	Rejected  []RejectedIntent
	BatchHash uint64
}

type RejectedIntent struct {
	Intent action.Intent
	Reason kernelerr.Reject
}

// ResolveBatch groups intents by conflict_key, orders each group by
// (actor_id, intent_hash), and applies exclusive/additive semantics
// (spec 4.D). Exclusive kinds let only the first-ordered intent per key
// through; additive kinds (TransferMaterial into the same ledger) let
// every intent in the group through, leaving budget enforcement to the
// per-action apply step.
func ResolveBatch(intents []action.Intent) BatchReport {
	groups := make(map[string][]action.Intent)
	var keyOrder []string
	for _, in := range intents {
		if _, seen := groups[in.ConflictKey]; !seen {
			keyOrder = append(keyOrder, in.ConflictKey)
		}
		groups[in.ConflictKey] = append(groups[in.ConflictKey], in)
	}
	sort.Strings(keyOrder)

	var accepted []action.Intent
	var rejected []RejectedIntent

	for _, key := range keyOrder {
		group := groups[key]
		OrderBatch(group)

		if len(group) == 0 {
			continue
		}

		if isAdditive(group[0].Action.Kind) {
			accepted = append(accepted, group...)
			continue
		}

		// Exclusive: first wins, the rest are rejected with ConflictLoss.
		accepted = append(accepted, group[0])
		for _, loser := range group[1:] {
			rejected = append(rejected, RejectedIntent{
				Intent: loser,
				Reason: kernelerr.NewConflictLoss(key),
			})
		}
	}

	// Canonical apply order across distinct keys: by conflict_key. The
	// groups were walked in sorted keyOrder, so accepted is already in
	// that order; the stable re-sort keeps it explicit and leaves the
	// within-group (actor_id, intent_hash) order untouched.
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].ConflictKey < accepted[j].ConflictKey
	})

	return BatchReport{
		Accepted:  accepted,
		Rejected:  rejected,
		BatchHash: BatchHash(accepted),
	}
}
