package ruletree

import "github.com/noah-isme/inbox-rules-api/internal/models"

// Delta is the set of writes that turns the stored records of a job into
// the records of a resubmitted tree.
type Delta struct {
	ToCreate     []models.JobRule
	ToUpdate     []models.JobRule
	ToDeactivate []models.JobRule
}

// Empty reports whether the delta carries no writes.
func (d Delta) Empty() bool {
	return len(d.ToCreate) == 0 && len(d.ToUpdate) == 0 && len(d.ToDeactivate) == 0
}

// Reconcile matches records by id. Incoming records with a known id are
// full replacements, unknown ids are creations, and stored records absent
// from incoming are returned as inactive copies for soft deletion.
func Reconcile(existing, incoming []models.JobRule) Delta {
	existingIDs := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		existingIDs[r.ID] = struct{}{}
	}
	incomingIDs := make(map[string]struct{}, len(incoming))

	var delta Delta
	for _, r := range incoming {
		incomingIDs[r.ID] = struct{}{}
		if _, ok := existingIDs[r.ID]; ok {
			delta.ToUpdate = append(delta.ToUpdate, r)
			continue
		}
		delta.ToCreate = append(delta.ToCreate, r)
	}
	for _, r := range existing {
		if _, ok := incomingIDs[r.ID]; ok {
			continue
		}
		r.IsActive = false
		delta.ToDeactivate = append(delta.ToDeactivate, r)
	}
	return delta
}
