package scene

import (
	"reflect"
	"time"
)

// ChangeKind classifies one object-level difference between two snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeModified ChangeKind = "modified"
	ChangeCleared  ChangeKind = "cleared"
)

// Change is one typed record of a difference between two successive scene
// snapshots. Created only during diffing; never mutated afterwards.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Name string     `json:"name,omitempty"`
	Old  *Object    `json:"old,omitempty"`
	New  *Object    `json:"new,omitempty"`
	Time time.Time  `json:"time"`
}

// diff computes the change events that turn old into new. Iteration order
// is deterministic: additions in new-snapshot order, then deletions in
// old-snapshot order, then modifications in new-snapshot order. Equal
// objects produce nothing.
func diff(old, new *State) []Change {
	now := time.Now()
	var changes []Change

	for _, name := range new.order {
		if _, existed := old.objects[name]; !existed {
			obj := new.objects[name]
			changes = append(changes, Change{
				Kind: ChangeAdded,
				Name: name,
				New:  &obj,
				Time: now,
			})
		}
	}

	for _, name := range old.order {
		if _, kept := new.objects[name]; !kept {
			obj := old.objects[name]
			changes = append(changes, Change{
				Kind: ChangeDeleted,
				Name: name,
				Old:  &obj,
				Time: now,
			})
		}
	}

	for _, name := range new.order {
		oldObj, existed := old.objects[name]
		if !existed {
			continue
		}
		newObj := new.objects[name]
		if objectsDiffer(oldObj, newObj) {
			o, n := oldObj, newObj
			changes = append(changes, Change{
				Kind: ChangeModified,
				Name: name,
				Old:  &o,
				New:  &n,
				Time: now,
			})
		}
	}

	return changes
}

// objectsDiffer reports whether any tracked field differs: type tag,
// visibility, selection, a transform component, or the opaque payload.
func objectsDiffer(a, b Object) bool {
	if a.Type != b.Type || a.Visible != b.Visible || a.Selected != b.Selected {
		return true
	}
	if a.Transform != b.Transform {
		return true
	}
	return !reflect.DeepEqual(a.Data, b.Data)
}
