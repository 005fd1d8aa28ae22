package changes

import (
	"sort"
)

// Op is the kind of a raw file event.
type Op int

// Event operations.
const (
	OpWrite Op = iota
	OpCreate
	OpRemove
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

func (o Op) removes() bool {
	return o == OpRemove || o == OpRename
}

// Event is one raw notification about a path.
type Event struct {
	Path string
	Op   Op
}

// ChangeSet is the normalized set of paths to re-evaluate. Dirty and
// Deleted are sorted, disjoint and already filtered.
type ChangeSet struct {
	// Seq orders change sets; larger is newer. Zero means unassigned.
	Seq     uint64
	Dirty   []string
	Deleted []string
}

// Empty reports whether the set names no paths.
func (cs ChangeSet) Empty() bool {
	return len(cs.Dirty) == 0 && len(cs.Deleted) == 0
}

// Len returns the number of paths in the set.
func (cs ChangeSet) Len() int {
	return len(cs.Dirty) + len(cs.Deleted)
}

// Merge folds newer into cs. The result carries the larger sequence
// number; when the two disagree about a path, newer wins.
func (cs ChangeSet) Merge(newer ChangeSet) ChangeSet {
	state := make(map[string]bool, cs.Len()+newer.Len())
	for _, p := range cs.Dirty {
		state[p] = true
	}
	for _, p := range cs.Deleted {
		state[p] = false
	}
	for _, p := range newer.Dirty {
		state[p] = true
	}
	for _, p := range newer.Deleted {
		state[p] = false
	}

	out := fromState(state)
	out.Seq = max(cs.Seq, newer.Seq)
	return out
}

// Compute normalizes raw events and diff paths into a ChangeSet.
//
// Diff paths count as modified. Events are applied in order after them,
// so the last event for a path decides whether it is dirty or deleted.
// Paths rejected by filter are dropped. Compute is pure.
func Compute(events []Event, diffPaths []string, filter *Filter) ChangeSet {
	state := make(map[string]bool, len(events)+len(diffPaths))
	for _, p := range diffPaths {
		p = cleanPath(p)
		if p == "" || !filter.Match(p) {
			continue
		}
		state[p] = true
	}
	for _, ev := range events {
		p := cleanPath(ev.Path)
		if p == "" || !filter.Match(p) {
			continue
		}
		state[p] = !ev.Op.removes()
	}
	return fromState(state)
}

func fromState(state map[string]bool) ChangeSet {
	var cs ChangeSet
	for p, dirty := range state {
		if dirty {
			cs.Dirty = append(cs.Dirty, p)
		} else {
			cs.Deleted = append(cs.Deleted, p)
		}
	}
	sort.Strings(cs.Dirty)
	sort.Strings(cs.Deleted)
	return cs
}
