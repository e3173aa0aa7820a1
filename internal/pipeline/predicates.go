package pipeline

import (
	"slices"

	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

// GlobalPredicate is checked for every stage before the stage's own Applies.
type GlobalPredicate func(d Descriptor, ev Event) bool

// CompilePredicates turns the predicate specs of a snapshot into checks.
// Unknown kinds accept everything; Parse already rejects them.
func CompilePredicates(specs []remoteconfig.PredicateSpec) []GlobalPredicate {
	out := make([]GlobalPredicate, 0, len(specs))
	for _, spec := range specs {
		spec := spec
		switch spec.Kind {
		case remoteconfig.PredicateDisableStages:
			out = append(out, func(d Descriptor, _ Event) bool {
				return !slices.Contains(spec.Stages, d.Identifier)
			})
		case remoteconfig.PredicateDisableKinds:
			out = append(out, func(d Descriptor, _ Event) bool {
				return !slices.Contains(spec.Kinds, string(d.Kind))
			})
		case remoteconfig.PredicateRequireSources:
			out = append(out, func(d Descriptor, ev Event) bool {
				if len(spec.Stages) > 0 && !slices.Contains(spec.Stages, d.Identifier) {
					return true
				}
				return slices.Contains(spec.Sources, ev.Source)
			})
		}
	}
	return out
}

func allow(preds []GlobalPredicate, d Descriptor, ev Event) bool {
	for _, p := range preds {
		if !p(d, ev) {
			return false
		}
	}
	return true
}
