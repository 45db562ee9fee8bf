package contract

import (
	"reflect"
	"sort"
	"strconv"
)

// Op is one field-level operation of a revision patch. Path is a "/"-joined
// field path rooted at the contract ("title", "value/amount",
// "changes/0/status").
type Op struct {
	Op    string `json:"op" bson:"op"`
	Path  string `json:"path" bson:"path"`
	Value any    `json:"value,omitempty" bson:"value,omitempty"`
}

const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// Diff computes the ordered list of field operations turning before into
// after. Both inputs are plain projections. The walk visits keys in sorted
// order, so equal inputs always produce the same (possibly empty) list.
func Diff(before, after map[string]any) []Op {
	var ops []Op
	diffMaps("", before, after, &ops)
	return ops
}

func diffMaps(prefix string, before, after map[string]any, ops *[]Op) {
	keys := make([]string, 0, len(before)+len(after))
	seen := map[string]struct{}{}
	for k := range before {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range after {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "/" + k
		}
		bv, inBefore := before[k]
		av, inAfter := after[k]
		switch {
		case !inBefore:
			*ops = append(*ops, Op{Op: OpAdd, Path: path, Value: av})
		case !inAfter:
			*ops = append(*ops, Op{Op: OpRemove, Path: path})
		default:
			diffValues(path, bv, av, ops)
		}
	}
}

func diffValues(path string, bv, av any, ops *[]Op) {
	bm, bIsMap := bv.(map[string]any)
	am, aIsMap := av.(map[string]any)
	if bIsMap && aIsMap {
		diffMaps(path, bm, am, ops)
		return
	}
	bs, bIsSlice := bv.([]any)
	as, aIsSlice := av.([]any)
	if bIsSlice && aIsSlice && len(bs) == len(as) {
		// element-wise only when lengths match; growth or shrink of a
		// collection is recorded as a whole-field replace
		for i := range bs {
			diffValues(path+"/"+strconv.Itoa(i), bs[i], as[i], ops)
		}
		return
	}
	if !reflect.DeepEqual(bv, av) {
		*ops = append(*ops, Op{Op: OpReplace, Path: path, Value: av})
	}
}
