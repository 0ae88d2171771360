package pathexpr

import (
	"fmt"

	"github.com/specado/specado/value"
)

// NotFoundError indicates that an intermediate or terminal path segment did
// not resolve to anything in the target value. It is not a parse error:
// per spec.md §4.1, a missing intermediate member is "not found", not a
// failure.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pathexpr: not found: %s", e.Path)
}

// WriteConflictKind enumerates the ways a write/delete can fail against
// the shape of the existing tree.
type WriteConflictKind string

const (
	// ConflictIncompatibleType means an intermediate segment already holds
	// a scalar or a container of the wrong kind for the next segment.
	ConflictIncompatibleType WriteConflictKind = "incompatible_type"
	// ConflictIndexOutOfRange means a numeric index targets an array but
	// is neither within range nor equal to len(array) (the only way to
	// append).
	ConflictIndexOutOfRange WriteConflictKind = "index_out_of_range"
	// ConflictNotWritable means the path contains a wildcard or recursive
	// descent segment, which spec.md §4.1/§9 restrict to reads.
	ConflictNotWritable WriteConflictKind = "not_writable"
)

// WriteConflictError reports a write/delete that collided with the
// existing shape of the tree (spec.md §7 ErrorKind "PathWriteConflict").
type WriteConflictError struct {
	Kind WriteConflictKind
	Path string
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("pathexpr: write conflict (%s) at %s", e.Kind, e.Path)
}

// Read evaluates path against root. A path with no wildcard segments
// returns a single value; a path containing a wildcard returns the
// sequence of matched values. Missing intermediate members produce
// *NotFoundError, never a panic.
func Read(root *value.Value, path *Path) (*value.Value, error) {
	cur := []*value.Value{root}
	hadWildcard := false

	for _, seg := range path.segments {
		next := make([]*value.Value, 0, len(cur))

		for _, c := range cur {
			switch seg.Kind {
			case SegmentMember:
				obj, ok := c.Object()
				if !ok {
					return nil, &NotFoundError{Path: path.raw}
				}

				v, ok := obj.Get(seg.Member)
				if !ok {
					return nil, &NotFoundError{Path: path.raw}
				}

				next = append(next, v)
			case SegmentIndex:
				arr, ok := c.Array()
				if !ok {
					return nil, &NotFoundError{Path: path.raw}
				}

				idx := resolveIndex(seg.Index, len(arr))
				if idx < 0 || idx >= len(arr) {
					return nil, &NotFoundError{Path: path.raw}
				}

				next = append(next, arr[idx])
			case SegmentWildcard:
				hadWildcard = true

				arr, ok := c.Array()
				if !ok {
					continue
				}

				next = append(next, arr...)
			case SegmentRecursive:
				hadWildcard = true
				next = append(next, collectRecursive(c)...)
			}
		}

		cur = next

		if len(cur) == 0 && seg.Kind != SegmentWildcard && seg.Kind != SegmentRecursive {
			return nil, &NotFoundError{Path: path.raw}
		}
	}

	if hadWildcard {
		return value.Array(cur...), nil
	}

	if len(cur) == 0 {
		return nil, &NotFoundError{Path: path.raw}
	}

	return cur[0], nil
}

func collectRecursive(v *value.Value) []*value.Value {
	var out []*value.Value

	switch v.Kind() {
	case value.KindArray:
		arr, _ := v.Array()
		for _, e := range arr {
			out = append(out, e)
			out = append(out, collectRecursive(e)...)
		}
	case value.KindObject:
		obj, _ := v.Object()
		for _, k := range obj.Keys() {
			e, _ := obj.Get(k)
			out = append(out, e)
			out = append(out, collectRecursive(e)...)
		}
	}

	return out
}

func resolveIndex(idx, length int) int {
	if idx < 0 {
		return length + idx
	}

	return idx
}

// Write sets the value at path within root, creating missing intermediate
// object segments as it goes (spec.md §4.1). It returns the value
// previously at the target (or nil if absent) so callers can record a
// lossiness `before`. Writing through an array index only succeeds when
// the index is within range or exactly equal to the current length
// (append); any other index is ConflictIndexOutOfRange. Wildcard paths are
// rejected as ConflictNotWritable.
func Write(root *value.Value, path *Path, newValue *value.Value) (*value.Value, error) {
	if !path.Writable() {
		return nil, &WriteConflictError{Kind: ConflictNotWritable, Path: path.raw}
	}

	if len(path.segments) == 0 {
		return nil, &WriteConflictError{Kind: ConflictIncompatibleType, Path: path.raw}
	}

	return writeSegments(root, path.segments, newValue, path.raw)
}

func writeSegments(cur *value.Value, segs []Segment, newValue *value.Value, raw string) (*value.Value, error) {
	seg := segs[0]
	last := len(segs) == 1

	switch seg.Kind {
	case SegmentMember:
		obj, ok := cur.Object()
		if !ok {
			if cur.Kind() != value.KindNull {
				return nil, &WriteConflictError{Kind: ConflictIncompatibleType, Path: raw}
			}
			// Promote a null in place is not possible since *value.Value
			// is returned by value from constructors; callers obtain the
			// container via the parent, so this branch only triggers for
			// a root call on a fresh Null(), which we disallow: the
			// orchestrator always starts from NewObject().
			return nil, &WriteConflictError{Kind: ConflictIncompatibleType, Path: raw}
		}

		if last {
			old, existed := obj.Get(seg.Member)
			obj.Set(seg.Member, newValue)

			if !existed {
				return nil, nil
			}

			return old, nil
		}

		child, existed := obj.Get(seg.Member)
		if !existed || child.IsNull() {
			child = containerFor(segs[1])
			obj.Set(seg.Member, child)
		}

		return writeSegments(child, segs[1:], newValue, raw)
	case SegmentIndex:
		arr, ok := cur.Array()
		if !ok {
			return nil, &WriteConflictError{Kind: ConflictIncompatibleType, Path: raw}
		}

		idx := resolveIndex(seg.Index, len(arr))

		if last {
			if idx == len(arr) {
				arr = append(arr, newValue)
				setArray(cur, arr)

				return nil, nil
			}

			if idx < 0 || idx >= len(arr) {
				return nil, &WriteConflictError{Kind: ConflictIndexOutOfRange, Path: raw}
			}

			old := arr[idx]
			arr[idx] = newValue
			setArray(cur, arr)

			return old, nil
		}

		if idx == len(arr) {
			child := containerFor(segs[1])
			arr = append(arr, child)
			setArray(cur, arr)

			return writeSegments(child, segs[1:], newValue, raw)
		}

		if idx < 0 || idx >= len(arr) {
			return nil, &WriteConflictError{Kind: ConflictIndexOutOfRange, Path: raw}
		}

		child := arr[idx]
		if child.IsNull() {
			child = containerFor(segs[1])
			arr[idx] = child
			setArray(cur, arr)
		}

		return writeSegments(child, segs[1:], newValue, raw)
	default:
		return nil, &WriteConflictError{Kind: ConflictNotWritable, Path: raw}
	}
}

// setArray mutates cur in place to hold arr as its array payload. *value.Value
// fields are unexported, so mutation goes through the exported constructor
// plus a direct field copy within the package.
func setArray(cur *value.Value, arr []*value.Value) {
	*cur = *value.Array(arr...)
}

func containerFor(next Segment) *value.Value {
	if next.Kind == SegmentIndex {
		return value.Array()
	}

	return value.NewObject()
}

// Delete removes the value at path within root, returning the removed
// value and whether it was present. A missing path is reported as
// (nil, false, nil) — not an error — matching Read's "not found" treatment
// for intermediate absence described in spec.md §4.1.
func Delete(root *value.Value, path *Path) (*value.Value, bool, error) {
	if !path.Writable() {
		return nil, false, &WriteConflictError{Kind: ConflictNotWritable, Path: path.raw}
	}

	if len(path.segments) == 0 {
		return nil, false, nil
	}

	return deleteSegments(root, path.segments)
}

func deleteSegments(cur *value.Value, segs []Segment) (*value.Value, bool, error) {
	seg := segs[0]
	last := len(segs) == 1

	switch seg.Kind {
	case SegmentMember:
		obj, ok := cur.Object()
		if !ok {
			return nil, false, nil
		}

		if last {
			v, existed := obj.Delete(seg.Member)

			return v, existed, nil
		}

		child, existed := obj.Get(seg.Member)
		if !existed {
			return nil, false, nil
		}

		return deleteSegments(child, segs[1:])
	case SegmentIndex:
		arr, ok := cur.Array()
		if !ok {
			return nil, false, nil
		}

		idx := resolveIndex(seg.Index, len(arr))
		if idx < 0 || idx >= len(arr) {
			return nil, false, nil
		}

		if last {
			removed := arr[idx]
			arr = append(arr[:idx], arr[idx+1:]...)
			setArray(cur, arr)

			return removed, true, nil
		}

		return deleteSegments(arr[idx], segs[1:])
	default:
		return nil, false, &WriteConflictError{Kind: ConflictNotWritable, Path: segs[0].Member}
	}
}
