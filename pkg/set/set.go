package set

// Set is an unordered set of values of type T.
type Set[T comparable] map[T]struct{}

// Defining Set as a map type rather than a struct keeps normal indexing and
// iteration syntax available to callers.

// New returns an empty set.
func New[T comparable]() Set[T] {
	return make(Set[T])
}

// FromSlice returns a set containing the values in the given slice.
func FromSlice[T comparable](vals []T) Set[T] {
	set := make(Set[T], len(vals))
	for _, v := range vals {
		set.Insert(v)
	}
	return set
}

// Contains checks whether the passed-in value is present in the Set.
func (s *Set[T]) Contains(val T) bool {
	_, ok := (map[T]struct{})(*s)[val]
	return ok
}

// Insert adds the passed-in value to the Set.
func (s *Set[T]) Insert(val T) {
	(map[T]struct{})(*s)[val] = struct{}{}
}

// Remove removes the passed-in value from the Set.
func (s *Set[T]) Remove(val T) {
	delete((map[T]struct{})(*s), val)
}
