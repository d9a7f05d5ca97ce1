package generic

// Void is the zero-size value type used for set membership.
type Void struct{}

func NewVoid() Void {
	return Void{}
}

type Set[T comparable] interface {
	Add(items ...T) int
	Clear()
	Clone() Set[T]
	// Contains returns true only if every item is in the set.
	Contains(items ...T) bool
	Count() int
	Remove(item T) bool
	ToSlice() []T
}

func NewSet[T comparable](items ...T) Set[T] {
	res := make(set[T], len(items))
	res.Add(items...)
	return res
}

type set[T comparable] map[T]Void

// Add inserts each item, returning how many were not already present.
func (s set[T]) Add(items ...T) int {
	added := 0
	for _, item := range items {
		if _, found := s[item]; !found {
			s[item] = NewVoid()
			added++
		}
	}
	return added
}

func (s set[T]) Clear() {
	for item := range s {
		delete(s, item)
	}
}

func (s set[T]) Clone() Set[T] {
	res := make(set[T], len(s))
	for item := range s {
		res[item] = NewVoid()
	}
	return res
}

func (s set[T]) Contains(items ...T) bool {
	for _, item := range items {
		if _, found := s[item]; !found {
			return false
		}
	}
	return true
}

func (s set[T]) Count() int {
	return len(s)
}

func (s set[T]) Remove(item T) bool {
	if _, found := s[item]; !found {
		return false
	}
	delete(s, item)
	return true
}

func (s set[T]) ToSlice() []T {
	slice := make([]T, 0, len(s))
	for item := range s {
		slice = append(slice, item)
	}
	return slice
}
