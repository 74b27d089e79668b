package dataset

// SwapRemove removes element at index i by moving the last element into its place.
// It returns the shrunk slice and the former index of the moved element, or -1 if nothing was moved.
func SwapRemove[T any](s []T, i int) ([]T, int) {
	last := len(s) - 1
	var zero T
	if i == last {
		s[last] = zero
		return s[:last], -1
	}

	s[i] = s[last]
	s[last] = zero
	return s[:last], last
}
