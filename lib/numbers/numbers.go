package numbers

import "cmp"

// BetweenEq - Looks something like this. start <= number <= end
func BetweenEq[T cmp.Ordered](start, end, number T) bool {
	return number >= start && number <= end
}
