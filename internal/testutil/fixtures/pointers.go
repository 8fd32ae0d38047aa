// Package fixtures builds campaigns and investments for tests.
package fixtures

// Ptr returns a pointer to v, for optional fields such as bounds and window dates
func Ptr[T any](v T) *T {
	return &v
}
