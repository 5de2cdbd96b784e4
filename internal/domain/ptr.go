package domain

// Ptr returns a pointer to v. Used for the optional columns.
func Ptr[T any](v T) *T {
	return &v
}
