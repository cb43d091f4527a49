package ptr

func To[T any](val T) *T {
	return &val
}

func ToString(val string) *string {
	return &val
}
