package database

type findOptions struct {
	limit  int
	offset int
	source string
	name   string
}

type FindOption func(*findOptions)

// Limit the number of records returned.
func WithFindLimit(limit int) FindOption {
	return func(o *findOptions) {
		o.limit = limit
	}
}

// Skip the newest records.
func WithFindOffset(offset int) FindOption {
	return func(o *findOptions) {
		o.offset = offset
	}
}

// Only return packages built from this source directory.
func WithFindSource(source string) FindOption {
	return func(o *findOptions) {
		o.source = source
	}
}

// Only return pipeline runs or backup runs with this name.
func WithFindName(name string) FindOption {
	return func(o *findOptions) {
		o.name = name
	}
}
