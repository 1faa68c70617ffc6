package models

// DefaultPageSize is the listing page size used when none is given
const DefaultPageSize = 25

// ListOptions represents pagination options for list queries
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalized returns a copy with defaults applied to out-of-range values
func (o ListOptions) Normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultPageSize
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
