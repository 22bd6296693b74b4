package types

// Summary counts the rows an executed plan touched, keyed by entity name.
type Summary struct {
	Deleted map[string]int64 `json:"deleted,omitempty"`
	Updated map[string]int64 `json:"updated,omitempty"`
}

// NewSummary returns an empty Summary with initialized maps.
func NewSummary() Summary {
	return Summary{
		Deleted: make(map[string]int64),
		Updated: make(map[string]int64),
	}
}

// AddDeleted records n physically removed rows of entity.
func (s *Summary) AddDeleted(entity string, n int64) {
	if s.Deleted == nil {
		s.Deleted = make(map[string]int64)
	}
	s.Deleted[entity] += n
}

// AddUpdated records n updated rows of entity.
func (s *Summary) AddUpdated(entity string, n int64) {
	if s.Updated == nil {
		s.Updated = make(map[string]int64)
	}
	s.Updated[entity] += n
}

// Total returns the number of rows deleted or updated.
func (s Summary) Total() int64 {
	var n int64
	for _, c := range s.Deleted {
		n += c
	}
	for _, c := range s.Updated {
		n += c
	}
	return n
}
