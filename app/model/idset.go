package model

// IDSet is a set of string identifiers.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int {
	return len(s)
}

// Subtracting returns s - other.
func (s IDSet) Subtracting(other IDSet) IDSet {
	out := make(IDSet)
	for id := range s {
		if !other.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// Intersecting returns s ∩ other.
func (s IDSet) Intersecting(other IDSet) IDSet {
	out := make(IDSet)
	for id := range s {
		if other.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

func (s IDSet) Union(other IDSet) IDSet {
	out := make(IDSet, len(s)+len(other))
	for id := range s {
		out.Add(id)
	}
	for id := range other {
		out.Add(id)
	}
	return out
}

func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// Chunked splits ids into groups of at most size, preserving order. A size
// of zero or less yields a single chunk.
func Chunked(ids []string, size int) [][]string {
	if size <= 0 {
		if len(ids) == 0 {
			return nil
		}
		return [][]string{ids}
	}
	var chunks [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}
