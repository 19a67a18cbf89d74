package lpg

// Dictionary interns string ids as dense arena indices.
type Dictionary struct {
	forward map[string]int
}

func newDictionary(sizeHint int) *Dictionary {
	return &Dictionary{forward: make(map[string]int, sizeHint)}
}

// GetOrCreateID returns the index for s, allocating the next one if needed.
func (d *Dictionary) GetOrCreateID(s string) int {
	if id, ok := d.forward[s]; ok {
		return id
	}
	id := len(d.forward)
	d.forward[s] = id
	return id
}

// GetID returns the index for s without allocating.
func (d *Dictionary) GetID(s string) (int, bool) {
	id, ok := d.forward[s]
	return id, ok
}
