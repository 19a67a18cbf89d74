package model

// Bound selects the lower or upper end of a multiplicity.
type Bound int

const (
	Lower Bound = iota
	Upper
)

func (b Bound) String() string {
	if b == Lower {
		return "lower"
	}
	return "upper"
}

// ParseBound accepts "lower" or "upper".
func ParseBound(s string) (Bound, bool) {
	switch s {
	case "lower":
		return Lower, true
	case "upper":
		return Upper, true
	}
	return Upper, false
}

// Unbounded is the multiplicity bound value meaning "*".
const Unbounded = -1

// Store is the read-only view of the model the engine consumes.
type Store interface {
	Element(id string) (*Element, bool)
	Elements() []*Element
	Metatype(id string) Metatype
	// MultiplicityBound returns a non-negative bound or Unbounded.
	MultiplicityBound(id string, b Bound) int
	IsAbstract(id string) bool
	Owner(id string) (string, bool)
	IsInPackage(id, packageID string) bool
}

// ChangeKind distinguishes element insertion from removal.
type ChangeKind int

const (
	ChangePut ChangeKind = iota
	ChangeDelete
)

// Change describes one batch of model mutations.
type Change struct {
	Kind ChangeKind
	IDs  []string
}
