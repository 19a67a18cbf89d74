package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Kind classifies a diagnostic.
type Kind int

const (
	KindStructuralViolation Kind = iota
	KindConvergenceWarning
	KindLookupMiss
	KindOperatorUnsupported
)

var kindNames = map[Kind]string{
	KindStructuralViolation: "StructuralViolation",
	KindConvergenceWarning:  "ConvergenceWarning",
	KindLookupMiss:          "LookupMiss",
	KindOperatorUnsupported: "OperatorUnsupported",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// MarshalText renders the kind name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Sentinel returns the sentinel error matching the kind.
func (k Kind) Sentinel() error {
	switch k {
	case KindStructuralViolation:
		return ErrStructuralViolation
	case KindConvergenceWarning:
		return ErrConvergence
	case KindLookupMiss:
		return ErrLookupMiss
	case KindOperatorUnsupported:
		return ErrOperatorUnsupported
	}
	return ErrInternal
}

// Diagnostic is one recorded condition of an interpretation run.
// Unit names the smallest unit of work it affected (a feature id, a
// component label, a projection name).
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Fatal   bool   `json:"fatal"`
	Unit    string `json:"unit,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements error so fatal diagnostics can be joined and unwrapped.
func (d Diagnostic) Error() string {
	if d.Unit != "" {
		return fmt.Sprintf("%s [%s]: %s", d.Kind, d.Unit, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

func (d Diagnostic) Unwrap() []error {
	if d.Err != nil {
		return []error{d.Kind.Sentinel(), d.Err}
	}
	return []error{d.Kind.Sentinel()}
}

// Diagnostics collects diagnostics. Safe for concurrent use.
type Diagnostics struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Add records d and logs it.
func (ds *Diagnostics) Add(d Diagnostic) {
	if d.Fatal {
		slog.Error("interpretation diagnostic", "kind", d.Kind, "unit", d.Unit, "message", d.Message)
	} else {
		slog.Warn("interpretation diagnostic", "kind", d.Kind, "unit", d.Unit, "message", d.Message)
	}
	ds.mu.Lock()
	ds.items = append(ds.items, d)
	ds.mu.Unlock()
}

// Warn records a non-fatal diagnostic.
func (ds *Diagnostics) Warn(kind Kind, unit, format string, args ...any) {
	ds.Add(Diagnostic{Kind: kind, Unit: unit, Message: fmt.Sprintf(format, args...)})
}

// Fail records a fatal diagnostic wrapping err.
func (ds *Diagnostics) Fail(kind Kind, unit string, err error) {
	ds.Add(Diagnostic{Kind: kind, Fatal: true, Unit: unit, Message: err.Error(), Err: err})
}

// Items returns a copy of the recorded diagnostics.
func (ds *Diagnostics) Items() []Diagnostic {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	out := make([]Diagnostic, len(ds.items))
	copy(out, ds.items)
	return out
}

// Append records already reported diagnostics without logging them again.
func (ds *Diagnostics) Append(items ...Diagnostic) {
	ds.mu.Lock()
	ds.items = append(ds.items, items...)
	ds.mu.Unlock()
}

// Merge appends all diagnostics of other.
func (ds *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	for _, d := range other.Items() {
		ds.mu.Lock()
		ds.items = append(ds.items, d)
		ds.mu.Unlock()
	}
}

// HasFatal reports whether any fatal diagnostic was recorded.
func (ds *Diagnostics) HasFatal() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, d := range ds.items {
		if d.Fatal {
			return true
		}
	}
	return false
}

// Err joins the fatal diagnostics, or returns nil when there are none.
func (ds *Diagnostics) Err() error {
	var errs []error
	for _, d := range ds.Items() {
		if d.Fatal {
			errs = append(errs, d)
		}
	}
	return errors.Join(errs...)
}
