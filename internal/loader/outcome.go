package loader

import "github.com/sells-group/grocery-etl/internal/resilience"

// State is a record's position in the load lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateValidated State = "validated"
	StateNew       State = "persisted-new"
	StateDuplicate State = "persisted-duplicate"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateNew || s == StateDuplicate || s == StateFailed
}

// FailureKind classifies a failed record.
type FailureKind string

const (
	FailureValidation  FailureKind = "validation"
	FailurePersistence FailureKind = "persistence"
)

// Outcome is the result of loading one staged file.
type Outcome struct {
	Path        string
	UUID        string
	ProductName string
	// DealID is the store-assigned id: the new row's, or the existing row's
	// for a duplicate.
	DealID int64
	State  State
	Kind   FailureKind
	// Class says whether a failure may clear on a later run.
	Class resilience.ErrorClass
	Err   error
}

// Succeeded reports whether the record is in the store (new or duplicate).
func (o Outcome) Succeeded() bool {
	return o.State == StateNew || o.State == StateDuplicate
}

func (o Outcome) fail(kind FailureKind, err error) Outcome {
	o.State = StateFailed
	o.Kind = kind
	o.Err = err
	o.Class = resilience.ClassPermanent
	if kind == FailurePersistence {
		o.Class = resilience.ClassifyError(err)
	}
	return o
}

func (o Outcome) deadLetter() resilience.DeadLetter {
	d := resilience.DeadLetter{
		Key:   o.Path,
		ID:    o.UUID,
		Name:  o.ProductName,
		Stage: string(o.Kind),
		Class: o.Class,
	}
	if o.Err != nil {
		d.Error = o.Err.Error()
	}
	return d
}

// Summary tallies the outcomes of a batch.
type Summary struct {
	Loaded     int `json:"loaded"`
	Duplicates int `json:"duplicates"`
	Validated  int `json:"validated"`
	Failed     int `json:"failed"`
	// Transient counts the failures worth replaying.
	Transient int `json:"transient"`
	Total     int `json:"total"`
}

// Add counts o.
func (s *Summary) Add(o Outcome) {
	s.Total++
	switch o.State {
	case StateNew:
		s.Loaded++
	case StateDuplicate:
		s.Duplicates++
	case StateValidated:
		s.Validated++
	case StateFailed:
		s.Failed++
		if o.Class == resilience.ClassTransient {
			s.Transient++
		}
	}
}

// Succeeded is the number of records now present in the store.
func (s *Summary) Succeeded() int {
	return s.Loaded + s.Duplicates
}
