package contract

import "fmt"

type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

type Reason string

const (
	ReasonMissing   Reason = "missing"
	ReasonWrongType Reason = "wrong type"
)

// Violation reports the first field of a candidate that does not satisfy its shape.
type Violation struct {
	Task      Task
	Direction Direction
	Field     string
	Reason    Reason
	Want      Kind
	Got       string
}

func (v *Violation) Error() string {
	if v.Reason == ReasonMissing {
		return fmt.Sprintf("%s %s: field %q is missing (want %s)", v.Task, v.Direction, v.Field, v.Want)
	}
	return fmt.Sprintf("%s %s: field %q has wrong type (want %s, got %s)", v.Task, v.Direction, v.Field, v.Want, v.Got)
}
