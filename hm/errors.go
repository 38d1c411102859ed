package hm

import (
	"fmt"

	"gorgonia.org/tensor"
)

// ShapeMismatch is returned when an operation receives an input whose
// dimensions disagree with the configured layer sizes.
type ShapeMismatch struct {
	Op        string
	Want, Got tensor.Shape
}

func (err ShapeMismatch) Error() string {
	return fmt.Sprintf("%s: expected shape %v, got %v", err.Op, err.Want, err.Got)
}

// InvalidPhase is returned for an unrecognised phase name.
type InvalidPhase string

func (err InvalidPhase) Error() string { return fmt.Sprintf("invalid phase %q", string(err)) }
