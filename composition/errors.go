package composition

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidQuantity is returned when a requested mass is not a finite
	// number above the allowed minimum. The input is left unchanged.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrEmptyComposition is returned when a formula without shares reaches
	// the normalizer or the flattener. It points at malformed catalog data.
	ErrEmptyComposition = errors.New("formula has no ingredients")

	// ErrItemNotFound is returned for an item index outside the prescription.
	ErrItemNotFound = errors.New("prescription item not found")
)

// MinHerbMass is the smallest mass a herb item may be set to.
const MinHerbMass = 1.0

func checkPositive(mass float64) error {
	if math.IsNaN(mass) || math.IsInf(mass, 0) {
		return fmt.Errorf("%w: %v is not a number", ErrInvalidQuantity, mass)
	}
	if mass <= 0 {
		return fmt.Errorf("%w: %v must be greater than 0", ErrInvalidQuantity, mass)
	}
	return nil
}

func checkHerbMass(mass float64) error {
	if err := checkPositive(mass); err != nil {
		return err
	}
	if mass < MinHerbMass {
		return fmt.Errorf("%w: %v is below the minimum of %vg", ErrInvalidQuantity, mass, MinHerbMass)
	}
	return nil
}
