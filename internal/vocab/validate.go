package vocab

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks a [Term] for required fields and a valid kind.
func Validate(term Term) error {
	var errs []error

	if strings.TrimSpace(term.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}

	if !term.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("kind %q is not a recognised term kind", term.Kind))
	}

	for i, a := range term.Aliases {
		if strings.TrimSpace(a) == "" {
			errs = append(errs, fmt.Errorf("alias[%d]: must not be empty", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
