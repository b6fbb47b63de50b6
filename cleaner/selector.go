package cleaner

import (
	"errors"
	"fmt"

	"github.com/andybalholm/cascadia"
)

// ValidateSelectors checks that every selector compiles. Configured CAPTCHA
// markers go through here before a batch starts.
func ValidateSelectors(selectors []string) error {
	var errs []error
	for _, s := range selectors {
		if _, err := cascadia.Parse(s); err != nil {
			errs = append(errs, fmt.Errorf("selector %q: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
