package recipe

import (
	"fmt"
	"slices"
	"strings"
)

// MissingDelegatesError lists enabled delegates absent from a built library.
type MissingDelegatesError struct {
	Missing []Delegate
}

func (e *MissingDelegatesError) Error() string {
	return fmt.Sprintf("delegates enabled but not compiled in: %s", joinDelegates(e.Missing))
}

// VerifyDelegates checks that every delegate enabled in fs appears in the
// delegate list reported by the built library, as printed by
// GetMagickDelegates() or the "Delegates (built-in):" line of
// `magick -version`.
func VerifyDelegates(fs *FeatureSet, reported string) error {
	if _, list, ok := strings.Cut(reported, ":"); ok {
		reported = list
	}
	words := strings.Fields(reported)
	var missing []Delegate
	for _, d := range fs.Delegates() {
		if !slices.Contains(words, d.Token()) {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return &MissingDelegatesError{Missing: missing}
	}
	return nil
}
