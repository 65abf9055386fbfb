package build

import (
	"errors"
	"fmt"

	"github.com/goplus/llarmagick/recipe"
)

// ErrBuildInProgress is returned when another build holds the lock of the
// same configuration.
var ErrBuildInProgress = errors.New("build: another build of this configuration is in progress")

// StageError reports the lifecycle stage a build failed in.
type StageError struct {
	Stage recipe.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
