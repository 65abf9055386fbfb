package recipe

import (
	"errors"
	"fmt"
)

// Stage names the lifecycle stage an error was raised in.
type Stage string

const (
	StageConfigure Stage = "configure"
	StageBuild     Stage = "build"
	StagePackage   Stage = "package"
)

var (
	// ErrNotApplicable is returned when reading an option that does not exist
	// for the target (fPIC on Windows).
	ErrNotApplicable = errors.New("option not applicable to target")

	// ErrInvalidTransition is returned by Lifecycle for an illegal state change.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// ConfigError reports a configuration that cannot be resolved. It is always
// raised before any build step runs.
//
// Exactly one of Option or Table is set: Option for a bad option or setting
// value, Table for a lookup-table miss.
type ConfigError struct {
	Option string // option or setting name
	Table  string // lookup table that missed
	Key    string // offending value or lookup key
	Reason string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Table != "":
		return fmt.Sprintf("%s: %s table has no entry for %q", StageConfigure, e.Table, e.Key)
	case e.Reason != "":
		return fmt.Sprintf("%s: option %s=%q: %s", StageConfigure, e.Option, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s: invalid option %s=%q", StageConfigure, e.Option, e.Key)
}

func optionErr(name, value, reason string) error {
	return &ConfigError{Option: name, Key: value, Reason: reason}
}

func lookupErr(table, key string) error {
	return &ConfigError{Table: table, Key: key}
}
