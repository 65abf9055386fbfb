package recipe

import (
	"errors"
	"testing"
)

func TestLifecycleHappyPath(t *testing.T) {
	for _, f := range []Family{FamilyPOSIX, FamilyMSVC} {
		l := NewLifecycle()
		if err := l.Configure(f); err != nil {
			t.Fatalf("Configure(%s): %v", f, err)
		}
		if err := l.Built(); err != nil {
			t.Fatalf("Built: %v", err)
		}
		if err := l.Packaged(); err != nil {
			t.Fatalf("Packaged: %v", err)
		}
		if l.State() != StatePackaged || !l.State().Terminal() {
			t.Errorf("State() = %s, want terminal Packaged", l.State())
		}
	}
}

func TestLifecycleInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		run  func(l *Lifecycle) error
	}{
		{"build before configure", func(l *Lifecycle) error { return l.Built() }},
		{"package before build", func(l *Lifecycle) error {
			if err := l.Configure(FamilyPOSIX); err != nil {
				return nil
			}
			return l.Packaged()
		}},
		{"configure twice", func(l *Lifecycle) error {
			if err := l.Configure(FamilyPOSIX); err != nil {
				return nil
			}
			return l.Configure(FamilyMSVC)
		}},
		{"fail before configure", func(l *Lifecycle) error { return l.Fail(errors.New("boom")) }},
		{"leave packaged", func(l *Lifecycle) error {
			_ = l.Configure(FamilyMSVC)
			_ = l.Built()
			_ = l.Packaged()
			return l.Fail(errors.New("late"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(NewLifecycle()); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("err = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestLifecycleFailIsTerminal(t *testing.T) {
	l := NewLifecycle()
	_ = l.Configure(FamilyPOSIX)
	cause := errors.New("make: exit status 2")
	if err := l.Fail(cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if l.State() != StateFailed || l.Err() != cause {
		t.Fatalf("State() = %s, Err() = %v", l.State(), l.Err())
	}
	if err := l.Built(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Built after Failed err = %v", err)
	}
}

func TestStateString(t *testing.T) {
	if got := StateConfigureMSVC.String(); got != "ConfigureMSVC" {
		t.Errorf("String() = %q", got)
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("String() = %q", got)
	}
}
