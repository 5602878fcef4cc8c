package backend

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/gantryhq/gantry/internal/errors"
)

// Requirement is one user-requested package with an optional version
// constraint. The zero constraint (no "@" part) matches any version.
type Requirement struct {
	// Name is the requested package name.
	Name string

	// Constraint restricts acceptable versions. Never nil after
	// ParseRequirement; bare names get a match-anything constraint.
	Constraint *semver.Constraints

	// Raw preserves the original input for error messages and display.
	Raw string
}

// anyVersion matches every release version.
var anyVersion = func() *semver.Constraints {
	c, err := semver.NewConstraint("*")
	if err != nil {
		panic(fmt.Sprintf("parse wildcard constraint: %v", err))
	}
	return c
}()

// ParseRequirement parses a requirement string of the form "name" or
// "name@constraint". The constraint accepts anything Masterminds semver
// does: exact versions ("1.2.3"), ranges (">=1.0.0 <2.0.0"), carets and
// tildes ("^1.2", "~1.2.3"), and wildcards ("1.x").
func ParseRequirement(s string) (Requirement, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Requirement{}, errors.Wrap(errors.ErrBadRequirement, "empty requirement")
	}

	name := s
	spec := ""
	if i := strings.Index(s, "@"); i >= 0 {
		name, spec = s[:i], s[i+1:]
	}

	if err := validateName(name); err != nil {
		return Requirement{}, errors.Wrapf(errors.ErrBadRequirement, "requirement %q: %v", raw, err)
	}

	cons := anyVersion
	if spec != "" {
		c, err := semver.NewConstraint(spec)
		if err != nil {
			return Requirement{}, errors.Wrapf(errors.ErrBadRequirement, "requirement %q: bad constraint %q: %v", raw, spec, err)
		}
		cons = c
	} else if strings.Contains(s, "@") {
		return Requirement{}, errors.Wrapf(errors.ErrBadRequirement, "requirement %q: empty constraint after @", raw)
	}

	return Requirement{Name: name, Constraint: cons, Raw: raw}, nil
}

// ParseRequirements parses a list of requirement strings, failing on the
// first malformed entry.
func ParseRequirements(args []string) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(args))
	for _, arg := range args {
		req, err := ParseRequirement(arg)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Matches reports whether a concrete version satisfies the requirement.
func (r Requirement) Matches(v *semver.Version) bool {
	if r.Constraint == nil {
		return true
	}
	return r.Constraint.Check(v)
}

// String returns the original requirement text.
func (r Requirement) String() string {
	if r.Raw != "" {
		return r.Raw
	}
	return r.Name
}

// validateName rejects names that would be ambiguous in keys or unsafe as
// path components.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty package name")
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return fmt.Errorf("invalid character %q in package name", c)
		}
	}
	if name[0] == '.' || name[0] == '-' {
		return fmt.Errorf("package name cannot start with %q", name[0])
	}
	return nil
}
