// Package filter evaluates feed include/exclude globs against paths
// relative to a source base.
package filter

// Matcher applies a feed's exclude and include patterns. Excludes always
// win; an empty include list accepts everything not excluded.
type Matcher struct {
	includes []*Pattern
	excludes []*Pattern
}

// NewMatcher compiles includes and excludes, reporting the first invalid
// pattern.
func NewMatcher(includes, excludes []string) (*Matcher, error) {
	m := &Matcher{}
	for _, g := range includes {
		if err := m.AddInclude(g); err != nil {
			return nil, err
		}
	}
	for _, g := range excludes {
		if err := m.AddExclude(g); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddInclude appends an include pattern.
func (m *Matcher) AddInclude(glob string) error {
	p, err := Compile(glob)
	if err != nil {
		return err
	}
	m.includes = append(m.includes, p)
	return nil
}

// AddExclude appends an exclude pattern.
func (m *Matcher) AddExclude(glob string) error {
	p, err := Compile(glob)
	if err != nil {
		return err
	}
	m.excludes = append(m.excludes, p)
	return nil
}

// Match reports whether relPath should be emitted.
func (m *Matcher) Match(relPath string) bool {
	for _, p := range m.excludes {
		if p.Match(relPath) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, p := range m.includes {
		if p.Match(relPath) {
			return true
		}
	}
	return false
}
