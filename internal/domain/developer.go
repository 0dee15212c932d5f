package domain

import "strings"

// DefaultSentinelDeveloper is the placeholder owner of work not yet given to a named team member.
const DefaultSentinelDeveloper = "Resource1"

// Developer identifies one team member by display name.
type Developer struct {
	Name string
}

// NewDeveloper validates one developer.
func NewDeveloper(name string) (Developer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Developer{}, ErrInvalidName
	}
	return Developer{Name: name}, nil
}

// Roster maps developer names to developers.
type Roster map[string]Developer

// Lookup resolves a developer by name.
func (r Roster) Lookup(name string) (Developer, bool) {
	d, ok := r[strings.TrimSpace(name)]
	return d, ok
}
