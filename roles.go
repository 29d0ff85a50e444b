package tenantauth

import (
	"slices"
	"strings"
)

// Well-known roles. Any other string is a valid role too.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// RoleSet is a flat, ordered, duplicate-free list of role names.
// Comparison is exact and case-sensitive.
type RoleSet []string

// ParseRoles splits a comma-separated role string ("USER,ADMIN").
// Blank entries and duplicates are dropped.
func ParseRoles(s string) RoleSet {
	if strings.TrimSpace(s) == "" {
		return RoleSet{}
	}
	return NewRoleSet(strings.Split(s, ",")...)
}

// NewRoleSet trims and deduplicates roles, keeping first-seen order.
func NewRoleSet(roles ...string) RoleSet {
	out := make(RoleSet, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s RoleSet) Has(role string) bool {
	return slices.Contains(s, role)
}

// HasAny reports whether s holds at least one of roles. An empty roles list
// is always satisfied.
func (s RoleSet) HasAny(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// String renders the set in the comma-separated storage form.
func (s RoleSet) String() string {
	return strings.Join(s, ",")
}

func (s RoleSet) clone() RoleSet {
	if s == nil {
		return RoleSet{}
	}
	return slices.Clone(s)
}
