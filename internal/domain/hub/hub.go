// Package hub defines the business hub areas prompts and documents are organised by.
package hub

import (
	"fmt"
	"strings"
)

// Area is a business category. The zero value means "all hubs".
type Area string

// Hub area constants.
const (
	Marketing       Area = "marketing"
	Sales           Area = "sales"
	Operations      Area = "operations"
	Finance         Area = "finance"
	HR              Area = "hr"
	Legal           Area = "legal"
	Product         Area = "product"
	Strategy        Area = "strategy"
	CustomerService Area = "customer_service"
	Technology      Area = "technology"
)

// All is the sentinel used in cache keys when no hub area is requested.
const All = "all"

var known = map[Area]struct{}{
	Marketing: {}, Sales: {}, Operations: {}, Finance: {}, HR: {},
	Legal: {}, Product: {}, Strategy: {}, CustomerService: {}, Technology: {},
}

// Values returns every known hub area in declaration order.
func Values() []Area {
	return []Area{
		Marketing, Sales, Operations, Finance, HR,
		Legal, Product, Strategy, CustomerService, Technology,
	}
}

// Parse normalizes s (trim, lower-case) and validates it against the known set.
// An empty string parses to the zero Area.
func Parse(s string) (Area, error) {
	a := normalize(s)
	if a == "" {
		return "", nil
	}
	if !a.IsValid() {
		return "", fmt.Errorf("unknown hub area %q", s)
	}
	return a, nil
}

// IsValid reports whether a is one of the known hub areas.
func (a Area) IsValid() bool {
	_, ok := known[a]
	return ok
}

// IsZero reports whether no hub area was requested.
func (a Area) IsZero() bool { return a == "" }

// KeyPart returns the hub area for cache key derivation, or All when unset.
func (a Area) KeyPart() string {
	if a.IsZero() {
		return All
	}
	return string(a)
}

// FromStrings converts stored document hub areas leniently: values are
// normalized and empties dropped, unknown areas are kept as-is so ranking
// still sees what ingestion wrote.
func FromStrings(values []string) []Area {
	out := make([]Area, 0, len(values))
	for _, v := range values {
		if a := normalize(v); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Split parses a separator-joined hub area list (the TAG field storage format).
func Split(s, sep string) []Area {
	if s == "" {
		return nil
	}
	return FromStrings(strings.Split(s, sep))
}

// Join renders areas as a separator-joined list.
func Join(areas []Area, sep string) string {
	parts := make([]string, len(areas))
	for i, a := range areas {
		parts[i] = string(a)
	}
	return strings.Join(parts, sep)
}

// Strings converts areas to plain strings.
func Strings(areas []Area) []string {
	out := make([]string, len(areas))
	for i, a := range areas {
		out[i] = string(a)
	}
	return out
}

// Contains reports whether target is in areas. A zero target never matches.
func Contains(areas []Area, target Area) bool {
	if target.IsZero() {
		return false
	}
	for _, a := range areas {
		if a == target {
			return true
		}
	}
	return false
}

func normalize(s string) Area {
	return Area(strings.ToLower(strings.TrimSpace(s)))
}
