// Package codes generates the human-facing identifiers handed out during bulk
// imports: registration numbers, employee numbers and section codes. Values
// are checked against an in-memory registry seeded from one bulk read, never
// against the database per attempt.
package codes

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// unambiguousAlphabet drops 0/O/1/I to keep codes readable on paper.
const unambiguousAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const fullAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Attempt ceilings per key space. Generation never loops unboundedly.
const (
	MaxRegNoAttempts       = 1000
	MaxEmployeeNoAttempts  = 100
	MaxSectionCodeAttempts = 100
)

// ErrExhausted signals that the attempt ceiling was hit without finding a free
// value, which points at a shrinking key space or a bookkeeping bug.
var ErrExhausted = errors.New("identifier space exhausted")

// Registry is an in-memory uniqueness set. It is not safe for concurrent use;
// each import job owns its own registry.
type Registry struct {
	used map[string]struct{}
}

// NewRegistry seeds the registry with every value already persisted.
func NewRegistry(existing []string) *Registry {
	used := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		used[v] = struct{}{}
	}
	return &Registry{used: used}
}

// Reserve retries generate until it yields an unused value, claiming it
// immediately so later reservations in the same batch cannot collide.
func (r *Registry) Reserve(generate func() string, maxAttempts int) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := generate()
		if _, taken := r.used[candidate]; taken {
			continue
		}
		r.used[candidate] = struct{}{}
		return candidate, nil
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, maxAttempts)
}

// Contains reports whether a value is already reserved or persisted.
func (r *Registry) Contains(value string) bool {
	_, ok := r.used[value]
	return ok
}

// RegistrationNumber produces a 7 or 8 character student registration number.
func RegistrationNumber() string {
	length := 7
	if rand.Intn(2) == 1 {
		length = 8
	}
	return randomFrom(unambiguousAlphabet, length)
}

// EmployeeNumber produces prefix + 5 alphanumeric characters, e.g. SOA4K92T.
func EmployeeNumber(prefix string) string {
	return strings.ToUpper(prefix) + randomFrom(fullAlphabet, 5)
}

// SectionCode builds DEPT-YY-S{seq}{3 random}, e.g. CSE-24-S3KQ7. The batch
// year label is expected as "2024-2028"; its first year contributes "24".
func SectionCode(deptShortName, batchYear string, sequence int) string {
	year := "XX"
	if first, _, _ := strings.Cut(batchYear, "-"); len(first) >= 2 {
		year = first[len(first)-2:]
	}
	return fmt.Sprintf("%s-%s-S%d%s", strings.ToUpper(deptShortName), year, sequence, randomFrom(unambiguousAlphabet, 3))
}

func randomFrom(alphabet string, length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return b.String()
}
