package service

import (
	"context"
	"fmt"
	"strings"
)

// uniquenessStore is the batched-lookup surface the deduplicator needs.
type uniquenessStore interface {
	ExistingEmails(ctx context.Context, emails []string) ([]string, error)
	ExistingPhones(ctx context.Context, phones []string) ([]string, error)
}

// DedupService rejects rows whose email or phone is already persisted or
// duplicated earlier in the same submission. Lookups are batched: one read
// per key class, never one query per row.
type DedupService struct{}

// NewDedupService constructs the deduplicator.
func NewDedupService() *DedupService {
	return &DedupService{}
}

type dedupKey struct {
	position int
	data     Row
	email    string
	phone    string
}

// FilterStudents returns the surviving candidates and the rejections.
func (s *DedupService) FilterStudents(ctx context.Context, store uniquenessStore, candidates []StudentCandidate) ([]StudentCandidate, []Rejection, error) {
	keys := make([]dedupKey, len(candidates))
	for i, c := range candidates {
		keys[i] = dedupKey{position: c.Position, data: c.Data, email: c.Email, phone: c.Phone}
	}
	keep, rejections, err := s.filter(ctx, store, keys)
	if err != nil {
		return nil, nil, err
	}
	var surviving []StudentCandidate
	for i, ok := range keep {
		if ok {
			surviving = append(surviving, candidates[i])
		}
	}
	return surviving, rejections, nil
}

// FilterTeachers returns the surviving candidates and the rejections.
func (s *DedupService) FilterTeachers(ctx context.Context, store uniquenessStore, candidates []TeacherCandidate) ([]TeacherCandidate, []Rejection, error) {
	keys := make([]dedupKey, len(candidates))
	for i, c := range candidates {
		keys[i] = dedupKey{position: c.Position, data: c.Data, email: c.Email, phone: c.Phone}
	}
	keep, rejections, err := s.filter(ctx, store, keys)
	if err != nil {
		return nil, nil, err
	}
	var surviving []TeacherCandidate
	for i, ok := range keep {
		if ok {
			surviving = append(surviving, candidates[i])
		}
	}
	return surviving, rejections, nil
}

func (s *DedupService) filter(ctx context.Context, store uniquenessStore, keys []dedupKey) ([]bool, []Rejection, error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}

	emails := make([]string, 0, len(keys))
	phones := make([]string, 0, len(keys))
	for _, k := range keys {
		emails = append(emails, k.email)
		phones = append(phones, k.phone)
	}

	existingEmailList, err := store.ExistingEmails(ctx, emails)
	if err != nil {
		return nil, nil, fmt.Errorf("dedup email lookup: %w", err)
	}
	existingPhoneList, err := store.ExistingPhones(ctx, phones)
	if err != nil {
		return nil, nil, fmt.Errorf("dedup phone lookup: %w", err)
	}

	existingEmails := toSet(existingEmailList)
	existingPhones := toSet(existingPhoneList)
	seenEmails := make(map[string]struct{}, len(keys))
	seenPhones := make(map[string]struct{}, len(keys))

	keep := make([]bool, len(keys))
	var rejections []Rejection

	for i, k := range keys {
		var reasons []string

		if _, exists := existingEmails[k.email]; exists {
			reasons = append(reasons, fmt.Sprintf("email '%s' already exists", k.email))
		} else if _, seen := seenEmails[k.email]; seen {
			reasons = append(reasons, fmt.Sprintf("duplicate email '%s' in file", k.email))
		}

		if _, exists := existingPhones[k.phone]; exists {
			reasons = append(reasons, fmt.Sprintf("phone '%s' already exists", k.phone))
		} else if _, seen := seenPhones[k.phone]; seen {
			reasons = append(reasons, fmt.Sprintf("duplicate phone '%s' in file", k.phone))
		}

		if len(reasons) > 0 {
			// A row failing both checks is still one rejection.
			rejections = append(rejections, Rejection{Row: k.position + 1, Reason: strings.Join(reasons, ", "), Data: k.data})
			continue
		}

		keep[i] = true
		seenEmails[k.email] = struct{}{}
		seenPhones[k.phone] = struct{}{}
	}

	return keep, rejections, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
