package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-import-api/internal/dto"
	"github.com/noah-isme/campus-import-api/internal/models"
	"github.com/noah-isme/campus-import-api/pkg/codes"
	appErrors "github.com/noah-isme/campus-import-api/pkg/errors"
)

// sectionStore is the persistence surface the allocator needs.
type sectionStore interface {
	ListOccupancy(ctx context.Context, batchID, departmentID string) ([]models.SectionOccupancy, error)
	CreateMany(ctx context.Context, sections []models.Section) error
}

// AllocatorConfig fixes the capacity ceiling and the minimum-viable floor.
// Both come from configuration, never computed.
type AllocatorConfig struct {
	SectionCapacity     int
	MinSectionOccupancy int
}

// AllocatorService distributes valid student rows across sections under a
// hard capacity ceiling, balancing gender counts. One allocation pass owns
// all of its mutable state; nothing here is safe for concurrent use and
// nothing needs to be.
type AllocatorService struct {
	sections sectionStore
	cfg      AllocatorConfig
	logger   *zap.Logger
}

// NewAllocatorService constructs the allocator.
func NewAllocatorService(sections sectionStore, cfg AllocatorConfig, logger *zap.Logger) *AllocatorService {
	if cfg.SectionCapacity <= 0 {
		cfg.SectionCapacity = 70
	}
	if cfg.MinSectionOccupancy <= 0 {
		cfg.MinSectionOccupancy = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocatorService{sections: sections, cfg: cfg, logger: logger}
}

// AllocationResult maps every candidate (by slice index) to a section and
// summarises per-section placement for the caller.
type AllocationResult struct {
	Assignments     []string
	SectionCodeByID map[string]string
	Summaries       []dto.SectionAllocationSummary
	SectionsCreated int
}

// sectionState tracks one section during a single allocation pass.
type sectionState struct {
	id       string
	code     string
	capacity int
	isNew    bool
	existing [3]int
	added    [3]int
}

func (s *sectionState) occupied() int {
	total := 0
	for g := 0; g < 3; g++ {
		total += s.existing[g] + s.added[g]
	}
	return total
}

func (s *sectionState) spare() int {
	return s.capacity - s.occupied()
}

func (s *sectionState) genderTotal(g int) int {
	return s.existing[g] + s.added[g]
}

func (s *sectionState) addedTotal() int {
	return s.added[0] + s.added[1] + s.added[2]
}

func genderIndex(gender string) int {
	switch gender {
	case models.GenderMale:
		return 0
	case models.GenderFemale:
		return 1
	default:
		return 2
	}
}

// Allocate plans capacity, creates any missing sections, and assigns every
// candidate to a section. A zero-candidate batch is a no-op, not an error.
func (s *AllocatorService) Allocate(ctx context.Context, batch *models.Batch, department *models.Department, candidates []StudentCandidate) (*AllocationResult, error) {
	if len(candidates) == 0 {
		return &AllocationResult{}, nil
	}

	occupancies, err := s.sections.ListOccupancy(ctx, batch.ID, department.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
	}

	working := make([]*sectionState, 0, len(occupancies))
	for _, occ := range occupancies {
		capacity := occ.Capacity
		if capacity <= 0 {
			capacity = s.cfg.SectionCapacity
		}
		working = append(working, &sectionState{
			id:       occ.ID,
			code:     occ.Code,
			capacity: capacity,
			existing: [3]int{occ.MaleCount, occ.FemaleCount, occ.OtherCount},
		})
	}

	created, err := s.planSections(ctx, batch, department, working, len(candidates))
	if err != nil {
		return nil, err
	}
	working = append(working, created...)

	assignments, err := placeCandidates(working, candidates)
	if err != nil {
		return nil, err
	}
	rebalanceSparseSections(working, candidates, assignments, s.cfg.MinSectionOccupancy)

	codesByID := make(map[string]string, len(working))
	for _, sec := range working {
		codesByID[sec.id] = sec.code
	}
	result := &AllocationResult{
		Assignments:     assignments,
		SectionCodeByID: codesByID,
		SectionsCreated: len(created),
		Summaries:       summarise(working),
	}
	s.logger.Sugar().Infow("allocation finished",
		"batch_id", batch.ID,
		"department_id", department.ID,
		"students", len(candidates),
		"sections_created", len(created),
	)
	return result, nil
}

// planSections computes how many new sections the incoming batch needs,
// generates unique codes for them and persists them with zero occupancy.
func (s *AllocatorService) planSections(ctx context.Context, batch *models.Batch, department *models.Department, working []*sectionState, incoming int) ([]*sectionState, error) {
	spare := 0
	for _, sec := range working {
		if room := sec.spare(); room > 0 {
			spare += room
		}
	}

	var needed int
	if len(working) == 0 {
		needed = ceilDiv(incoming, s.cfg.SectionCapacity)
	} else if incoming > spare {
		needed = ceilDiv(incoming-spare, s.cfg.SectionCapacity)
	}
	if needed == 0 {
		return nil, nil
	}

	existingCodes := make([]string, 0, len(working))
	for _, sec := range working {
		existingCodes = append(existingCodes, sec.code)
	}
	registry := codes.NewRegistry(existingCodes)

	rows := make([]models.Section, 0, needed)
	created := make([]*sectionState, 0, needed)
	for i := 0; i < needed; i++ {
		sequence := len(working) + i + 1
		code, err := registry.Reserve(func() string {
			return codes.SectionCode(department.ShortName, batch.BatchYear, sequence)
		}, codes.MaxSectionCodeAttempts)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrCodeSpaceBusy.Code, appErrors.ErrCodeSpaceBusy.Status, "failed to generate unique section code")
		}
		row := models.Section{
			BatchID:      batch.ID,
			DepartmentID: department.ID,
			Code:         code,
			Capacity:     s.cfg.SectionCapacity,
		}
		rows = append(rows, row)
		created = append(created, &sectionState{code: code, capacity: s.cfg.SectionCapacity, isNew: true})
	}

	if err := s.sections.CreateMany(ctx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sections")
	}
	// CreateMany fills in generated ids.
	for i := range rows {
		created[i].id = rows[i].ID
	}
	return created, nil
}

// placeCandidates runs the greedy gender-balanced pass. Candidates are
// processed in three gender queues interleaved round-robin so no queue
// monopolises early placements. Each decision immediately updates section
// state; the algorithm is inherently sequential.
func placeCandidates(working []*sectionState, candidates []StudentCandidate) ([]string, error) {
	queues := [3][]int{}
	for i, c := range candidates {
		g := genderIndex(c.Gender)
		queues[g] = append(queues[g], i)
	}

	assignments := make([]string, len(candidates))
	cursors := [3]int{}
	for cursors[0] < len(queues[0]) || cursors[1] < len(queues[1]) || cursors[2] < len(queues[2]) {
		for g := 0; g < 3; g++ {
			if cursors[g] >= len(queues[g]) {
				continue
			}
			idx := queues[g][cursors[g]]
			section := bestSection(working, g, nil)
			if section == nil {
				return nil, appErrors.Clone(appErrors.ErrCapacityExhausted, "no section has spare capacity; capacity planning fell short")
			}
			section.added[g]++
			assignments[idx] = section.id
			cursors[g]++
		}
	}
	return assignments, nil
}

// bestSection picks the open section preferring existing sections over ones
// created in this pass, then the most spare capacity, then the lowest total
// count of the given gender, then the code so equal inputs always produce
// equal outputs.
func bestSection(working []*sectionState, gender int, exclude *sectionState) *sectionState {
	var best *sectionState
	for _, sec := range working {
		if sec == exclude || sec.spare() <= 0 {
			continue
		}
		if best == nil || sectionLess(sec, best, gender) {
			best = sec
		}
	}
	return best
}

func sectionLess(a, b *sectionState, gender int) bool {
	if a.isNew != b.isNew {
		return !a.isNew
	}
	if a.spare() != b.spare() {
		return a.spare() > b.spare()
	}
	if a.genderTotal(gender) != b.genderTotal(gender) {
		return a.genderTotal(gender) < b.genderTotal(gender)
	}
	return a.code < b.code
}

// rebalanceSparseSections drains sections left below the minimum-viable floor
// after placement. Only newly placed students move, and only when some other
// section is strictly better by the same ordering used during placement.
func rebalanceSparseSections(working []*sectionState, candidates []StudentCandidate, assignments []string, floor int) {
	sparse := make([]*sectionState, 0)
	for _, sec := range working {
		if sec.addedTotal() > 0 && sec.occupied() < floor {
			sparse = append(sparse, sec)
		}
	}
	sort.Slice(sparse, func(i, j int) bool { return sparse[i].code < sparse[j].code })

	for _, source := range sparse {
		for idx := range candidates {
			if assignments[idx] != source.id {
				continue
			}
			g := genderIndex(candidates[idx].Gender)
			dest := bestSection(working, g, source)
			if dest == nil || !sectionLess(dest, source, g) {
				continue
			}
			source.added[g]--
			dest.added[g]++
			assignments[idx] = dest.id
		}
	}
}

func summarise(working []*sectionState) []dto.SectionAllocationSummary {
	summaries := make([]dto.SectionAllocationSummary, 0, len(working))
	for _, sec := range working {
		if sec.addedTotal() == 0 {
			continue
		}
		summaries = append(summaries, dto.SectionAllocationSummary{
			SectionCode:       sec.code,
			NewSection:        sec.isNew,
			ExistingStudents:  sec.existing[0] + sec.existing[1] + sec.existing[2],
			NewlyAllocated:    sec.addedTotal(),
			ExistingMale:      sec.existing[0],
			ExistingFemale:    sec.existing[1],
			ExistingOther:     sec.existing[2],
			NewMale:           sec.added[0],
			NewFemale:         sec.added[1],
			NewOther:          sec.added[2],
			TotalInSection:    sec.occupied(),
			RemainingCapacity: sec.spare(),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].SectionCode < summaries[j].SectionCode })
	return summaries
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
