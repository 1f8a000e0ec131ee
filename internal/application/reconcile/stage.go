package reconcile

import (
	"context"
	"fmt"
	"log/slog"
)

// Counts summarizes one stage of a run.
type Counts struct {
	Found   int // inputs covered by existing remote state
	Created int // inputs covered by a fresh create (or would-be in dry run)
	Failed  int // inputs skipped after a per-item failure
}

// FetchResult is what a stage's fetch phase produces: the inputs covered by
// existing remote state, plus inputs that must be excluded from creation
// because their remote state could not be resolved (ambiguous under the
// selection policy, or the per-item list call failed).
type FetchResult[I comparable, R any] struct {
	Found    *Map[I, R]
	Excluded []I
}

// FetchFunc looks up existing remote state for a set of inputs.
type FetchFunc[I comparable, R any] func(ctx context.Context, inputs []I) (FetchResult[I, R], error)

// CreateFunc creates the remote entity for one input.
type CreateFunc[I comparable, R any] func(ctx context.Context, input I) (R, error)

// CreateResult is the per-item outcome of the create phase. Expected per-item
// failures are data, not control flow: they are collected here rather than
// propagated.
type CreateResult[I comparable, R any] struct {
	Input  I
	Remote R
	Err    error
}

// Stage is a generic idempotent get-or-create over one entity kind.
// Fetch and create are separated so that "which inputs still need creation"
// is a pure set difference, which keeps the two phases independently testable
// and makes re-running the stage create nothing new.
type Stage[I comparable, R any] struct {
	name     string
	fetch    FetchFunc[I, R]
	create   CreateFunc[I, R]
	describe func(I) string
	logger   *slog.Logger
	dryRun   bool
}

// NewStage builds a stage. describe renders an input's identity for log lines.
func NewStage[I comparable, R any](
	name string,
	fetch FetchFunc[I, R],
	create CreateFunc[I, R],
	describe func(I) string,
	logger *slog.Logger,
) *Stage[I, R] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage[I, R]{
		name:     name,
		fetch:    fetch,
		create:   create,
		describe: describe,
		logger:   logger,
	}
}

// SetDryRun toggles dry-run mode: creates are logged and counted but never
// issued, and produce no map entries.
func (s *Stage[I, R]) SetDryRun(dryRun bool) {
	s.dryRun = dryRun
}

// FetchExisting resolves existing remote state for the inputs. A fetch
// failure degrades the stage to "nothing found": it is logged and an empty
// result returned, never propagated.
func (s *Stage[I, R]) FetchExisting(ctx context.Context, inputs []I) FetchResult[I, R] {
	result, err := s.fetch(ctx, inputs)
	if err != nil {
		s.logger.Error("remote lookup failed, treating as zero matches",
			"stage", s.name,
			"error", err,
		)
		return FetchResult[I, R]{Found: NewMap[I, R]()}
	}
	if result.Found == nil {
		result.Found = NewMap[I, R]()
	}
	return result
}

// CreateMissing creates the remote entity for each input. Failure isolation
// is per input: a failed create is logged with the input's identity and
// skipped, the rest of the batch continues.
func (s *Stage[I, R]) CreateMissing(ctx context.Context, inputs []I) (*Map[I, R], Counts, error) {
	created := NewMap[I, R]()
	var counts Counts

	for _, input := range inputs {
		if s.dryRun {
			s.logger.Info("would create (dry run)",
				"stage", s.name,
				"identity", s.describe(input),
			)
			counts.Created++
			continue
		}

		result := CreateResult[I, R]{Input: input}
		result.Remote, result.Err = s.create(ctx, input)

		if result.Err != nil {
			s.logger.Error("create failed, skipping item",
				"stage", s.name,
				"identity", s.describe(input),
				"error", result.Err,
			)
			counts.Failed++
			continue
		}

		if err := created.Put(result.Input, result.Remote); err != nil {
			return nil, counts, fmt.Errorf("stage %s: %w", s.name, err)
		}
		counts.Created++

		s.logger.Info("created",
			"stage", s.name,
			"identity", s.describe(input),
		)
	}

	return created, counts, nil
}

// Reconcile runs both phases: fetch existing state, compute the uncovered
// complement, create what is missing, and merge the two maps. The merged key
// sets must be disjoint; an overlap is an invariant violation and aborts.
func (s *Stage[I, R]) Reconcile(ctx context.Context, inputs []I) (*Map[I, R], Counts, error) {
	fetched := s.FetchExisting(ctx, inputs)

	counts := Counts{Found: fetched.Found.Len()}
	counts.Failed += len(fetched.Excluded)

	excluded := make(map[I]bool, len(fetched.Excluded))
	for _, input := range fetched.Excluded {
		excluded[input] = true
	}

	var missing []I
	for _, input := range inputs {
		if !fetched.Found.Has(input) && !excluded[input] {
			missing = append(missing, input)
		}
	}

	s.logger.Info("stage state resolved",
		"stage", s.name,
		"inputs", len(inputs),
		"found", counts.Found,
		"missing", len(missing),
		"excluded", len(fetched.Excluded),
	)

	created, createCounts, err := s.CreateMissing(ctx, missing)
	if err != nil {
		return nil, counts, err
	}
	counts.Created = createCounts.Created
	counts.Failed += createCounts.Failed

	merged := fetched.Found
	if err := merged.Merge(created); err != nil {
		return nil, counts, fmt.Errorf("stage %s: fetched and created sets overlap: %w", s.name, err)
	}

	return merged, counts, nil
}
