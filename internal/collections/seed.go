package collections

import "fmt"

// SeedPolicy controls how a stored collection is judged stale on mount.
type SeedPolicy struct {
	// LegacyMinLength applies only to unversioned arrays: shorter arrays are replaced by the
	// defaults, longer ones are adopted and rewritten in the current envelope.
	LegacyMinLength int
}

// SeedOutcome describes what a mount did to the stored collection.
type SeedOutcome string

const (
	SeedKept     SeedOutcome = "kept"
	SeedCreated  SeedOutcome = "created"
	SeedReplaced SeedOutcome = "replaced"
	SeedAdopted  SeedOutcome = "adopted"
)

// SeedReport summarises a mount.
type SeedReport struct {
	Key     string
	Outcome SeedOutcome
	// Found is the classification of the value that was stored before the mount.
	Found DecodeStatus
	Count int
}

// Seed ensures store holds a usable current-version collection, writing defaults when the stored
// value is absent, unusable, stale, or a legacy array shorter than the policy threshold. Running
// Seed twice leaves the stored bytes unchanged.
func Seed[T any](store *LocalStore[T], defaults []T, policy SeedPolicy) ([]T, SeedReport, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	res := store.load()
	report := SeedReport{Key: store.key, Found: res.Status}

	switch res.Status {
	case StatusUnreadable:
		return nil, report, fmt.Errorf("collections: read %s: %w", store.key, res.Err)
	case StatusOK:
		report.Outcome = SeedKept
		report.Count = len(res.Items)
		return res.Items, report, nil
	case StatusLegacy:
		if len(res.Items) >= policy.LegacyMinLength {
			if err := store.write(res.Items); err != nil {
				return nil, report, err
			}
			report.Outcome = SeedAdopted
			report.Count = len(res.Items)
			return res.Items, report, nil
		}
		report.Outcome = SeedReplaced
	case StatusAbsent:
		report.Outcome = SeedCreated
	default:
		report.Outcome = SeedReplaced
	}

	items := append([]T(nil), defaults...)
	if err := store.schema.validateAll(items); err != nil {
		return nil, report, fmt.Errorf("collections: defaults for %s: %w", store.key, err)
	}
	if err := store.write(items); err != nil {
		return nil, report, err
	}
	report.Count = len(items)
	return nonNil(items), report, nil
}
