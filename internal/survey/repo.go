package survey

import "context"

// Repository is the read-only view of the survey platform this service consumes.
type Repository interface {
	// LoadSurveys returns the surveys matching f with their responses and
	// answers attached, ordered by survey id.
	LoadSurveys(ctx context.Context, f Filter) ([]Survey, error)
}
