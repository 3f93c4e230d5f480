package queue

import "errors"

var (
	// ErrJobNotFound indicates no job row exists for the requested owner.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoEligibleJobs indicates a claim attempt found nothing to lease.
	ErrNoEligibleJobs = errors.New("no eligible jobs")
)
