package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when triggering a job on a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobNotFound is returned when a job name is not registered
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyRegistered is returned when a job name is registered twice
	ErrJobAlreadyRegistered = errors.New("job already registered")

	// ErrJobAlreadyRunning is returned when a manual trigger overlaps a running job
	ErrJobAlreadyRunning = errors.New("job already running")

	// ErrInvalidConfig is returned when a job definition is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
