package ingest

import "errors"

var (
	// ErrConfigRequired is returned when a config store is not provided.
	ErrConfigRequired = errors.New("config store required")

	// ErrSourceRequired is returned when a document source is not provided.
	ErrSourceRequired = errors.New("document source required")

	// ErrTrackerRequired is returned when a tracker repository is not provided.
	ErrTrackerRequired = errors.New("tracker repository required")

	// ErrVectorsRequired is returned when a vector repository is not provided.
	ErrVectorsRequired = errors.New("vector repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCycleInProgress is returned when a cycle is requested while one is
	// already running. Cycles never overlap.
	ErrCycleInProgress = errors.New("a processing cycle is already running")
)
