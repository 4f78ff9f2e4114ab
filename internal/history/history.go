package history

// Recorder defines the interface for the operation log.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Recorder interface {
	Append(op Operation) error
	ByImage(path, hash string, limit int) ([]Operation, error)
	Recent(limit int) ([]Operation, error)
	Close() error
}

// Verify *DB satisfies Recorder at compile time.
var _ Recorder = (*DB)(nil)
