package index

// FileIndex defines the interface for file indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type FileIndex interface {
	Upsert(f FileRow, body string, refs []string) error
	Delete(path string) error
	GetChecksum(path string) (string, error)
	GetFile(path string) (*FileRow, error)
	List(q ListQuery) ([]FileRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphLink, error)
	UsedBy(target string) ([]string, error)
	AllChecksums() (map[string]string, error)
	Ping() error
	Close() error
}

var _ FileIndex = (*DB)(nil)
