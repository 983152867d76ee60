// Package store abstracts the file tree the extraction pipeline writes to.
//
// The pipeline only depends on the Store interface; the concrete backend
// (local disk today, an object store later) is chosen by the caller and
// irrelevant to pipeline correctness.
package store

// Store persists attachment bytes under a hierarchical path and supports
// the cleanup operations the maintenance stages need.
type Store interface {
	// Exists reports whether path exists, as either a file or a directory.
	Exists(path string) bool

	// IsFile reports whether path exists and is a regular file.
	IsFile(path string) bool

	// IsDir reports whether path exists and is a directory.
	IsDir(path string) bool

	// MakeDirs creates the directory at path along with any missing
	// parents. It is a no-op if the directory already exists.
	MakeDirs(path string) error

	// Write stores data at path, replacing any existing file.
	Write(path string, data []byte) error

	// RemoveFile deletes a single file.
	RemoveFile(path string) error

	// RemoveAll deletes path and everything below it. It is a no-op if
	// path does not exist.
	RemoveAll(path string) error

	// Glob returns the paths matching a shell pattern.
	Glob(pattern string) ([]string, error)

	// ListAll returns every file and directory below root, root excluded.
	ListAll(root string) ([]string, error)

	// ListChildren returns the direct entries of a directory.
	ListChildren(dir string) ([]string, error)
}
