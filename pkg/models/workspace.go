// Package models defines the data exchanged between the testwatch daemon and
// the workspace view: the file listing, the test summary and the runner status,
// together with the deltas pushed for the two live facts.
package models

// FileEntry is a single test file in the workspace. Path is its identity and
// is unique within a listing.
type FileEntry struct {
	Path     string                 `json:"path"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// WorkspaceListing is an immutable snapshot of the workspace file tree.
// It is replaced wholesale on every re-fetch.
type WorkspaceListing struct {
	ProjectRoot string      `json:"project_root"`
	Files       []FileEntry `json:"files"`
}

// Lookup returns the entry for path.
func (w WorkspaceListing) Lookup(path string) (FileEntry, bool) {
	for _, f := range w.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileEntry{}, false
}

// Contains reports whether path is part of the listing.
func (w WorkspaceListing) Contains(path string) bool {
	_, ok := w.Lookup(path)
	return ok
}

// Paths returns the file paths in listing order.
func (w WorkspaceListing) Paths() []string {
	paths := make([]string, len(w.Files))
	for i, f := range w.Files {
		paths[i] = f.Path
	}
	return paths
}

// SelectedFile is the payload of the selected-file query and mutation.
// An empty Path means no file is selected.
type SelectedFile struct {
	Path string `json:"path"`
}
