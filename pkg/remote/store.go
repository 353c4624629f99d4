package remote

import (
	"sync"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/config"
)

// FileStore persists settings into the daemon's YAML configuration file.
// Sections other than the beacon parameters are written back unchanged.
type FileStore struct {
	mu   sync.Mutex
	path string
	doc  *config.Config
}

// NewFileStore creates a store writing doc to path
func NewFileStore(path string, doc *config.Config) *FileStore {
	return &FileStore{path: path, doc: doc}
}

// Save merges s into the document and replaces the file
func (f *FileStore) Save(s beacon.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s.ApplyTo(f.doc)
	return f.doc.Save(f.path)
}
