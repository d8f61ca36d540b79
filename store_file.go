package portal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/goliatone/go-errors"
)

// FileCredentials persists the credential pair as a JSON document under
// fixed keys. Writes go through a temp file and rename, so a reader can
// never observe one token without the other.
type FileCredentials struct {
	path string
	mu   sync.Mutex
}

var _ CredentialStore = (*FileCredentials)(nil)

func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

func (f *FileCredentials) Load() (CredentialPair, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CredentialPair{}, false, nil
		}
		return CredentialPair{}, false, errors.Wrap(err, errors.CategoryInternal, "failed to read credential file")
	}

	var pair CredentialPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return CredentialPair{}, false, errors.Wrap(err, errors.CategoryInternal, "corrupt credential file")
	}

	if !pair.Complete() {
		// A partial pair should be impossible; treat it as absent rather
		// than handing out a token without its refresh counterpart.
		return CredentialPair{}, false, nil
	}

	return pair, true, nil
}

func (f *FileCredentials) Save(pair CredentialPair) error {
	if !pair.Complete() {
		return ErrNoCredentials
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(pair)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode credentials")
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create credential directory")
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to write credentials")
	}

	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, errors.CategoryInternal, "failed to commit credentials")
	}

	return nil
}

func (f *FileCredentials) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CategoryInternal, "failed to remove credential file")
	}
	return nil
}
