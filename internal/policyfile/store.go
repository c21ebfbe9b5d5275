/*
Authpasswd - per-user password and password-policy authority.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package policyfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/authpasswd/authpasswd/framework/log"
	"github.com/authpasswd/authpasswd/internal/wire"
)

const fileName = "policy"

// Store owns every user's Policy file. All operations serialize through
// this store's own mutex; the password store has a separate one.
type Store struct {
	mu      sync.Mutex
	dataDir string
	log     log.Logger
	users   map[uint32]*File
}

func NewStore(dataDir string, logger log.Logger) *Store {
	return &Store{
		dataDir: dataDir,
		log:     logger,
		users:   make(map[uint32]*File),
	}
}

func (s *Store) userDir(uid uint32) string {
	return filepath.Join(s.dataDir, fmt.Sprint(uid))
}

// fileFor returns the cached instance for uid, loading it from disk (or
// creating a fresh default) on first reference.
func (s *Store) fileFor(uid uint32) (*File, error) {
	if f, ok := s.users[uid]; ok {
		return f, nil
	}

	f := newFile(uid)
	path := filepath.Join(s.userDir(uid), fileName)
	body, err := os.ReadFile(path)
	switch {
	case err == nil:
		if rec, ok := deserialize(body); ok {
			f.rec = rec
		} else {
			s.log.Msg("resetting corrupt policy file", "uid", uid)
			if werr := s.persist(uid, f); werr != nil {
				return nil, werr
			}
		}
	case os.IsNotExist(err):
		// No policy configured yet; defaults apply until set-policy.
	default:
		return nil, err
	}

	s.users[uid] = f
	return f, nil
}

func (s *Store) persist(uid uint32, f *File) error {
	dir := s.userDir(uid)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("policyfile: mkdir %s: %w", dir, err)
	}
	return wire.AtomicWrite(filepath.Join(dir, fileName), 0o600, serialize(f.rec))
}

// Check runs the seven quality rules against candidate for uid's policy.
func (s *Store) Check(uid uint32, candidate string) (wire.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return wire.ServerError, err
	}
	return f.check(candidate), nil
}

// Set validates d in full then applies the fields this store owns,
// enabling the policy. The max-attempts, valid-period and history-size
// fields are not applied here; the caller (the request processor)
// forwards them from its own copy of d to the password store.
func (s *Store) Set(uid uint32, d Delta, now uint64) (wire.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return wire.ServerError, err
	}

	if err := validate(d, now); err != nil {
		s.log.Debugln("policy set rejected:", err)
		return wire.InputParam, nil
	}

	f.apply(d)
	if err := s.persist(uid, f); err != nil {
		return wire.ServerError, err
	}
	return wire.Success, nil
}

// Disable clears enabled and resets every field to its default.
func (s *Store) Disable(uid uint32) (wire.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return wire.ServerError, err
	}

	f.rec = defaultRecord()
	f.patternRx = nil
	if err := s.persist(uid, f); err != nil {
		return wire.ServerError, err
	}
	return wire.Success, nil
}
