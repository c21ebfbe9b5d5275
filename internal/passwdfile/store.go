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

package passwdfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/authpasswd/authpasswd/framework/log"
	"github.com/authpasswd/authpasswd/internal/passwdfile/hash"
	"github.com/authpasswd/authpasswd/internal/wire"
)

const (
	passwordFileName   = "password"
	legacyPasswordFile = "password.old"
	attemptFileName    = "attempt"
)

// Clock lets tests substitute the ignore-period and expiry checks'
// notion of "now" without sleeping.
type Clock func() time.Time

// Store owns every user's Password file and the mutex serializing every
// call into this store; the policy store has a separate one.
type Store struct {
	mu           sync.Mutex
	dataDir      string
	ignorePeriod time.Duration
	defaultHash  hash.Algorithm
	now          Clock
	log          log.Logger
	users        map[uint32]*File
}

type Options struct {
	DataDir      string
	IgnorePeriod time.Duration
	DefaultHash  hash.Algorithm
	Now          Clock
	Log          log.Logger
}

func NewStore(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IgnorePeriod == 0 {
		opts.IgnorePeriod = wire.IgnorePeriodMillis * time.Millisecond
	}
	if opts.DefaultHash == 0 {
		opts.DefaultHash = hash.SHA256
	}
	return &Store{
		dataDir:      opts.DataDir,
		ignorePeriod: opts.IgnorePeriod,
		defaultHash:  opts.DefaultHash,
		now:          opts.Now,
		log:          opts.Log,
		users:        make(map[uint32]*File),
	}
}

func (s *Store) userDir(uid uint32) string {
	return filepath.Join(s.dataDir, fmt.Sprint(uid))
}

func (s *Store) fileFor(uid uint32) (*File, error) {
	if f, ok := s.users[uid]; ok {
		return f, nil
	}

	now := s.now()
	f := newFile(uid, now, s.ignorePeriod)
	dir := s.userDir(uid)
	path := filepath.Join(dir, passwordFileName)

	body, err := os.ReadFile(path)
	switch {
	case err == nil:
		if rec, ok := deserialize(body); ok {
			f.rec = rec
		} else {
			s.log.Msg("resetting corrupt password file", "uid", uid)
			if werr := s.persistRecord(uid, f); werr != nil {
				return nil, werr
			}
		}
	case os.IsNotExist(err):
		if err := s.ingestLegacy(uid, f, dir); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := s.loadAttempt(uid, f, dir); err != nil {
		return nil, err
	}

	s.users[uid] = f
	return f, nil
}

// ingestLegacy looks for password.old; on success it writes the
// converted record in the new format and unlinks the legacy file,
// exactly as preparePwdFile does. Any parse failure resets to defaults
// and writes a fresh new-format file -- legacy ingestion never leaves a
// user without a password file.
func (s *Store) ingestLegacy(uid uint32, f *File, dir string) error {
	oldPath := filepath.Join(dir, legacyPasswordFile)
	body, err := os.ReadFile(oldPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s.persistRecord(uid, f)
		}
		return err
	}

	if rec, ok := parseLegacy(body); ok {
		f.rec = rec
	} else {
		s.log.Msg("invalid legacy password file", "uid", uid)
		f.rec = defaultRecord()
	}

	if err := s.persistRecord(uid, f); err != nil {
		return err
	}
	if err := os.Remove(oldPath); err != nil {
		return fmt.Errorf("passwdfile: remove legacy file: %w", err)
	}
	return nil
}

func (s *Store) loadAttempt(uid uint32, f *File, dir string) error {
	path := filepath.Join(dir, attemptFileName)
	body, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(body) == 4 {
			f.attempt = binary.LittleEndian.Uint32(body)
			return nil
		}
		s.log.Msg("invalid attempt file, resetting to 0", "uid", uid)
		f.attempt = 0
		return s.persistAttempt(uid, f)
	case os.IsNotExist(err):
		f.attempt = 0
		return s.persistAttempt(uid, f)
	default:
		return err
	}
}

func (s *Store) persistRecord(uid uint32, f *File) error {
	dir := s.userDir(uid)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("passwdfile: mkdir %s: %w", dir, err)
	}
	return wire.AtomicWrite(filepath.Join(dir, passwordFileName), 0o600, serialize(f.rec))
}

func (s *Store) persistAttempt(uid uint32, f *File) error {
	dir := s.userDir(uid)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("passwdfile: mkdir %s: %w", dir, err)
	}
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, f.attempt)
	return wire.AtomicWrite(filepath.Join(dir, attemptFileName), 0o600, body)
}

// Check implements Password Store.check.
func (s *Store) Check(uid uint32, t wire.PasswordType, challenge string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return Result{Status: wire.ServerError}, err
	}

	res, dirtyAttempt, _ := f.check(t, challenge, s.now(), s.ignorePeriod)
	if dirtyAttempt {
		// The attempt file must hit disk before the failure is reported so
		// a crash between here and the reply can never roll back a
		// recorded wrong guess.
		if err := s.persistAttempt(uid, f); err != nil {
			return Result{Status: wire.ServerError}, err
		}
	}
	return res, nil
}

// IsValid implements Password Store.is_valid.
func (s *Store) IsValid(uid uint32, t wire.PasswordType) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return Result{Status: wire.ServerError}, err
	}
	return f.isValid(t, s.now()), nil
}

// IsReused implements Password Store.is_reused.
func (s *Store) IsReused(uid uint32, candidate string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return false, err
	}
	v, err := newValue(s.defaultHash, candidate)
	if err != nil {
		return false, err
	}
	return f.isReused(v), nil
}

// Set implements Password Store.set.
func (s *Store) Set(uid uint32, t wire.PasswordType, current, newPass string) (wire.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return wire.ServerError, err
	}

	outcome, err := f.set(t, current, newPass, s.now(), s.ignorePeriod, s.defaultHash)
	if err != nil {
		return wire.ServerError, err
	}
	if outcome.dirtyAttempt {
		if err := s.persistAttempt(uid, f); err != nil {
			return wire.ServerError, err
		}
	}
	if outcome.dirtyRecord {
		if err := s.persistRecord(uid, f); err != nil {
			return wire.ServerError, err
		}
	}
	return outcome.status, nil
}

// SetRecovery implements Password Store.set_recovery.
func (s *Store) SetRecovery(uid uint32, currentRecovery, newNormal string) (wire.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return wire.ServerError, err
	}

	outcome, err := f.setRecovery(currentRecovery, newNormal, s.now(), s.defaultHash)
	if err != nil {
		return wire.ServerError, err
	}
	if outcome.dirtyAttempt {
		if err := s.persistAttempt(uid, f); err != nil {
			return wire.ServerError, err
		}
	}
	if outcome.dirtyRecord {
		if err := s.persistRecord(uid, f); err != nil {
			return wire.ServerError, err
		}
	}
	return outcome.status, nil
}

// Reset implements Password Store.reset: the administrator path.
func (s *Store) Reset(uid uint32, t wire.PasswordType, newPass string) (wire.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return wire.ServerError, err
	}

	status, err := f.reset(t, newPass, s.now(), s.defaultHash)
	if err != nil {
		return wire.ServerError, err
	}
	if t == wire.Normal {
		if err := s.persistAttempt(uid, f); err != nil {
			return wire.ServerError, err
		}
	}
	if err := s.persistRecord(uid, f); err != nil {
		return wire.ServerError, err
	}
	return status, nil
}

// SetMaxAttempts, SetValidity and SetHistory are the policy-set
// side-effect hooks the request processor drives after Policy
// Store.Set returns Success.
func (s *Store) SetMaxAttempts(uid uint32, max uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return err
	}
	f.setMaxAttempts(max)
	if err := s.persistAttempt(uid, f); err != nil {
		return err
	}
	return s.persistRecord(uid, f)
}

func (s *Store) SetValidity(uid uint32, days uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return err
	}
	f.setValidity(days, s.now())
	return s.persistRecord(uid, f)
}

func (s *Store) SetHistory(uid uint32, max uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fileFor(uid)
	if err != nil {
		return err
	}
	f.setHistory(max)
	return s.persistRecord(uid, f)
}
