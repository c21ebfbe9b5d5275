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

// Package passwdfile implements the per-user password file state
// machine: two credential slots (Normal and Recovery), a bounded reuse
// history, a persistent attempt counter with max-attempt lockout, an
// expiry clock, and an in-memory ignore-period guard. On-disk state is
// versioned and atomically replaced on every mutation.
package passwdfile

import (
	"github.com/authpasswd/authpasswd/internal/passwdfile/hash"
)

// Value is the sum type a password slot holds: either Empty (no
// password set) or a digest computed by one of the hash package's
// algorithms.
type Value struct {
	Algo   hash.Algorithm
	Digest []byte
}

func (v Value) Empty() bool { return v.Algo == hash.None }

// Match reports whether password hashes to v. An Empty value only
// matches the empty string, mirroring NoPassword::match in the original.
func (v Value) Match(password string) bool {
	if v.Empty() {
		return password == ""
	}
	return hash.Verify(v.Algo, password, v.Digest)
}

func newValue(algo hash.Algorithm, password string) (Value, error) {
	if password == "" {
		return Value{}, nil
	}
	digest, err := hash.Compute(algo, password)
	if err != nil {
		return Value{}, err
	}
	return Value{Algo: algo, Digest: digest}, nil
}

func sameValue(a, b Value) bool {
	if a.Algo != b.Algo || len(a.Digest) != len(b.Digest) {
		return false
	}
	for i := range a.Digest {
		if a.Digest[i] != b.Digest[i] {
			return false
		}
	}
	return true
}

// Record is the versioned, serializable password state for one user.
type Record struct {
	MaxAttempt     uint32
	MaxHistory     uint32
	ExpireDays     uint32
	ExpireDeadline uint64 // unix seconds; InfiniteDeadline means no expiry
	RecoveryActive bool
	Recovery       Value
	NormalActive   bool
	Normal         Value
	History        []Value // newest first, len() <= MaxHistory
}

// InfiniteDeadline is the sentinel ExpireDeadline value meaning "never
// expires" -- distinct from the wire InfiniteSeconds sentinel, which is
// what a reply's seconds-left field carries instead.
const InfiniteDeadline uint64 = ^uint64(0)

func defaultRecord() Record {
	return Record{ExpireDeadline: InfiniteDeadline}
}

func isReused(history []Value, candidate Value) bool {
	for _, h := range history {
		if sameValue(h, candidate) {
			return true
		}
	}
	return false
}

// pushHistory installs v at the head of history and evicts from the
// tail while the list exceeds max.
func pushHistory(history []Value, v Value, max uint32) []Value {
	history = append([]Value{v}, history...)
	if uint32(len(history)) > max {
		history = history[:max]
	}
	return history
}
