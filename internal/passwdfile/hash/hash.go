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

// Package hash implements the password digest variants a record on disk
// can hold: the legacy unsalted SHA-256 digest kept for wire/file
// compatibility, and an opt-in bcrypt variant for installations that
// enable the stronger KDF migration path.
package hash

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Algorithm tags the digest variant a record carries. Its value is the
// tag written before each stored digest: None=0, SHA256=1, Bcrypt=2.
type Algorithm uint32

const (
	None Algorithm = iota
	SHA256
	Bcrypt
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case SHA256:
		return "sha256"
	case Bcrypt:
		return "bcrypt"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(a))
	}
}

// ParseAlgorithm maps a configuration knob ("sha256", "bcrypt") to its
// wire tag. It never returns None -- that tag only ever appears for a
// user with no password set, never as a configured default.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "sha256", "":
		return SHA256, nil
	case "bcrypt":
		return Bcrypt, nil
	default:
		return 0, fmt.Errorf("hash: unknown algorithm %q", name)
	}
}

const BcryptCost = bcrypt.DefaultCost

// Compute derives the on-disk digest for password under alg. For SHA256
// this is the bare, unsalted 32-byte digest -- intentionally weak, kept
// only so files written by the legacy daemon keep validating unchanged.
// Bcrypt is salted internally by the library and returns a
// self-describing hash string as its byte form.
func Compute(alg Algorithm, password string) ([]byte, error) {
	switch alg {
	case SHA256:
		sum := sha256.Sum256([]byte(password))
		return sum[:], nil
	case Bcrypt:
		return bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	default:
		return nil, fmt.Errorf("hash: cannot compute digest for algorithm %s", alg)
	}
}

// Verify reports whether password matches the digest stored under alg.
func Verify(alg Algorithm, password string, stored []byte) bool {
	switch alg {
	case SHA256:
		sum := sha256.Sum256([]byte(password))
		return subtle.ConstantTimeCompare(sum[:], stored) == 1
	case Bcrypt:
		return bcrypt.CompareHashAndPassword(stored, []byte(password)) == nil
	default:
		return false
	}
}
