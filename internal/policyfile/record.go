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
	"bytes"

	"github.com/authpasswd/authpasswd/internal/wire"
)

// serialize encodes rec in the versioned on-disk format: version,
// enabled, the four rule caps, quality type, pattern, and the forbidden
// set.
func serialize(rec Record) []byte {
	w := wire.NewWriter()
	w.Uint32(wire.FileVersion)
	w.Bool(rec.Enabled)
	w.Uint32(rec.MinLength)
	w.Uint32(rec.MinComplexChars)
	w.Uint32(rec.MaxCharOccurrences)
	w.Uint32(rec.MaxNumSeqLength)
	w.Uint32(uint32(rec.QualityType))
	w.String(rec.Pattern)
	w.StringSet(rec.ForbiddenPasswords)
	return w.Bytes()
}

// deserialize decodes a record written by serialize. A version mismatch
// or truncated/malformed record is reported via ok=false so the caller
// can reset to defaults and rewrite, matching the corrupt-file recovery
// policy-file.cpp and password-file.cpp both implement.
func deserialize(body []byte) (Record, bool) {
	r := wire.NewReader(bytes.NewReader(body))
	version := r.Uint32()
	if r.Err() != nil || version != wire.FileVersion {
		return Record{}, false
	}

	rec := Record{}
	rec.Enabled = r.Bool()
	rec.MinLength = r.Uint32()
	rec.MinComplexChars = r.Uint32()
	rec.MaxCharOccurrences = r.Uint32()
	rec.MaxNumSeqLength = r.Uint32()
	rec.QualityType = QualityType(r.Uint32())
	rec.Pattern = r.String()
	rec.ForbiddenPasswords = r.StringSet()

	if r.Err() != nil || !rec.QualityType.valid() {
		return Record{}, false
	}
	return rec, true
}
