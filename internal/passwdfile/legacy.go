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
	"github.com/authpasswd/authpasswd/internal/passwdfile/hash"
)

// legacyElementSize is the size of one history record in the pre-version
// password.old format: a 4-byte length prefix (always 32, kept only for
// layout compatibility) followed by a raw 32-byte SHA-256 digest.
const legacyElementSize = 4 + 32

// legacyHeaderV1/V2 are the two recognized header sizes: V1 has no
// active-flag byte, V2 adds one. Both are distinguished purely by
// fileSize % legacyElementSize, exactly as password-file.cpp does.
const (
	legacyHeaderV1 = 4 + 4 + 8      // max_attempt, max_history, expire_deadline
	legacyHeaderV2 = legacyHeaderV1 + 1 // + active flag
)

// parseLegacy decodes the pre-version password.old layout. ok is false
// when the file's size doesn't correspond to either recognized
// sub-variant, or the record stream is truncated -- the caller falls
// back to defaults in both cases, same as the original.
func parseLegacy(body []byte) (Record, bool) {
	remainder := len(body) % legacyElementSize
	if remainder != legacyHeaderV1 && remainder != legacyHeaderV2 {
		return Record{}, false
	}

	r := newByteReader(body)
	maxAttempt := r.uint32()
	maxHistory := r.uint32()
	expireDeadline := r.uint64()
	active := true
	if remainder == legacyHeaderV2 {
		active = r.uint8() != 0
	}
	if r.err {
		return Record{}, false
	}

	var values []Value
	for r.remaining() >= legacyElementSize {
		length := r.uint32()
		if length != 32 {
			return Record{}, false
		}
		digest := r.bytesN(32)
		if r.err {
			return Record{}, false
		}
		values = append(values, Value{Algo: hash.SHA256, Digest: digest})
	}
	if r.err || r.remaining() != 0 {
		return Record{}, false
	}

	rec := defaultRecord()
	rec.MaxAttempt = maxAttempt
	rec.MaxHistory = maxHistory
	if expireDeadline == 0 {
		rec.ExpireDeadline = InfiniteDeadline
	} else {
		rec.ExpireDeadline = expireDeadline
	}

	if len(values) == 0 {
		rec.NormalActive = false
		rec.Normal = Value{}
	} else {
		rec.NormalActive = active
		rec.Normal = values[0]
		rec.History = append([]Value{}, values[1:]...)
		if uint32(len(rec.History)) > rec.MaxHistory {
			rec.History = rec.History[:rec.MaxHistory]
		}
	}

	return rec, true
}

// byteReader is a tiny cursor over a fixed buffer for the legacy format,
// which is simple enough not to warrant the general wire.Reader
// (different endianness-agnostic fixed widths, no nested length-prefixed
// strings).
type byteReader struct {
	buf []byte
	pos int
	err bool
}

func newByteReader(b []byte) *byteReader { return &byteReader{buf: b} }

func (r *byteReader) remaining() int { return len(r.buf) - r.pos }

func (r *byteReader) bytesN(n int) []byte {
	if r.err || r.remaining() < n {
		r.err = true
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *byteReader) uint8() byte {
	b := r.bytesN(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *byteReader) uint32() uint32 {
	b := r.bytesN(4)
	if b == nil {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (r *byteReader) uint64() uint64 {
	b := r.bytesN(8)
	if b == nil {
		return 0
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
