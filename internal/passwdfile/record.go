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
	"bytes"

	"github.com/authpasswd/authpasswd/internal/passwdfile/hash"
	"github.com/authpasswd/authpasswd/internal/wire"
)

func writeValue(w *wire.Writer, v Value) {
	w.Uint32(uint32(v.Algo))
	if v.Algo != hash.None {
		w.RawBytes(v.Digest)
	}
}

func readValue(r *wire.Reader) Value {
	algo := hash.Algorithm(r.Uint32())
	if algo == hash.None {
		return Value{}
	}
	return Value{Algo: algo, Digest: r.Bytes()}
}

// serialize encodes rec in the current on-disk record format: version,
// the three scalar caps, the expiry deadline, then the two credential
// slots and the history list.
func serialize(rec Record) []byte {
	w := wire.NewWriter()
	w.Uint32(wire.FileVersion)
	w.Uint32(rec.MaxAttempt)
	w.Uint32(rec.MaxHistory)
	w.Uint32(rec.ExpireDays)
	w.Uint64(rec.ExpireDeadline)
	w.Bool(rec.RecoveryActive)
	writeValue(w, rec.Recovery)
	w.Bool(rec.NormalActive)
	writeValue(w, rec.Normal)
	w.Uint32(uint32(len(rec.History)))
	for _, h := range rec.History {
		writeValue(w, h)
	}
	return w.Bytes()
}

// deserialize decodes a record written by serialize, reporting ok=false
// on a version mismatch or truncated/malformed stream so the caller can
// fall back to defaults.
func deserialize(body []byte) (Record, bool) {
	r := wire.NewReader(bytes.NewReader(body))
	version := r.Uint32()
	if r.Err() != nil || version != wire.FileVersion {
		return Record{}, false
	}

	rec := Record{}
	rec.MaxAttempt = r.Uint32()
	rec.MaxHistory = r.Uint32()
	rec.ExpireDays = r.Uint32()
	rec.ExpireDeadline = r.Uint64()
	rec.RecoveryActive = r.Bool()
	rec.Recovery = readValue(r)
	rec.NormalActive = r.Bool()
	rec.Normal = readValue(r)

	n := r.Uint32()
	if r.Err() != nil {
		return Record{}, false
	}
	rec.History = make([]Value, 0, n)
	for i := uint32(0); i < n; i++ {
		rec.History = append(rec.History, readValue(r))
	}

	if r.Err() != nil {
		return Record{}, false
	}
	if uint32(len(rec.History)) > rec.MaxHistory {
		return Record{}, false
	}
	return rec, true
}
