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

// Package policyfile implements the per-user password-quality policy:
// on-disk versioned state, the seven quality checks applied to a
// candidate Normal password, and the field-masked set/disable
// operations the request processor drives.
package policyfile

import (
	"fmt"
	"regexp"

	"github.com/authpasswd/authpasswd/internal/wire"
)

// QualityType selects one of the five fixed password-shape patterns.
type QualityType uint32

const (
	Unspecified QualityType = iota
	Something
	Numeric
	Alphabetic
	Alphanumeric
)

func (q QualityType) valid() bool {
	return q <= Alphanumeric
}

var qualityPatterns = map[QualityType]*regexp.Regexp{
	Unspecified:  regexp.MustCompile(`[.]*`),
	Something:    regexp.MustCompile(`.+`),
	Numeric:      regexp.MustCompile(`^[0-9]+$`),
	Alphabetic:   regexp.MustCompile(`^[A-Za-z]+$`),
	Alphanumeric: regexp.MustCompile(`^[A-Za-z0-9]+$`),
}

// FieldMask selects which fields of a Delta are present in a set-policy
// request. Bit N-1 corresponds to the field numbered N in the protocol:
// 1 max-attempts, 2 valid-period, 3 history-size, 4 min-length,
// 5 min-complex-chars, 6 max-char-occurrences, 7 max-num-seq-length,
// 8 quality-type, 9 pattern, 10 forbidden-passwords.
type FieldMask uint16

const (
	FieldMaxAttempts FieldMask = 1 << iota
	FieldValidPeriod
	FieldHistorySize
	FieldMinLength
	FieldMinComplexChars
	FieldMaxCharOccurrences
	FieldMaxNumSeqLength
	FieldQualityType
	FieldPattern
	FieldForbiddenPasswords
)

// Record is the versioned, serializable policy state for one user.
type Record struct {
	Enabled            bool
	MinLength          uint32
	MinComplexChars    uint32
	MaxCharOccurrences uint32
	MaxNumSeqLength    uint32
	QualityType        QualityType
	Pattern            string
	ForbiddenPasswords []string
}

func defaultRecord() Record {
	return Record{}
}

// Delta is a set-policy request: the subset of fields named by Fields is
// meaningful, the rest are ignored. MaxAttempts, ValidDays and
// HistorySize are validated here (their bounds are policy-wide) but
// owned and applied by the password store; the processor forwards them
// after Set returns Success.
type Delta struct {
	Fields             FieldMask
	MaxAttempts        uint32
	ValidDays          uint32
	HistorySize        uint32
	MinLength          uint32
	MinComplexChars    uint32
	MaxCharOccurrences uint32
	MaxNumSeqLength    uint32
	QualityType        QualityType
	Pattern            string
	ForbiddenPasswords []string
}

func (d Delta) has(f FieldMask) bool { return d.Fields&f != 0 }

// Has reports whether field f is present in the request, for callers
// outside this package (the request processor's forwarding logic).
func (d Delta) Has(f FieldMask) bool { return d.has(f) }

// File is the in-memory, per-user policy instance. All access is
// serialized by the owning Store.
type File struct {
	uid uint32
	rec Record

	patternRx *regexp.Regexp
}

func newFile(uid uint32) *File {
	return &File{uid: uid, rec: defaultRecord()}
}

// validate checks every field flagged in d against the bounds
// policy-manager.cpp enforces, independent of which fields this store
// owns -- max-attempts/valid-period/history-size are validated here even
// though they are applied to the password store, so a bad request fails
// before either store is touched.
func validate(d Delta, now uint64) error {
	if d.has(FieldHistorySize) && d.HistorySize > wire.MaxPasswordHistory {
		return fmt.Errorf("policyfile: history size %d exceeds maximum %d", d.HistorySize, wire.MaxPasswordHistory)
	}
	if d.has(FieldMinLength) && d.MinLength > wire.MaxPasswordLen {
		return fmt.Errorf("policyfile: min length %d exceeds maximum %d", d.MinLength, wire.MaxPasswordLen)
	}
	if d.has(FieldMaxNumSeqLength) && d.MaxNumSeqLength > wire.MaxPasswordLen {
		return fmt.Errorf("policyfile: max numeric sequence length %d exceeds maximum %d", d.MaxNumSeqLength, wire.MaxPasswordLen)
	}
	if d.has(FieldQualityType) && !d.QualityType.valid() {
		return fmt.Errorf("policyfile: unknown quality type %d", d.QualityType)
	}
	if d.has(FieldPattern) && d.Pattern != "" {
		if _, err := regexp.CompilePOSIX(d.Pattern); err != nil {
			return fmt.Errorf("policyfile: invalid pattern: %w", err)
		}
	}
	if d.has(FieldValidPeriod) && d.ValidDays != 0 {
		const secondsPerDay = 86400
		if uint64(d.ValidDays) > (^uint64(0)-now)/secondsPerDay {
			return fmt.Errorf("policyfile: valid period overflows")
		}
	}
	return nil
}

// apply installs the subset of d this store owns. Callers must validate
// first; apply never fails.
func (f *File) apply(d Delta) {
	if d.has(FieldMinLength) {
		f.rec.MinLength = d.MinLength
	}
	if d.has(FieldMinComplexChars) {
		f.rec.MinComplexChars = d.MinComplexChars
	}
	if d.has(FieldMaxCharOccurrences) {
		f.rec.MaxCharOccurrences = d.MaxCharOccurrences
	}
	if d.has(FieldMaxNumSeqLength) {
		f.rec.MaxNumSeqLength = d.MaxNumSeqLength
	}
	if d.has(FieldQualityType) {
		f.rec.QualityType = d.QualityType
	}
	if d.has(FieldPattern) {
		f.rec.Pattern = d.Pattern
		f.patternRx = nil
	}
	if d.has(FieldForbiddenPasswords) {
		applyForbidden(&f.rec.ForbiddenPasswords, d.ForbiddenPasswords)
	}
	f.rec.Enabled = true
}

// applyForbidden merges incoming words into the forbidden list the way
// the original daemon does: an empty word clears the whole list, a
// non-empty word is appended unless already present. The field is
// driven one merge-step at a time rather than replaced wholesale so a
// client can grow the list across several set-policy calls.
func applyForbidden(list *[]string, words []string) {
	for _, w := range words {
		if w == "" {
			*list = nil
			continue
		}
		found := false
		for _, existing := range *list {
			if existing == w {
				found = true
				break
			}
		}
		if !found {
			*list = append(*list, w)
		}
	}
}

func (f *File) compiledPattern() *regexp.Regexp {
	if f.rec.Pattern == "" {
		return nil
	}
	if f.patternRx == nil {
		// Already validated at set-time; a compile failure here would mean
		// on-disk corruption, so fall back to rejecting everything rather
		// than panicking.
		rx, err := regexp.CompilePOSIX(f.rec.Pattern)
		if err != nil {
			return regexp.MustCompile(`$.^`)
		}
		f.patternRx = rx
	}
	return f.patternRx
}

// check runs the seven quality rules against candidate in declared
// order, matching policy-manager.cpp: the 32-byte maximum is enforced
// unconditionally, the remaining rules only when the policy is enabled.
func (f *File) check(candidate string) wire.Status {
	if len(candidate) > wire.MaxPasswordLen {
		return wire.InputParam
	}
	if !f.rec.Enabled {
		return wire.Success
	}

	if f.rec.MinLength > 0 && uint32(len(candidate)) < f.rec.MinLength {
		return wire.InputParam
	}
	if f.rec.MinComplexChars > 0 && countComplex(candidate) < f.rec.MinComplexChars {
		return wire.InputParam
	}
	if f.rec.MaxCharOccurrences > 0 && maxByteOccurrence(candidate) > f.rec.MaxCharOccurrences {
		return wire.InputParam
	}
	if f.rec.MaxNumSeqLength > 0 && uint32(maxNumericSeqRun(candidate)) > f.rec.MaxNumSeqLength {
		return wire.InputParam
	}
	if rx := qualityPatterns[f.rec.QualityType]; rx != nil && !rx.MatchString(candidate) {
		return wire.InputParam
	}
	if rx := f.compiledPattern(); rx != nil && !rx.MatchString(candidate) {
		return wire.InputParam
	}
	if candidate != "" {
		for _, forbidden := range f.rec.ForbiddenPasswords {
			if forbidden == candidate {
				return wire.InputParam
			}
		}
	}
	return wire.Success
}

func countComplex(s string) uint32 {
	var n uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= 'a' && c <= 'z') {
			n++
		}
	}
	return n
}

func maxByteOccurrence(s string) uint32 {
	var hist [256]uint32
	for i := 0; i < len(s); i++ {
		hist[s[i]]++
	}
	var max uint32
	for _, c := range hist {
		if c > max {
			max = c
		}
	}
	return max
}

// maxNumericSeqRun returns the longest run of consecutive digits whose
// common difference between neighbors is -1, 0 or +1 -- e.g. "1234",
// "1111" and "9876" each score 4; "135" (difference +2) scores 1.
//
// This corrects a bug in the original checkMaxNumSeqLength, which never
// flushes the run in progress when the password ends mid-sequence; the
// documented examples (1234 -> 4) require the final flush this version
// adds.
func maxNumericSeqRun(s string) int {
	maxRun, run := 0, 0
	diffSet := false
	var diff int
	var prev byte
	hasPrev := false

	flush := func() {
		if run > maxRun {
			maxRun = run
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			flush()
			run, diffSet, hasPrev = 0, false, false
			continue
		}
		if !hasPrev {
			run = 1
			hasPrev = true
		} else {
			d := int(c) - int(prev)
			switch {
			case !diffSet && (d == -1 || d == 0 || d == 1):
				diff = d
				diffSet = true
				run++
			case diffSet && d == diff:
				run++
			default:
				flush()
				run = 1
				diffSet = false
			}
		}
		prev = c
	}
	flush()
	return maxRun
}
