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
	"time"

	"github.com/authpasswd/authpasswd/internal/passwdfile/hash"
	"github.com/authpasswd/authpasswd/internal/wire"
)

// Result is the tuple every counted operation (check, is_valid) reports
// back to the request processor.
type Result struct {
	Status      wire.Status
	Attempt     uint32
	MaxAttempt  uint32
	SecondsLeft uint32
}

// File is the in-memory, per-user password instance. All access is
// serialized by the owning Store.
type File struct {
	uid      uint32
	rec      Record
	attempt  uint32
	lastCall time.Time
}

func newFile(uid uint32, now time.Time, ignorePeriod time.Duration) *File {
	return &File{
		uid: uid,
		rec: defaultRecord(),
		// The ignore-period guard compares against this on the very first
		// call; starting it one period in the past means a freshly loaded
		// user is never rate-limited before it has ever been checked.
		lastCall: now.Add(-ignorePeriod),
	}
}

// tripIgnorePeriod implements the per-process rate limiter: every call
// records now, computes the delta since the previous recorded call, and
// trips when that delta is under ignorePeriod. It always overwrites
// lastCall, tripped or not.
func (f *File) tripIgnorePeriod(now time.Time, ignorePeriod time.Duration) bool {
	delta := now.Sub(f.lastCall)
	f.lastCall = now
	return delta < ignorePeriod
}

func secondsLeft(rec Record, now time.Time) uint32 {
	if rec.ExpireDeadline == InfiniteDeadline {
		return wire.InfiniteSeconds
	}
	nowSec := uint64(now.Unix())
	if nowSec >= rec.ExpireDeadline {
		return 0
	}
	left := rec.ExpireDeadline - nowSec
	if left > uint64(wire.InfiniteSeconds-1) {
		return wire.InfiniteSeconds - 1
	}
	return uint32(left)
}

func computeExpireDeadline(expireDays uint32, now time.Time) uint64 {
	if expireDays == 0 {
		return InfiniteDeadline
	}
	const secondsPerDay = 86400
	return uint64(now.Unix()) + uint64(expireDays)*secondsPerDay
}

func (f *File) slotActive(t wire.PasswordType) bool {
	if t == wire.Recovery {
		return f.rec.RecoveryActive
	}
	return f.rec.NormalActive
}

func (f *File) slotValue(t wire.PasswordType) Value {
	if t == wire.Recovery {
		return f.rec.Recovery
	}
	return f.rec.Normal
}

// check implements Password Store.check. persistAttempt/persistRecord
// are called by the Store after this returns, since File itself never
// touches disk.
func (f *File) check(t wire.PasswordType, challenge string, now time.Time, ignorePeriod time.Duration) (res Result, dirtyAttempt, dirtyRecord bool) {
	if f.tripIgnorePeriod(now, ignorePeriod) {
		return Result{Status: wire.RetryTimer}, false, false
	}

	if !f.slotActive(t) && challenge != "" {
		return Result{Status: wire.NoPassword}, false, false
	}

	if t == wire.Recovery {
		if f.slotValue(t).Match(challenge) {
			return Result{Status: wire.Success}, false, false
		}
		return Result{Status: wire.Mismatch}, false, false
	}

	f.attempt++
	dirtyAttempt = true
	res = Result{
		Attempt:     f.attempt,
		MaxAttempt:  f.rec.MaxAttempt,
		SecondsLeft: secondsLeft(f.rec, now),
	}

	if f.rec.MaxAttempt != 0 && f.attempt > f.rec.MaxAttempt {
		res.Status = wire.MaxAttemptsExceeded
		return res, dirtyAttempt, false
	}

	if !f.rec.Normal.Match(challenge) {
		res.Status = wire.Mismatch
		return res, dirtyAttempt, false
	}

	f.attempt = 0
	res.Attempt = 0
	dirtyAttempt = true

	if f.rec.ExpireDeadline != InfiniteDeadline && uint64(now.Unix()) > f.rec.ExpireDeadline {
		res.Status = wire.Expired
		return res, dirtyAttempt, false
	}
	res.Status = wire.Success
	return res, dirtyAttempt, false
}

// isValid implements Password Store.is_valid: a read-only snapshot with
// no ignore-period guard and no attempt mutation.
func (f *File) isValid(t wire.PasswordType, now time.Time) Result {
	if !f.slotActive(t) {
		return Result{Status: wire.NoPassword}
	}
	if t == wire.Recovery {
		return Result{
			Status:      wire.Success,
			Attempt:     wire.InfiniteSeconds,
			MaxAttempt:  wire.InfiniteSeconds,
			SecondsLeft: wire.InfiniteSeconds,
		}
	}
	return Result{
		Status:      wire.Success,
		Attempt:     f.attempt,
		MaxAttempt:  f.rec.MaxAttempt,
		SecondsLeft: secondsLeft(f.rec, now),
	}
}

// isReused implements Password Store.is_reused: only meaningful for
// Normal with history enabled.
func (f *File) isReused(candidate Value) bool {
	if f.rec.MaxHistory == 0 {
		return false
	}
	return isReused(f.rec.History, candidate)
}

type setOutcome struct {
	status       wire.Status
	dirtyAttempt bool
	dirtyRecord  bool
}

// set implements Password Store.set. algo selects the hash variant used
// for any newly installed value; existing values are matched with
// whatever algorithm they were stored under.
func (f *File) set(t wire.PasswordType, current, newPass string, now time.Time, ignorePeriod time.Duration, algo hash.Algorithm) (setOutcome, error) {
	if f.tripIgnorePeriod(now, ignorePeriod) {
		return setOutcome{status: wire.RetryTimer}, nil
	}

	if current != "" && !f.slotActive(t) {
		return setOutcome{status: wire.NoPassword}, nil
	}

	if t == wire.Recovery {
		if !f.rec.Recovery.Match(current) {
			return setOutcome{status: wire.Mismatch}, nil
		}
		v, err := newValue(algo, newPass)
		if err != nil {
			return setOutcome{status: wire.ServerError}, err
		}
		f.rec.Recovery = v
		f.rec.RecoveryActive = newPass != ""
		return setOutcome{status: wire.Success, dirtyRecord: true}, nil
	}

	// Normal.
	f.attempt++
	dirtyAttempt := true
	if f.rec.MaxAttempt != 0 && f.attempt > f.rec.MaxAttempt {
		return setOutcome{status: wire.MaxAttemptsExceeded, dirtyAttempt: dirtyAttempt}, nil
	}
	if !f.rec.Normal.Match(current) {
		return setOutcome{status: wire.Mismatch, dirtyAttempt: dirtyAttempt}, nil
	}
	f.attempt = 0

	var newVal Value
	if newPass != "" {
		if f.rec.MaxHistory > 0 {
			candidate, err := newValue(algo, newPass)
			if err != nil {
				return setOutcome{status: wire.ServerError, dirtyAttempt: dirtyAttempt}, err
			}
			if isReused(f.rec.History, candidate) {
				return setOutcome{status: wire.Reused, dirtyAttempt: dirtyAttempt}, nil
			}
			newVal = candidate
		} else {
			v, err := newValue(algo, newPass)
			if err != nil {
				return setOutcome{status: wire.ServerError, dirtyAttempt: dirtyAttempt}, err
			}
			newVal = v
		}
	}

	f.rec.ExpireDeadline = computeExpireDeadline(f.rec.ExpireDays, now)
	f.rec.Normal = newVal
	f.rec.NormalActive = newPass != ""
	if newPass != "" && f.rec.MaxHistory > 0 {
		f.rec.History = pushHistory(f.rec.History, newVal, f.rec.MaxHistory)
	}

	return setOutcome{status: wire.Success, dirtyAttempt: dirtyAttempt, dirtyRecord: true}, nil
}

// setRecovery implements Password Store.set_recovery: only permitted
// when max_attempt is unlimited.
func (f *File) setRecovery(currentRecovery, newNormal string, now time.Time, algo hash.Algorithm) (setOutcome, error) {
	if f.rec.MaxAttempt != 0 {
		return setOutcome{status: wire.RecoveryPasswordRestricted}, nil
	}
	if !f.rec.Recovery.Match(currentRecovery) {
		return setOutcome{status: wire.Mismatch}, nil
	}

	var newVal Value
	if newNormal != "" {
		candidate, err := newValue(algo, newNormal)
		if err != nil {
			return setOutcome{status: wire.ServerError}, err
		}
		if f.rec.MaxHistory > 0 && isReused(f.rec.History, candidate) {
			return setOutcome{status: wire.Reused}, nil
		}
		newVal = candidate
	}

	f.attempt = 0
	f.rec.ExpireDeadline = computeExpireDeadline(f.rec.ExpireDays, now)
	f.rec.Normal = newVal
	f.rec.NormalActive = newNormal != ""
	if newNormal != "" && f.rec.MaxHistory > 0 {
		f.rec.History = pushHistory(f.rec.History, newVal, f.rec.MaxHistory)
	}

	return setOutcome{status: wire.Success, dirtyAttempt: true, dirtyRecord: true}, nil
}

// reset implements Password Store.reset: the administrator path, no
// current-password check.
func (f *File) reset(t wire.PasswordType, newPass string, now time.Time, algo hash.Algorithm) (wire.Status, error) {
	v, err := newValue(algo, newPass)
	if err != nil {
		return wire.ServerError, err
	}

	if t == wire.Recovery {
		f.rec.Recovery = v
		f.rec.RecoveryActive = newPass != ""
		return wire.Success, nil
	}

	f.attempt = 0
	f.rec.Normal = v
	f.rec.NormalActive = newPass != ""
	f.rec.ExpireDeadline = computeExpireDeadline(f.rec.ExpireDays, now)
	if newPass != "" && f.rec.MaxHistory > 0 {
		f.rec.History = pushHistory(f.rec.History, v, f.rec.MaxHistory)
	}
	return wire.Success, nil
}

// setMaxAttempts applies a new max_attempt cap and, per the original
// daemon, always also clears any in-flight lockout.
func (f *File) setMaxAttempts(max uint32) {
	f.rec.MaxAttempt = max
	f.attempt = 0
}

// setValidity applies a new expire_days cap, recomputing the deadline
// from now when Normal is active.
func (f *File) setValidity(days uint32, now time.Time) {
	f.rec.ExpireDays = days
	if f.rec.NormalActive {
		f.rec.ExpireDeadline = computeExpireDeadline(days, now)
	} else {
		f.rec.ExpireDeadline = InfiniteDeadline
	}
}

// setHistory applies a new max_history cap: growing from 0 folds the
// current Normal in as the first entry, shrinking evicts from the tail.
func (f *File) setHistory(max uint32) {
	if f.rec.MaxHistory == 0 && max > 0 && f.rec.NormalActive {
		f.rec.History = pushHistory(f.rec.History, f.rec.Normal, max)
	} else if uint32(len(f.rec.History)) > max {
		f.rec.History = f.rec.History[:max]
	}
	f.rec.MaxHistory = max
}
