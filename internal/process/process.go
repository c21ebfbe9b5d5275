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

// Package process implements the Request Processor: it decodes one
// framed request at a time, dispatches it to the Policy Store and/or
// Password Store, and encodes the reply. It holds no state of its own
// beyond references to the two stores and a metrics recorder.
package process

import (
	"fmt"
	"time"

	"github.com/authpasswd/authpasswd/framework/log"
	"github.com/authpasswd/authpasswd/internal/metrics"
	"github.com/authpasswd/authpasswd/internal/passwdfile"
	"github.com/authpasswd/authpasswd/internal/policyfile"
	"github.com/authpasswd/authpasswd/internal/wire"
)

// Endpoint names which headers the caller's connection was accepted on,
// constraining which headers are legal and how the caller's user ID is
// resolved.
type Endpoint int

const (
	EndpointCheck Endpoint = iota
	EndpointSet
	EndpointReset
	EndpointPolicy
)

// Identity resolves the acting user for a request. Check and Set derive
// it from the transport's peer credentials before the processor ever
// sees the frame; Reset and Policy carry it in the request body.
type Identity struct {
	UID      uint32
	Resolved bool
}

type Processor struct {
	Passwords *passwdfile.Store
	Policies  *policyfile.Store
	Metrics   metrics.Recorder
	Log       log.Logger
}

// Dispatch decodes and executes every (header, body) pair in r in
// sequence, writing each reply frame to w. It returns an error only
// when the frame is malformed enough that the connection must close;
// per-operation failures are encoded as status codes, never returned
// here.
func (p *Processor) Dispatch(ep Endpoint, id Identity, r *wire.Reader, w *wire.Writer) error {
	for !r.AtEOF() {
		if err := p.dispatchOne(ep, id, r, w); err != nil {
			return err
		}
	}
	return nil
}

// dispatchOne reads one (header, body) pair. Check and Set resolve the
// acting user from the transport-supplied Identity and reply NO_USER
// without touching either store when resolution failed; Reset and
// Policy carry their target user ID in the body instead.
func (p *Processor) dispatchOne(ep Endpoint, id Identity, r *wire.Reader, w *wire.Writer) error {
	header := wire.Header(r.Int32())
	if r.Err() != nil {
		return fmt.Errorf("process: malformed frame: %w", r.Err())
	}

	switch ep {
	case EndpointCheck, EndpointSet:
		if !id.Resolved {
			w.Int32(int32(wire.NoUser))
			p.Metrics.RecordCheck(wire.NoUser)
			return r.Err()
		}
	}

	legal := false
	switch ep {
	case EndpointCheck:
		legal = header == wire.ChkPasswd || header == wire.ChkPasswdState
	case EndpointSet:
		legal = header == wire.SetPasswd || header == wire.SetPasswdRecovery || header == wire.ChkPasswdReused
	case EndpointReset:
		legal = header == wire.RstPasswd
	case EndpointPolicy:
		legal = header == wire.SetPasswdPolicy || header == wire.DisPasswdPolicy
	}
	if !legal {
		return fmt.Errorf("process: header %d not accepted on this endpoint", header)
	}

	switch header {
	case wire.ChkPasswd:
		p.handleCheck(id.UID, wire.Normal, r, w)
	case wire.ChkPasswdState:
		p.handleCheckState(id.UID, r, w)
	case wire.SetPasswd:
		p.handleSet(id.UID, wire.Normal, r, w)
	case wire.SetPasswdRecovery:
		p.handleSetRecovery(id.UID, r, w)
	case wire.ChkPasswdReused:
		p.handleReused(id.UID, r, w)
	case wire.RstPasswd:
		p.handleReset(r, w)
	case wire.SetPasswdPolicy:
		p.handleSetPolicy(r, w)
	case wire.DisPasswdPolicy:
		p.handleDisablePolicy(r, w)
	default:
		return fmt.Errorf("process: unknown header %d", header)
	}
	return r.Err()
}

func (p *Processor) handleCheck(uid uint32, t wire.PasswordType, r *wire.Reader, w *wire.Writer) {
	challenge := r.String()
	res, err := p.Passwords.Check(uid, t, challenge)
	if err != nil {
		p.Log.Error("check failed", err, "uid", uid)
	}
	p.Metrics.RecordCheck(res.Status)
	writeCheckReply(w, res)
}

// handleCheckState maps to Password Store.is_valid: a read-only status
// probe with the same trailing-payload shape as a check.
func (p *Processor) handleCheckState(uid uint32, r *wire.Reader, w *wire.Writer) {
	t := wire.PasswordType(r.Int32())
	res, err := p.Passwords.IsValid(uid, t)
	if err != nil {
		p.Log.Error("is_valid failed", err, "uid", uid)
	}
	writeCheckReply(w, res)
}

func writeCheckReply(w *wire.Writer, res passwdfile.Result) {
	w.Int32(int32(res.Status))
	switch res.Status {
	case wire.Success, wire.Mismatch, wire.MaxAttemptsExceeded, wire.Expired:
		w.Uint32(res.Attempt)
		w.Uint32(res.MaxAttempt)
		w.Uint32(res.SecondsLeft)
	}
}

// handleSet implements the Set endpoint's policy-then-password
// sequencing: the new password must pass Policy Store.check before
// Password Store.set is ever called.
func (p *Processor) handleSet(uid uint32, t wire.PasswordType, r *wire.Reader, w *wire.Writer) {
	current := r.String()
	newPass := r.String()

	if newPass != "" {
		status, err := p.Policies.Check(uid, newPass)
		if err != nil {
			p.Log.Error("policy check failed", err, "uid", uid)
			w.Int32(int32(wire.ServerError))
			return
		}
		if status != wire.Success {
			p.Metrics.RecordPolicyOutcome(status)
			w.Int32(int32(status))
			return
		}
	}

	status, err := p.Passwords.Set(uid, t, current, newPass)
	if err != nil {
		p.Log.Error("set failed", err, "uid", uid)
	}
	if status != wire.Success {
		p.Metrics.RecordPolicyOutcome(status)
	}
	w.Int32(int32(status))
}

func (p *Processor) handleSetRecovery(uid uint32, r *wire.Reader, w *wire.Writer) {
	currentRecovery := r.String()
	newNormal := r.String()

	if newNormal != "" {
		status, err := p.Policies.Check(uid, newNormal)
		if err != nil {
			p.Log.Error("policy check failed", err, "uid", uid)
			w.Int32(int32(wire.ServerError))
			return
		}
		if status != wire.Success {
			w.Int32(int32(status))
			return
		}
	}

	status, err := p.Passwords.SetRecovery(uid, currentRecovery, newNormal)
	if err != nil {
		p.Log.Error("set_recovery failed", err, "uid", uid)
	}
	w.Int32(int32(status))
}

// handleReused is only legal on the Set endpoint and only appends its
// trailing flag for SUCCESS.
func (p *Processor) handleReused(uid uint32, r *wire.Reader, w *wire.Writer) {
	candidate := r.String()
	reused, err := p.Passwords.IsReused(uid, candidate)
	if err != nil {
		p.Log.Error("is_reused failed", err, "uid", uid)
		w.Int32(int32(wire.ServerError))
		return
	}
	w.Int32(int32(wire.Success))
	if reused {
		w.Uint32(1)
	} else {
		w.Uint32(0)
	}
}

// handleReset is the administrator path: no current-password check, no
// policy check, no peer-credential resolution (uid travels in the
// request body).
func (p *Processor) handleReset(r *wire.Reader, w *wire.Writer) {
	uid := r.Uint32()
	t := wire.PasswordType(r.Int32())
	newPass := r.String()
	status, err := p.Passwords.Reset(uid, t, newPass)
	if err != nil {
		p.Log.Error("reset failed", err, "uid", uid)
	}
	w.Int32(int32(status))
}

// handleSetPolicy applies a policy Delta and, only on SUCCESS, forwards
// the three Password Store-owned fields the Delta also carries.
func (p *Processor) handleSetPolicy(r *wire.Reader, w *wire.Writer) {
	uid := r.Uint32()
	d := readDelta(r)
	now := uint64(nowUnix())
	status, err := p.Policies.Set(uid, d, now)
	if err != nil {
		p.Log.Error("set_policy failed", err, "uid", uid)
		w.Int32(int32(wire.ServerError))
		return
	}
	if status == wire.Success {
		if d.Has(policyfile.FieldMaxAttempts) {
			if err := p.Passwords.SetMaxAttempts(uid, d.MaxAttempts); err != nil {
				p.Log.Error("forward max_attempts failed", err, "uid", uid)
			}
		}
		if d.Has(policyfile.FieldValidPeriod) {
			if err := p.Passwords.SetValidity(uid, d.ValidDays); err != nil {
				p.Log.Error("forward valid_period failed", err, "uid", uid)
			}
		}
		if d.Has(policyfile.FieldHistorySize) {
			if err := p.Passwords.SetHistory(uid, d.HistorySize); err != nil {
				p.Log.Error("forward history_size failed", err, "uid", uid)
			}
		}
	}
	w.Int32(int32(status))
}

func (p *Processor) handleDisablePolicy(r *wire.Reader, w *wire.Writer) {
	uid := r.Uint32()
	status, err := p.Policies.Disable(uid)
	if err != nil {
		p.Log.Error("disable_policy failed", err, "uid", uid)
	}
	w.Int32(int32(status))
}

func nowUnix() int64 { return time.Now().Unix() }

func readDelta(r *wire.Reader) policyfile.Delta {
	var d policyfile.Delta
	d.Fields = policyfile.FieldMask(r.Uint32())
	if d.Has(policyfile.FieldMaxAttempts) {
		d.MaxAttempts = r.Uint32()
	}
	if d.Has(policyfile.FieldValidPeriod) {
		d.ValidDays = r.Uint32()
	}
	if d.Has(policyfile.FieldHistorySize) {
		d.HistorySize = r.Uint32()
	}
	if d.Has(policyfile.FieldMinLength) {
		d.MinLength = r.Uint32()
	}
	if d.Has(policyfile.FieldMinComplexChars) {
		d.MinComplexChars = r.Uint32()
	}
	if d.Has(policyfile.FieldMaxCharOccurrences) {
		d.MaxCharOccurrences = r.Uint32()
	}
	if d.Has(policyfile.FieldMaxNumSeqLength) {
		d.MaxNumSeqLength = r.Uint32()
	}
	if d.Has(policyfile.FieldQualityType) {
		d.QualityType = policyfile.QualityType(r.Uint32())
	}
	if d.Has(policyfile.FieldPattern) {
		d.Pattern = r.String()
	}
	if d.Has(policyfile.FieldForbiddenPasswords) {
		d.ForbiddenPasswords = r.StringSet()
	}
	return d
}
