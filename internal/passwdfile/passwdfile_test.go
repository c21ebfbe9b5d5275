package passwdfile

import (
	"testing"
	"time"

	"github.com/authpasswd/authpasswd/internal/passwdfile/hash"
	"github.com/authpasswd/authpasswd/internal/wire"
)

const ignorePeriod = 500 * time.Millisecond

func advance(now time.Time, d time.Duration) time.Time { return now.Add(d) }

func TestCheckRetryTimerOnRapidCalls(t *testing.T) {
	now := time.Unix(1000, 0)
	f := newFile(1, now, ignorePeriod)
	f.rec.NormalActive = true
	v, _ := newValue(hash.SHA256, "hunter2")
	f.rec.Normal = v

	// The first call after load is never rate-limited; the second, half an
	// ignore period later, is.
	f.check(wire.Normal, "hunter2", now, ignorePeriod)
	res, _, _ := f.check(wire.Normal, "hunter2", advance(now, ignorePeriod/2), ignorePeriod)
	if res.Status != wire.RetryTimer {
		t.Fatalf("status = %v, want RETRY_TIMER", res.Status)
	}
}

func TestCheckSuccessResetsAttemptCounter(t *testing.T) {
	now := time.Unix(2000, 0)
	f := newFile(1, now, ignorePeriod)
	f.rec.NormalActive = true
	v, _ := newValue(hash.SHA256, "hunter2")
	f.rec.Normal = v
	f.lastCall = now.Add(-ignorePeriod)

	call := now
	res, dirtyAttempt, _ := f.check(wire.Normal, "wrong", call, ignorePeriod)
	if res.Status != wire.Mismatch || res.Attempt != 1 || !dirtyAttempt {
		t.Fatalf("first check = %+v, dirtyAttempt=%v", res, dirtyAttempt)
	}

	call = call.Add(ignorePeriod)
	res, _, _ = f.check(wire.Normal, "hunter2", call, ignorePeriod)
	if res.Status != wire.Success || res.Attempt != 0 {
		t.Fatalf("second check = %+v, want SUCCESS with attempt reset", res)
	}
}

func TestCheckMaxAttemptsExceeded(t *testing.T) {
	now := time.Unix(3000, 0)
	f := newFile(1, now, ignorePeriod)
	f.rec.NormalActive = true
	f.rec.MaxAttempt = 2
	v, _ := newValue(hash.SHA256, "hunter2")
	f.rec.Normal = v
	f.lastCall = now.Add(-ignorePeriod)

	call := now
	for i := 0; i < 2; i++ {
		f.check(wire.Normal, "wrong", call, ignorePeriod)
		call = call.Add(ignorePeriod)
	}
	res, _, _ := f.check(wire.Normal, "wrong", call, ignorePeriod)
	if res.Status != wire.MaxAttemptsExceeded {
		t.Fatalf("status = %v, want MAX_ATTEMPTS_EXCEEDED", res.Status)
	}
}

func TestCheckNoPasswordOnEmptySlotWithNonEmptyChallenge(t *testing.T) {
	now := time.Unix(4000, 0)
	f := newFile(1, now, ignorePeriod)
	res, _, _ := f.check(wire.Normal, "anything", now, ignorePeriod)
	if res.Status != wire.NoPassword {
		t.Fatalf("status = %v, want NO_PASSWORD", res.Status)
	}
}

func TestCheckExpiredAfterValidPeriod(t *testing.T) {
	now := time.Unix(5000, 0)
	f := newFile(1, now, ignorePeriod)
	f.lastCall = now.Add(-ignorePeriod)
	f.rec.ExpireDays = 1
	outcome, err := f.set(wire.Normal, "", "hunter2", now, ignorePeriod, hash.SHA256)
	if err != nil || outcome.status != wire.Success {
		t.Fatalf("seed set = %+v, err=%v", outcome, err)
	}

	later := now.Add(48 * time.Hour)
	res, _, _ := f.check(wire.Normal, "hunter2", later, ignorePeriod)
	if res.Status != wire.Expired {
		t.Fatalf("status = %v, want EXPIRED", res.Status)
	}
}

func TestSetRejectsReusedPassword(t *testing.T) {
	now := time.Unix(6000, 0)
	f := newFile(1, now, ignorePeriod)
	f.rec.MaxHistory = 3

	call := now
	outcome, err := f.set(wire.Normal, "", "first-pass", call, ignorePeriod, hash.SHA256)
	if err != nil || outcome.status != wire.Success {
		t.Fatalf("seed set = %+v, err=%v", outcome, err)
	}

	call = call.Add(ignorePeriod)
	outcome, err = f.set(wire.Normal, "first-pass", "second-pass", call, ignorePeriod, hash.SHA256)
	if err != nil || outcome.status != wire.Success {
		t.Fatalf("second set = %+v, err=%v", outcome, err)
	}

	call = call.Add(ignorePeriod)
	outcome, err = f.set(wire.Normal, "second-pass", "first-pass", call, ignorePeriod, hash.SHA256)
	if err != nil || outcome.status != wire.Reused {
		t.Fatalf("reuse set = %+v, err=%v, want REUSED", outcome, err)
	}
}

func TestSetRecoveryRestrictedUnlessUnlimitedAttempts(t *testing.T) {
	now := time.Unix(7000, 0)
	f := newFile(1, now, ignorePeriod)
	f.rec.MaxAttempt = 3

	outcome, err := f.setRecovery("", "new-normal", now, hash.SHA256)
	if err != nil || outcome.status != wire.RecoveryPasswordRestricted {
		t.Fatalf("setRecovery = %+v, err=%v, want RECOVERY_PASSWORD_RESTRICTED", outcome, err)
	}

	f.rec.MaxAttempt = 0
	outcome, err = f.setRecovery("", "new-normal", now, hash.SHA256)
	if err != nil || outcome.status != wire.Success {
		t.Fatalf("setRecovery = %+v, err=%v, want SUCCESS", outcome, err)
	}
	if !f.rec.NormalActive || !f.rec.Normal.Match("new-normal") {
		t.Fatalf("normal slot not installed: %+v", f.rec)
	}
}

func TestResetBypassesCurrentPasswordCheck(t *testing.T) {
	now := time.Unix(8000, 0)
	f := newFile(1, now, ignorePeriod)
	f.attempt = 5

	status, err := f.reset(wire.Normal, "admin-set", now, hash.SHA256)
	if err != nil || status != wire.Success {
		t.Fatalf("reset = %v, err=%v", status, err)
	}
	if f.attempt != 0 {
		t.Fatalf("attempt = %d, want 0 after reset", f.attempt)
	}
	if !f.rec.Normal.Match("admin-set") {
		t.Fatalf("reset password did not take effect")
	}
}

func TestSetHistoryFoldsInCurrentNormalOnEnable(t *testing.T) {
	now := time.Unix(9000, 0)
	f := newFile(1, now, ignorePeriod)
	f.rec.NormalActive = true
	v, _ := newValue(hash.SHA256, "current-pass")
	f.rec.Normal = v

	f.setHistory(5)
	if len(f.rec.History) != 1 || !sameValue(f.rec.History[0], v) {
		t.Fatalf("history = %+v, want current normal folded in", f.rec.History)
	}
}

func TestSetMaxAttemptsClearsLockout(t *testing.T) {
	f := newFile(1, time.Unix(10000, 0), ignorePeriod)
	f.attempt = 4
	f.setMaxAttempts(10)
	if f.attempt != 0 {
		t.Fatalf("attempt = %d, want reset to 0", f.attempt)
	}
	if f.rec.MaxAttempt != 10 {
		t.Fatalf("MaxAttempt = %d, want 10", f.rec.MaxAttempt)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	v, _ := newValue(hash.Bcrypt, "hunter2")
	rec := Record{
		MaxAttempt:     5,
		MaxHistory:     2,
		ExpireDays:     30,
		ExpireDeadline: 123456,
		RecoveryActive: true,
		Recovery:       v,
		NormalActive:   true,
		Normal:         v,
		History:        []Value{v},
	}
	body := serialize(rec)
	got, ok := deserialize(body)
	if !ok {
		t.Fatalf("deserialize failed")
	}
	if got.MaxAttempt != rec.MaxAttempt || got.ExpireDeadline != rec.ExpireDeadline {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, rec)
	}
	if !got.Normal.Match("hunter2") {
		t.Fatalf("round-tripped normal value does not match original password")
	}
}

func TestDeserializeRejectsWrongVersion(t *testing.T) {
	w := body(0x99999999)
	if _, ok := deserialize(w); ok {
		t.Fatalf("expected deserialize to reject bad version")
	}
}

func body(version uint32) []byte {
	b := make([]byte, 4)
	b[0] = byte(version)
	b[1] = byte(version >> 8)
	b[2] = byte(version >> 16)
	b[3] = byte(version >> 24)
	return b
}

func TestParseLegacyV1NoFlagByte(t *testing.T) {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	buf := append([]byte{}, le32(7)...)
	buf = append(buf, le32(3)...)
	buf = append(buf, le64(0)...)
	buf = append(buf, le32(32)...)
	buf = append(buf, digest...)

	rec, ok := parseLegacy(buf)
	if !ok {
		t.Fatalf("parseLegacy rejected a well-formed V1 file")
	}
	if rec.MaxAttempt != 7 || rec.MaxHistory != 3 {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.ExpireDeadline != InfiniteDeadline {
		t.Fatalf("ExpireDeadline = %d, want InfiniteDeadline for 0", rec.ExpireDeadline)
	}
	if !rec.NormalActive {
		t.Fatalf("NormalActive should default true for V1")
	}
	if len(rec.Normal.Digest) != 32 {
		t.Fatalf("Normal digest len = %d", len(rec.Normal.Digest))
	}
}

func TestParseLegacyEmptyRecordListForcesInactive(t *testing.T) {
	buf := append([]byte{}, le32(0)...)
	buf = append(buf, le32(0)...)
	buf = append(buf, le64(0)...)
	buf = append(buf, byte(1))

	rec, ok := parseLegacy(buf)
	if !ok {
		t.Fatalf("parseLegacy rejected a well-formed V2 file")
	}
	if rec.NormalActive {
		t.Fatalf("NormalActive should be forced false when no records present")
	}
}

func TestParseLegacyRejectsUnrecognizedSize(t *testing.T) {
	if _, ok := parseLegacy([]byte{1, 2, 3}); ok {
		t.Fatalf("expected rejection of undersized buffer")
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
