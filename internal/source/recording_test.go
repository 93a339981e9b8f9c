package source

import (
	"bytes"
	"errors"
	"testing"
)

func TestRecordingSession_AppendAndStats(t *testing.T) {
	reg := NewSessionRegistry(100)
	sess := reg.Start()

	if err := sess.Append([]byte("0123456789")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := sess.Append([]byte("abcde")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	count, total := sess.Stats()
	if count != 2 || total != 15 {
		t.Errorf("expected 2 chunks / 15 bytes, got %d / %d", count, total)
	}
}

func TestRecordingSession_ByteBudget(t *testing.T) {
	reg := NewSessionRegistry(10)
	sess := reg.Start()

	if err := sess.Append(make([]byte, 8)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := sess.Append(make([]byte, 8)); !errors.Is(err, ErrRecordingTooLong) {
		t.Fatalf("expected ErrRecordingTooLong, got %v", err)
	}
}

func TestRecordingSession_AppendAfterStop(t *testing.T) {
	reg := NewSessionRegistry(100)
	sess := reg.Start()

	_ = sess.Append([]byte("x"))
	sess.Stop()

	if err := sess.Append([]byte("y")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestRecordingSession_StopIsIdempotent(t *testing.T) {
	reg := NewSessionRegistry(100)
	sess := reg.Start()

	_ = sess.Append([]byte("ab"))
	first := sess.Stop()
	second := sess.Stop()

	if !bytes.Equal(first, second) {
		t.Errorf("stop not idempotent: %q vs %q", first, second)
	}
}

func TestRecordingSession_ChunkIsCopied(t *testing.T) {
	reg := NewSessionRegistry(100)
	sess := reg.Start()

	buf := []byte("abc")
	_ = sess.Append(buf)
	buf[0] = 'z'

	if got := sess.Stop(); string(got) != "abc" {
		t.Errorf("session shares caller buffer: %q", got)
	}
}

func TestSessionRegistry_Lifecycle(t *testing.T) {
	reg := NewSessionRegistry(100)
	sess := reg.Start()

	got, err := reg.Get(sess.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != sess {
		t.Error("registry returned a different session")
	}

	reg.Remove(sess.ID)
	if _, err := reg.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
