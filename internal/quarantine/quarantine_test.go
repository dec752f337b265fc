package quarantine

import (
	"errors"
	"testing"
)

func TestCloseRetryingSucceedsEventually(t *testing.T) {
	var p Pool
	attempts := 0
	CloseRetrying(&p, 7, "test", 10, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(p.Entries()) != 0 {
		t.Errorf("Entries = %v, want empty", p.Entries())
	}
}

func TestCloseRetryingQuarantinesOnPersistentFailure(t *testing.T) {
	var p Pool
	attempts := 0
	CloseRetrying(&p, 9, "pty-master", 10, func() error {
		attempts++
		return errors.New("still broken")
	})
	if attempts != 10 {
		t.Errorf("attempts = %d, want 10", attempts)
	}
	entries := p.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries = %v, want 1", entries)
	}
	if entries[0].FD != 9 || entries[0].Source != "pty-master" {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[0].String() != "broken_fd(9:pty-master)" {
		t.Errorf("String() = %q", entries[0].String())
	}
}
