package authkit

import (
	"bytes"
	"errors"
	"testing"
)

type failingRandomSource struct{}

func (f failingRandomSource) Read(p []byte) (int, error) {
	return 0, errors.New("forced failure")
}

func TestNewSessionIDError(t *testing.T) {
	original := sessionIDRandomSource
	sessionIDRandomSource = failingRandomSource{}
	defer func() { sessionIDRandomSource = original }()

	if _, err := NewSessionID(); err == nil {
		t.Fatalf("expected error when random source fails")
	}
}

func TestNewSessionIDDeterministicSource(t *testing.T) {
	original := sessionIDRandomSource
	sessionIDRandomSource = bytes.NewReader(bytes.Repeat([]byte{1}, sessionIDByteLength))
	defer func() { sessionIDRandomSource = original }()

	sessionID, err := NewSessionID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessionID == "" {
		t.Fatalf("expected non-empty session id")
	}
	if HashSessionID(sessionID) == sessionID {
		t.Fatalf("expected hash to differ from raw id")
	}
	if HashSessionID(sessionID) != HashSessionID(sessionID) {
		t.Fatalf("expected stable hash")
	}
}
