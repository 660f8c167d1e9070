package tsclient

import (
	"errors"
	"testing"

	"github.com/m-lab/tstorage-client/buffer"
	"github.com/m-lab/tstorage-client/iostream"
)

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	e1 := newError(KindLimitExceeded, errors.New("underlying"))
	e2 := newError(KindLimitExceeded, errors.New("different underlying"))
	if !errors.Is(e1, e2) {
		t.Fatal("expected errors with the same Kind to match via errors.Is")
	}
	if errors.Is(e1, ErrReceive) {
		t.Fatal("expected different Kinds not to match")
	}
}

func TestClassifyMapsComponentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"limit exceeded", buffer.ErrLimitExceeded, KindLimitExceeded},
		{"resource exhaustion", buffer.ErrResourceExhaustion, KindResourceExhaustion},
		{"receive error", iostream.ErrReceive, KindReceiveError},
		{"send error", iostream.ErrSendFailed, KindSendError},
		{"unrecognized", errors.New("mystery"), KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if got.Kind != tt.want {
				t.Errorf("classify(%v).Kind = %v, want %v", tt.err, got.Kind, tt.want)
			}
		})
	}
}

func TestClassifyPassesThroughExistingError(t *testing.T) {
	original := ServerStatus(7)
	got := classify(original)
	if got != original {
		t.Fatalf("classify should pass through an existing *Error unchanged")
	}
}
