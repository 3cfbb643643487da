package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobStateWaiting, JobStateActive, true},
		{JobStateWaiting, JobStateCompleted, false},
		{JobStateWaiting, JobStateFailed, false},
		{JobStateActive, JobStateWaiting, true},
		{JobStateActive, JobStateCompleted, true},
		{JobStateActive, JobStateFailed, true},
		{JobStateActive, JobStateActive, false},
		{JobStateCompleted, JobStateWaiting, false},
		{JobStateCompleted, JobStateFailed, false},
		{JobStateFailed, JobStateActive, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestJobStateTerminal(t *testing.T) {
	if JobStateWaiting.Terminal() || JobStateActive.Terminal() {
		t.Fatal("waiting and active must not be terminal")
	}
	if !JobStateCompleted.Terminal() || !JobStateFailed.Terminal() {
		t.Fatal("completed and failed must be terminal")
	}
}

func TestIsRetryable(t *testing.T) {
	base := errors.New("connection reset")
	if IsRetryable(base) {
		t.Fatal("plain error must not be retryable")
	}
	wrapped := fmt.Errorf("persist: %w", Transient("record store", base))
	if !IsRetryable(wrapped) {
		t.Fatal("wrapped transient error must be retryable")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("transient error must unwrap to its cause")
	}
	if Transient("noop", nil) != nil {
		t.Fatal("Transient(nil) must be nil")
	}
}

func TestValidationErrorIs(t *testing.T) {
	err := fmt.Errorf("submit: %w", &ValidationError{Field: "image", Message: "no file uploaded"})
	if !errors.Is(err, ErrValidation) {
		t.Fatal("validation error must match ErrValidation")
	}
	if IsRetryable(err) {
		t.Fatal("validation error must not be retryable")
	}
}

func TestDiseaseInfoCloneIsDeep(t *testing.T) {
	orig := DiseaseInfo{Causes: []string{"Fungal infection"}}
	cp := orig.Clone()
	cp.Causes[0] = "changed"
	if orig.Causes[0] != "Fungal infection" {
		t.Fatalf("clone shares backing array: %v", orig.Causes)
	}
}
