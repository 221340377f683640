package suite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	r := NewResult()
	assert.True(t, r.WasSuccessful())

	r.AddSuccess("a")
	r.AddSkip("b")
	assert.True(t, r.WasSuccessful())

	r.AddFailure("c", "want 1")
	assert.False(t, r.WasSuccessful())

	r = NewResult()
	r.AddError("d", "panic")
	assert.False(t, r.WasSuccessful())
	assert.Equal(t, []Outcome{{ID: "d", Diagnostic: "panic"}}, r.Errors)
}
