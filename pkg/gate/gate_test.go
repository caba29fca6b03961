package gate

import (
	"errors"
	"testing"

	speecherrors "speechcoach/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideBoundary(t *testing.T) {
	assert.Equal(t, Reject, Decide(29).Verdict)
	assert.Equal(t, Proceed, Decide(30).Verdict)
	assert.Nil(t, Decide(30).Err)
}

func TestDecideAllDurations(t *testing.T) {
	for d := 0; d <= 60; d++ {
		decision := Decide(d)
		if d < DefaultMinSeconds {
			assert.Equal(t, Reject, decision.Verdict, "duration %d", d)
			assert.ErrorIs(t, decision.Err, speecherrors.ErrTooShort)
		} else {
			assert.Equal(t, Proceed, decision.Verdict, "duration %d", d)
		}
	}
}

func TestTooShortErrorMessage(t *testing.T) {
	decision := New(45).Decide(44)
	require.Error(t, decision.Err)

	var tooShort *TooShortError
	require.True(t, errors.As(decision.Err, &tooShort))
	assert.Equal(t, 44, tooShort.DurationSeconds)
	assert.Equal(t, "Recording must be at least 45 seconds long.", speecherrors.UserMessage(decision.Err))
	assert.Equal(t, speecherrors.KindTooShort, speecherrors.Kind(decision.Err))
}

func TestZeroGateUsesDefault(t *testing.T) {
	var g Gate
	assert.False(t, g.Admits(29))
	assert.True(t, g.Admits(30))
	assert.Equal(t, 30, New(-1).MinSeconds)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "proceed", Proceed.String())
	assert.Equal(t, "too_short", Reject.String())
}
