package plugin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	t.Run("ResultAndTiming", func(t *testing.T) {
		out, err := ParseOutput("debug line\n\n__CHALLENGE_ELAPSED_NS__ 1500\n__CHALLENGE_RESULT__ [1, 2]\n")
		require.NoError(t, err)
		assert.JSONEq(t, "[1,2]", string(out.Result))
		assert.Equal(t, 1500*time.Nanosecond, out.FunctionTime)
		assert.Equal(t, "debug line", out.Extra)
	})

	t.Run("NoResult", func(t *testing.T) {
		out, err := ParseOutput("only user output\n")
		assert.ErrorIs(t, err, ErrNoResult)
		assert.Equal(t, "only user output", out.Extra)
	})

	t.Run("MalformedResult", func(t *testing.T) {
		_, err := ParseOutput("__CHALLENGE_RESULT__ {not json\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed")
	})

	t.Run("WindowsLineEndings", func(t *testing.T) {
		out, err := ParseOutput("__CHALLENGE_RESULT__ \"ok\"\r\n")
		require.NoError(t, err)
		assert.Equal(t, `"ok"`, string(out.Result))
	})
}
