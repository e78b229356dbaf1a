package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.Equal(t, KindNone, Of(nil))
	})

	t.Run("WrappedSentinels", func(t *testing.T) {
		cases := map[error]Kind{
			ErrConfig:             KindConfig,
			ErrUnknownLanguage:    KindUnknownLanguage,
			ErrBuild:              KindBuild,
			ErrRuntime:            KindRuntime,
			ErrTimeout:            KindTimeout,
			ErrMismatch:           KindMismatch,
			ErrSandboxUnavailable: KindSandboxUnavailable,
		}
		for sentinel, want := range cases {
			wrapped := fmt.Errorf("outer: %w", sentinel)
			assert.Equal(t, want, Of(wrapped), sentinel.Error())
		}
	})

	t.Run("Unclassified", func(t *testing.T) {
		assert.Equal(t, KindInternal, Of(errors.New("boom")))
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitTestFailure, ExitCode(ErrMismatch))
	assert.Equal(t, ExitTestFailure, ExitCode(ErrTimeout))
	assert.Equal(t, ExitTestFailure, ExitCode(ErrRuntime))
	assert.Equal(t, ExitBuildFailure, ExitCode(fmt.Errorf("go: %w", ErrBuild)))
	assert.Equal(t, ExitConfig, ExitCode(Configf("missing %s", "testcases.json")))
	assert.Equal(t, ExitConfig, ExitCode(ErrUnknownLanguage))
	assert.Equal(t, ExitSandboxUnavailable, ExitCode(Unavailablef("docker daemon")))
}

func TestKindFatal(t *testing.T) {
	assert.True(t, KindConfig.Fatal())
	assert.True(t, KindUnknownLanguage.Fatal())
	assert.True(t, KindSandboxUnavailable.Fatal())
	assert.False(t, KindTimeout.Fatal())
	assert.False(t, KindRuntime.Fatal())
	assert.False(t, KindMismatch.Fatal())
	assert.False(t, KindBuild.Fatal())
}

func TestHelpersMessage(t *testing.T) {
	err := Configf("unknown field %q", "foo")
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, `config error: unknown field "foo"`, err.Error())
}
