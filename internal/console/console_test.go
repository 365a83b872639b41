package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptReplaysLines(t *testing.T) {
	s := NewScript("  one ", "two")
	line, err := s.ReadLine("a> ")
	require.NoError(t, err)
	assert.Equal(t, "one", line)
	line, err = s.ReadLine("b> ")
	require.NoError(t, err)
	assert.Equal(t, "two", line)
	_, err = s.ReadLine("c> ")
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []string{"a> ", "b> ", "c> "}, s.Prompts)
}
