package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrompts_Load(t *testing.T) {
	t.Parallel()

	p, err := Load()
	require.NoError(t, err)

	require.Contains(t, p.Generate, "SELECT文のみを生成してください")
	require.Contains(t, p.Generate, `{"sql"`)
	require.Contains(t, p.Narrate, "2〜4文で要約")
}
