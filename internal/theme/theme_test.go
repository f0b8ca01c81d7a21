package theme

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyValue(t *testing.T) {
	line := KeyValue("agent", "Jane")
	assert.True(t, strings.HasSuffix(line, "Jane"))
	assert.Contains(t, line, "agent")
}

func TestRunStyle(t *testing.T) {
	assert.Equal(t, ColorRed, RunStyle(1, 0, 0).GetForeground())
	assert.Equal(t, ColorRed, RunStyle(0, 0, 2).GetForeground())
	assert.Equal(t, ColorYellow, RunStyle(0, 3, 0).GetForeground())
	assert.Equal(t, ColorGreen, RunStyle(0, 0, 0).GetForeground())
}
