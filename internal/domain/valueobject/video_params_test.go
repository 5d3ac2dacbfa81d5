package valueobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVideoModel(t *testing.T) {
	assert.Equal(t, "sora-2", NormalizeVideoModel("sora-2"))
	assert.Equal(t, "sora-2-pro", NormalizeVideoModel("SORA-2-PRO"))
	assert.Equal(t, "sora-2", NormalizeVideoModel("unknown"))
	// total and stable on repeated calls
	assert.Equal(t, NormalizeVideoModel("x"), NormalizeVideoModel("x"))
}

func TestNormalizeVideoSeconds(t *testing.T) {
	assert.Equal(t, "4", NormalizeVideoSeconds("4"))
	assert.Equal(t, "8", NormalizeVideoSeconds("8"))
	assert.Equal(t, "12", NormalizeVideoSeconds("12"))
	assert.Equal(t, "4", NormalizeVideoSeconds("9"))
	assert.Equal(t, "4", NormalizeVideoSeconds(""))
}

func TestNormalizeVideoSize(t *testing.T) {
	assert.Equal(t, "720x1280", NormalizeVideoSize("720x1280", "sora-2"))
	assert.Equal(t, "720x1280", NormalizeVideoSize("1024x1792", "sora-2"))
	assert.Equal(t, "1792x1024", NormalizeVideoSize("1792x1024", "sora-2-pro"))
	assert.Equal(t, "1024x1792", NormalizeVideoSize("", "sora-2-pro"))
}
