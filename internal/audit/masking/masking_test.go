package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****cdef", MaskSecret("0123456789abcdef"))
}

func TestMaskSensitiveOnlyTouchesCredentialKeys(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"admin_token": "supersecretvalue",
		"reason":      "inactive_contract",
		"count":       3,
		" ":           "dropped",
	})

	assert.Equal(t, "****alue", out["admin_token"])
	assert.Equal(t, "inactive_contract", out["reason"])
	assert.Equal(t, 3, out["count"])
	assert.Len(t, out, 3)
	assert.NotNil(t, MaskSensitive(nil))
}
