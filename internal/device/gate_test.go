package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestGate_Authenticate(t *testing.T) {
	t.Parallel()

	gate := NewGate([]string{"device-key-one", "device-key-two"})

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"first key", "Bearer device-key-one", true},
		{"second key", "Bearer device-key-two", true},
		{"lowercase scheme", "bearer device-key-one", true},
		{"unknown key", "Bearer wrong-key", false},
		{"key prefix", "Bearer device-key", false},
		{"key with suffix", "Bearer device-key-one-extra", false},
		{"no scheme", "device-key-one", false},
		{"wrong scheme", "Basic device-key-one", false},
		{"empty header", "", false},
		{"scheme only", "Bearer ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Authenticate(tt.header))
		})
	}
}

func TestGate_NoConfiguredKeysRejectsEverything(t *testing.T) {
	t.Parallel()

	gate := NewGate(nil)
	assert.False(t, gate.Authenticate("Bearer anything"))
	assert.False(t, gate.Authenticate(""))
}

// TestGate_OnlyExactKeysPass feeds arbitrary tokens at a gate and
// checks membership is the only thing that matters.
func TestGate_OnlyExactKeysPass(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-zA-Z0-9._-]{8,32}`), 1, 4, rapid.ID[string]).Draw(t, "keys")
		gate := NewGate(keys)

		for _, key := range keys {
			if !gate.Authenticate("Bearer " + key) {
				t.Fatalf("configured key %q rejected", key)
			}
		}

		probe := rapid.StringMatching(`[a-zA-Z0-9._-]{8,32}`).Draw(t, "probe")
		member := false
		for _, key := range keys {
			if key == probe {
				member = true
			}
		}
		if gate.Authenticate("Bearer "+probe) != member {
			t.Fatalf("probe %q: authenticated=%v member=%v", probe, !member, member)
		}
	})
}
