package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitiveString(t *testing.T) {
	t.Run("Should print provider keys as redacted", func(t *testing.T) {
		key := SensitiveString("gsk_live_abcdef")
		assert.Equal(t, "[REDACTED]", key.String())
		assert.Equal(t, "gsk_live_abcdef", key.Value())
	})

	t.Run("Should keep unset keys empty", func(t *testing.T) {
		assert.Empty(t, SensitiveString("").String())
	})

	t.Run("Should accept raw values when decoding JSON", func(t *testing.T) {
		var key SensitiveString
		require.NoError(t, json.Unmarshal([]byte(`"AIza-test"`), &key))
		assert.Equal(t, "AIza-test", key.Value())
	})
}

func TestConfigJSON(t *testing.T) {
	t.Run("Should never expose API keys when the configuration is dumped", func(t *testing.T) {
		cfg := Default()
		cfg.LLM.Groq.APIKeys = []SensitiveString{"gsk_one", "gsk_two"}
		cfg.LLM.Google.APIKeys = []SensitiveString{"AIza-one"}
		cfg.Knowledge.Vector.APIKey = "qdrant-secret"

		data, err := json.Marshal(cfg)
		require.NoError(t, err)

		out := string(data)
		for _, secret := range []string{"gsk_one", "gsk_two", "AIza-one", "qdrant-secret"} {
			assert.NotContains(t, out, secret)
		}
		assert.Contains(t, out, "[REDACTED]")
	})

	t.Run("Should unwrap keys for the gateway", func(t *testing.T) {
		keys := []SensitiveString{"k1", "k2"}
		assert.Equal(t, []string{"k1", "k2"}, SecretValues(keys))
		assert.Empty(t, SecretValues(nil))
	})
}
