package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Marshal(t *testing.T) {
	t.Run("Marshal empty metadata", func(t *testing.T) {
		m := Metadata{}

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), bytes)
	})

	t.Run("Marshal attribute values", func(t *testing.T) {
		m := Metadata{
			"occupation": "financier",
			"year":       2002,
			"deceased":   true,
		}

		bytes, err := m.Marshal()

		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(bytes, &result)
		require.NoError(t, err)
		assert.Equal(t, "financier", result["occupation"])
		assert.Equal(t, float64(2002), result["year"]) // JSON numbers become float64
		assert.Equal(t, true, result["deceased"])
	})

	t.Run("Marshal nested attributes", func(t *testing.T) {
		m := Metadata{
			"passport": map[string]interface{}{
				"country": "US",
			},
			"aircraft": []string{"N908JE", "N121JE"},
		}

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Contains(t, string(bytes), "passport")
		assert.Contains(t, string(bytes), "N908JE")
	})

	t.Run("Marshal nil metadata", func(t *testing.T) {
		var m Metadata = nil

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Equal(t, []byte("null"), bytes)
	})
}

func TestMetadata_Unmarshal(t *testing.T) {
	t.Run("Unmarshal valid JSON bytes", func(t *testing.T) {
		jsonBytes := []byte(`{"occupation":"financier","year":2002,"deceased":true}`)
		var m Metadata

		err := m.Unmarshal(jsonBytes)

		require.NoError(t, err)
		assert.Equal(t, "financier", m["occupation"])
		assert.Equal(t, float64(2002), m["year"])
		assert.Equal(t, true, m["deceased"])
	})

	t.Run("Unmarshal empty JSON object", func(t *testing.T) {
		jsonBytes := []byte(`{}`)
		var m Metadata

		err := m.Unmarshal(jsonBytes)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Unmarshal nil value", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Unmarshal Metadata directly", func(t *testing.T) {
		source := Metadata{
			"residence": "Palm Beach",
		}
		var m Metadata

		err := m.Unmarshal(source)

		require.NoError(t, err)
		assert.Equal(t, "Palm Beach", m["residence"])
	})

	t.Run("Unmarshal invalid JSON", func(t *testing.T) {
		invalidJSON := []byte(`{invalid json}`)
		var m Metadata

		err := m.Unmarshal(invalidJSON)

		require.Error(t, err)
	})

	t.Run("Unmarshal invalid type", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(12345)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "type assertion")
	})

	t.Run("Unmarshal nested structures", func(t *testing.T) {
		jsonBytes := []byte(`{
			"passport": {
				"country": "US"
			},
			"aircraft": ["N908JE", "N121JE"]
		}`)
		var m Metadata

		err := m.Unmarshal(jsonBytes)

		require.NoError(t, err)
		passport, ok := m["passport"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "US", passport["country"])
	})
}

func TestMetadata_Value(t *testing.T) {
	t.Run("Value returns marshaled JSON", func(t *testing.T) {
		m := Metadata{
			"occupation": "financier",
		}

		value, err := m.Value()

		require.NoError(t, err)
		bytes, ok := value.([]byte)
		require.True(t, ok)

		var result map[string]interface{}
		err = json.Unmarshal(bytes, &result)
		require.NoError(t, err)
		assert.Equal(t, "financier", result["occupation"])
	})

	t.Run("Value handles empty metadata", func(t *testing.T) {
		m := Metadata{}

		value, err := m.Value()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), value)
	})
}

func TestMetadata_Scan(t *testing.T) {
	t.Run("Scan from JSON bytes", func(t *testing.T) {
		jsonBytes := []byte(`{"occupation":"financier"}`)
		var m Metadata

		err := m.Scan(jsonBytes)

		require.NoError(t, err)
		assert.Equal(t, "financier", m["occupation"])
	})

	t.Run("Scan from nil", func(t *testing.T) {
		var m Metadata

		err := m.Scan(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Scan from Metadata", func(t *testing.T) {
		source := Metadata{"occupation": "financier"}
		var m Metadata

		err := m.Scan(source)

		require.NoError(t, err)
		assert.Equal(t, "financier", m["occupation"])
	})
}

func TestMetadata_RoundTrip(t *testing.T) {
	t.Run("Marshal then Unmarshal preserves attributes", func(t *testing.T) {
		original := Metadata{
			"occupation": "financier",
			"year":       2002,
			"deceased":   true,
			"passport": map[string]interface{}{
				"country": "US",
			},
		}

		bytes, err := original.Marshal()
		require.NoError(t, err)

		var restored Metadata
		err = restored.Unmarshal(bytes)
		require.NoError(t, err)

		assert.Equal(t, "financier", restored["occupation"])
		assert.Equal(t, float64(2002), restored["year"])
		assert.Equal(t, true, restored["deceased"])

		passport, ok := restored["passport"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "US", passport["country"])
	})

	t.Run("Value then Scan preserves attributes", func(t *testing.T) {
		original := Metadata{
			"residence": "Palm Beach",
		}

		value, err := original.Value()
		require.NoError(t, err)

		var restored Metadata
		err = restored.Scan(value)
		require.NoError(t, err)

		assert.Equal(t, "Palm Beach", restored["residence"])
	})
}
