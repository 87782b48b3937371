package ulid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	id := Generate()

	assert.Empty(t, id.Prefix())
	assert.Len(t, id.String(), 26)

	timeDiff := time.Since(id.Time())
	assert.True(t, timeDiff < time.Second, "ULID timestamp should be close to now")
}

func TestGenerateWithPrefix(t *testing.T) {
	for _, prefix := range []string{PrefixPass, PrefixSyncLog, PrefixSetting, "custom"} {
		id := GenerateWithPrefix(prefix)

		assert.Equal(t, prefix, id.Prefix())
		assert.True(t, strings.HasPrefix(id.String(), prefix+PrefixSeparator))
	}
}

func TestParse(t *testing.T) {
	raw := Generate()
	parsedRaw, err := Parse(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw, parsedRaw)

	prefixed := GenerateWithPrefix(PrefixPass)
	parsedPrefixed, err := Parse(prefixed.String())
	require.NoError(t, err)
	assert.Equal(t, prefixed, parsedPrefixed)
	assert.Equal(t, PrefixPass, parsedPrefixed.Prefix())

	_, err = Parse("invalid-ulid")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.True(t, Validate(Generate().String()))
	assert.True(t, Validate(PassID()))
	assert.False(t, Validate("pass-nope"))
	assert.False(t, Validate(""))
}

func TestDomainIDGeneration(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"pass", PassID, PrefixPass},
		{"sync log", SyncLogID, PrefixSyncLog},
		{"setting", SettingID, PrefixSetting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.gen()
			parsed, err := Parse(id)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, parsed.Prefix())
		})
	}
}

func TestMonotonicOrdering(t *testing.T) {
	ts := time.Now()
	first := NewWithTime(ts)
	second := NewWithTime(ts)

	assert.Less(t, first.String(), second.String(), "IDs created in the same millisecond stay sortable")
}

func BenchmarkPassID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		PassID()
	}
}
