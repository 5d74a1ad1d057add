package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyIndex = map[string]int{"TagKey1": 0, "TagKey2": 1, "TagKey3": 2}

func load(t *testing.T, doc string) Config {
	t.Helper()
	cfg, err := Load([]byte(doc))
	require.NoError(t, err)
	return cfg
}

func TestIsOneOf(t *testing.T) {
	cfg := load(t, `
maps:
  DestValue1:
    key: TagKey1
    operator: isOneOf
    values: [SrcValue1a]
`)
	m, err := New(1, cfg, keyIndex)
	require.NoError(t, err)

	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"SrcValue1a", ""}, ""))
	// Value matching is case-insensitive.
	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"Srcvalue1a", ""}, ""))
	assert.Equal(t, "", m.Apply("123456789012", []string{"Other", ""}, ""))
}

func TestIsOneOfRegex(t *testing.T) {
	cfg := load(t, `
maps:
  DestValue1:
    key: TagKey1
    operator: isOneOf
    values: [Src.*]
`)
	m, err := New(1, cfg, keyIndex)
	require.NoError(t, err)

	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"SrcValue1a", ""}, ""))
}

func TestIsNotOneOf(t *testing.T) {
	cfg := load(t, `
maps:
  DestValue1:
    key: TagKey1
    operator: isNotOneOf
    values: [SrcValue1a]
`)
	m, err := New(1, cfg, keyIndex)
	require.NoError(t, err)

	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"SrcValue1b", ""}, ""))
}

func TestForceOverridesExistingValue(t *testing.T) {
	cfg := load(t, `
force: true
maps:
  DestValue1:
    key: TagKey1
    operator: isOneOf
    values: [SrcValue1a]
`)
	m, err := New(0, cfg, keyIndex)
	require.NoError(t, err)

	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"SrcValue1a", ""}, "SrcValue1a"))
}

func TestExistingValueWinsWithoutForce(t *testing.T) {
	cfg := load(t, `
maps:
  DestValue1:
    key: TagKey1
    operator: isOneOf
    values: [SrcValue1a]
`)
	m, err := New(0, cfg, keyIndex)
	require.NoError(t, err)

	assert.Equal(t, "Kept", m.Apply("123456789012", []string{"SrcValue1a", ""}, "Kept"))
}

func TestOr(t *testing.T) {
	cfg := load(t, `
maps:
  DestValue1:
    operator: or
    terms:
    - key: TagKey1
      operator: isOneOf
      values: [SrcValue1]
    - key: TagKey2
      operator: isOneOf
      values: [SrcValue2]
`)
	m, err := New(2, cfg, keyIndex)
	require.NoError(t, err)

	assert.Equal(t, "", m.Apply("123456789012", []string{"", "", ""}, ""))
	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"SrcValue1", "", ""}, ""))
	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"", "SrcValue2", ""}, ""))
	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"SrcValue1", "SrcValue2", ""}, ""))
}

func TestAnd(t *testing.T) {
	cfg := load(t, `
maps:
  DestValue1:
    operator: and
    terms:
    - key: TagKey1
      operator: isOneOf
      values: [SrcValue1]
    - key: TagKey2
      operator: isOneOf
      values: [SrcValue2]
`)
	m, err := New(2, cfg, keyIndex)
	require.NoError(t, err)

	assert.Equal(t, "", m.Apply("123456789012", []string{"", "", ""}, ""))
	assert.Equal(t, "", m.Apply("123456789012", []string{"SrcValue1", "", ""}, ""))
	assert.Equal(t, "", m.Apply("123456789012", []string{"", "SrcValue2", ""}, ""))
	assert.Equal(t, "DestValue1", m.Apply("123456789012", []string{"SrcValue1", "SrcValue2", ""}, ""))
}

func TestUnknownOperatorIsFatalAtLoad(t *testing.T) {
	cfg := load(t, `
maps:
  DestValue1:
    key: TagKey1
    operator: matches
    values: [x]
`)
	_, err := New(0, cfg, keyIndex)
	assert.Error(t, err)
}

func TestUnknownTagKeyIsFatalAtLoad(t *testing.T) {
	cfg := load(t, `
maps:
  DestValue1:
    key: NoSuchKey
    operator: isOneOf
    values: [x]
`)
	_, err := New(0, cfg, keyIndex)
	assert.Error(t, err)
}
