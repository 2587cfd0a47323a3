package debounce

import (
	"testing"
)

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const samplePayload = `[
  {"include": ["*://*/*"], "exclude": [], "action": "remove", "param": "fbclid"},
  {"include": ["https://redir.b.com/*"], "exclude": ["https://redir.b.com/keep/*"], "action": "redirect", "param": "url"},
  {"include": ["https://*.c.com/*"], "action": "base64,redirect", "param": "u"},
  {"include": ["*://*/*"], "action": "archive", "param": "x"}
]`

func TestParseRulesJSON(t *testing.T) {
	rules, err := ParseRules([]byte(samplePayload), FormatJSON, nil)
	require.NoError(t, err)
	require.Len(t, rules, 4)

	assert.Equal(t, RemoveParam, rules[0].Action())
	assert.Equal(t, "fbclid", rules[0].Param())
	assert.Equal(t, RedirectToParam, rules[1].Action())
	assert.Equal(t, []string{"https://redir.b.com/keep/*"}, rules[1].Spec().Exclude)
	assert.Equal(t, Base64DecodeAndRedirectToParam, rules[2].Action())
	assert.Equal(t, NoAction, rules[3].Action())
}

func TestParseRulesYAML(t *testing.T) {
	payload := `
- include: ["*://*/*"]
  action: remove
  param: gclid
- include: ["https://out.example.com/*"]
  action: redirect
  param: target
`
	rules, err := ParseRules([]byte(payload), FormatYAML, nil)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "gclid", rules[0].Param())
	assert.Equal(t, RedirectToParam, rules[1].Action())
}

func TestParseRulesAutoDetect(t *testing.T) {
	rules, err := ParseRules([]byte(samplePayload), "", nil)
	require.NoError(t, err)
	assert.Len(t, rules, 4)

	rules, err = ParseRules([]byte("- include: ['*://*/*']\n  action: remove\n  param: fbclid\n"), "", nil)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, RemoveParam, rules[0].Action())
}

func TestParseRulesBadElementsStayInert(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	payload := `[
  {"include": ["ftp://files.example/*"], "action": "remove", "param": "a"},
  "not an object",
  {"include": "not a list", "action": "remove", "param": "b"},
  {"include": ["*://*/*"], "action": "remove", "param": "fbclid"}
]`
	rules, err := ParseRules([]byte(payload), FormatJSON, zap.New(core))
	require.NoError(t, err)
	require.Len(t, rules, 4)

	for _, r := range rules[:3] {
		assert.Equal(t, NoAction, r.Action())
		assert.Empty(t, r.Spec().Include)
	}
	assert.Equal(t, RemoveParam, rules[3].Action())
	assert.Equal(t, 3, logs.Len())
}

func TestParseRulesErrors(t *testing.T) {
	_, err := ParseRules(nil, FormatJSON, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = ParseRules([]byte("   \n"), "", nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = ParseRules([]byte(`{"rules": []}`), FormatJSON, nil)
	assert.Error(t, err)

	_, err = ParseRules([]byte(`[{"include": [`), FormatJSON, nil)
	assert.Error(t, err)

	_, err = ParseRules([]byte(`[]`), "toml", nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseRulesEmptyList(t *testing.T) {
	rules, err := ParseRules([]byte(`[]`), FormatJSON, nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
