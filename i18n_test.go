package chatclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func germanTranslator(t *testing.T) *CatalogTranslator {
	t.Helper()
	tr, err := NewCatalogTranslator("de-CH", map[string]map[string]string{
		"de": {
			"Invalid user ID":      "Ungültige Benutzer-ID",
			"100% sure":            "100% sicher",
			"Insufficient balance": "Unzureichendes Guthaben",
		},
	})
	require.NoError(t, err)
	return tr
}

func TestCatalogTranslator(t *testing.T) {
	tr := germanTranslator(t)
	assert.Equal(t, language.German, tr.Language())

	orig, out := tr.Translate(map[string]string{
		"a": "Invalid user ID",
		"b": "100% sure",
		"c": "Not in catalog",
	})
	assert.Equal(t, "Invalid user ID", orig["a"])
	assert.Equal(t, "Ungültige Benutzer-ID", out["a"])
	assert.Equal(t, "100% sicher", out["b"])
	assert.Equal(t, "Not in catalog", out["c"])
}

func TestCatalogTranslatorFallsBackToEnglish(t *testing.T) {
	tr, err := NewCatalogTranslator("ja", map[string]map[string]string{"de": {"Hello": "Hallo"}})
	require.NoError(t, err)
	assert.Equal(t, language.English, tr.Language())

	_, out := tr.Translate(map[string]string{"x": "Hello"})
	assert.Equal(t, "Hello", out["x"])
}

func TestCatalogTranslatorBadTag(t *testing.T) {
	_, err := NewCatalogTranslator("en", map[string]map[string]string{"???": {"a": "b"}})
	assert.Error(t, err)
}

func TestTranslateError(t *testing.T) {
	tr := germanTranslator(t)

	cases := []struct {
		raw   string
		field string
		msg   string
		out   string
	}{
		{"Invalid user ID", "", "Invalid user ID", "Ungültige Benutzer-ID"},
		{"userId => Invalid user ID", "userId", "Invalid user ID", "userId => Ungültige Benutzer-ID"},
		{"Invalid user ID: bob", "", "Invalid user ID", "Ungültige Benutzer-ID: bob"},
		{"amount => Insufficient balance: 5 TOTEM", "amount", "Insufficient balance", "amount => Unzureichendes Guthaben: 5 TOTEM"},
		{"Something else", "", "Something else", "Something else"},
	}
	for _, tc := range cases {
		e := TranslateError(tr, tc.raw)
		assert.Equal(t, tc.raw, e.Raw)
		assert.Equal(t, tc.field, e.Field, tc.raw)
		assert.Equal(t, tc.msg, e.Message, tc.raw)
		assert.Equal(t, tc.out, e.Error(), tc.raw)
	}
}

func TestTranslateErrPassesOtherErrors(t *testing.T) {
	fn := translateErr(identityTranslator{})
	assert.ErrorIs(t, fn(ErrTimeout), ErrTimeout)

	plain := errors.New("plain")
	assert.Equal(t, plain, fn(plain))

	out := fn(&RemoteError{Event: "login", Raw: "id => bad"})
	var re *RemoteError
	require.ErrorAs(t, out, &re)
	assert.Equal(t, "login", re.Event)
	assert.Equal(t, "id", re.Field)
}

func TestSwapTranslator(t *testing.T) {
	s := newSwapTranslator(nil)
	_, out := s.Translate(map[string]string{"m": "Invalid user ID"})
	assert.Equal(t, "Invalid user ID", out["m"])

	s.set(germanTranslator(t))
	_, out = s.Translate(map[string]string{"m": "Invalid user ID"})
	assert.Equal(t, "Ungültige Benutzer-ID", out["m"])
}

func TestErrorCatalog(t *testing.T) {
	cat := errorCatalog("fr", []string{"a", "b", "c"}, []string{"A", ""})
	assert.Equal(t, map[string]map[string]string{"fr": {"a": "A"}}, cat)
}
