package chatclient

import (
	"errors"
	"maps"
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator localizes user-facing text. It returns the input texts
// unchanged alongside their translation into the target language.
type Translator interface {
	Translate(texts map[string]string) (original, translated map[string]string)
}

// CatalogTranslator translates through a golang.org/x/text message catalog.
// Texts with no catalog entry come back unchanged.
type CatalogTranslator struct {
	tag     language.Tag
	printer *message.Printer
}

// NewCatalogTranslator builds a translator for lang from entries keyed by
// language tag, then by source (English) text.
func NewCatalogTranslator(lang string, entries map[string]map[string]string) (*CatalogTranslator, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tagStr, texts := range entries {
		tag, err := language.Parse(tagStr)
		if err != nil {
			return nil, err
		}
		for src, dst := range texts {
			if err := b.SetString(tag, src, strings.ReplaceAll(dst, "%", "%%")); err != nil {
				return nil, err
			}
		}
	}

	tag := language.English
	if lang != "" {
		want, err := language.Parse(lang)
		if err != nil {
			return nil, err
		}
		supported := append([]language.Tag{language.English}, b.Languages()...)
		_, i, _ := language.NewMatcher(supported).Match(want)
		tag = supported[i]
	}
	return &CatalogTranslator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}, nil
}

// Language returns the matched target language.
func (t *CatalogTranslator) Language() language.Tag { return t.tag }

// Translate implements Translator.
func (t *CatalogTranslator) Translate(texts map[string]string) (map[string]string, map[string]string) {
	out := make(map[string]string, len(texts))
	for k, v := range texts {
		out[k] = t.printer.Sprintf(message.Key(v, strings.ReplaceAll(v, "%", "%%")))
	}
	return maps.Clone(texts), out
}

type identityTranslator struct{}

func (identityTranslator) Translate(texts map[string]string) (map[string]string, map[string]string) {
	return maps.Clone(texts), maps.Clone(texts)
}

// swapTranslator forwards to a translator that can be replaced while calls
// are in flight.
type swapTranslator struct {
	cur atomic.Pointer[translatorBox]
}

type translatorBox struct{ Translator }

func newSwapTranslator(t Translator) *swapTranslator {
	if t == nil {
		t = identityTranslator{}
	}
	s := &swapTranslator{}
	s.cur.Store(&translatorBox{t})
	return s
}

func (s *swapTranslator) set(t Translator) { s.cur.Store(&translatorBox{t}) }

func (s *swapTranslator) Translate(texts map[string]string) (map[string]string, map[string]string) {
	return s.cur.Load().Translate(texts)
}

// errorCatalog pairs the English error table with its translation.
func errorCatalog(lang string, english, translated []string) map[string]map[string]string {
	texts := make(map[string]string, len(english))
	for i, src := range english {
		if i < len(translated) && translated[i] != "" {
			texts[src] = translated[i]
		}
	}
	return map[string]map[string]string{lang: texts}
}

// ============================================================================
// Error translation
// ============================================================================

const (
	fieldSep  = " => "
	suffixSep = ": "
)

// TranslateError localizes a server error of the form
// "<field> => <message>: <suffix>". Field and suffix are optional; only the
// message part is translated and the original separators are kept.
func TranslateError(t Translator, raw string) *RemoteError {
	e := &RemoteError{Raw: raw}
	rest := raw
	hasField := false
	if i := strings.Index(rest, fieldSep); i >= 0 {
		e.Field, rest, hasField = rest[:i], rest[i+len(fieldSep):], true
	}
	hasSuffix := false
	if i := strings.Index(rest, suffixSep); i >= 0 {
		e.Message, e.Suffix, hasSuffix = rest[:i], rest[i+len(suffixSep):], true
	} else {
		e.Message = rest
	}

	translated := e.Message
	if t != nil && e.Message != "" {
		_, out := t.Translate(map[string]string{"message": e.Message})
		if s := out["message"]; s != "" {
			translated = s
		}
	}

	var sb strings.Builder
	if hasField {
		sb.WriteString(e.Field)
		sb.WriteString(fieldSep)
	}
	sb.WriteString(translated)
	if hasSuffix {
		sb.WriteString(suffixSep)
		sb.WriteString(e.Suffix)
	}
	e.Translated = sb.String()
	return e
}

// translateErr applies TranslateError to remote errors, keeping their event.
// Other errors pass through untouched.
func translateErr(t Translator) func(error) error {
	return func(err error) error {
		var re *RemoteError
		if !errors.As(err, &re) {
			return err
		}
		out := TranslateError(t, re.Raw)
		out.Event = re.Event
		return out
	}
}
