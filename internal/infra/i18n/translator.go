package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"telegram-media-relay/internal/domain/ports/adapter"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(data)
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) has(key string) bool {
	_, ok := t.translations[key]
	return ok
}

// LangSource resolves the preferred language of a user.
type LangSource interface {
	Lang(ctx context.Context, tgID int64) string
}

var _ adapter.Localizer = (*Catalog)(nil)

// Catalog serves every embedded language and picks one per requester.
type Catalog struct {
	byLang      map[string]*Translator
	defaultLang string
	langs       LangSource
}

// NewCatalog loads every locales/*.yaml in fsys. defaultLang must be among them.
func NewCatalog(fsys fs.FS, defaultLang string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	c := &Catalog{byLang: map[string]*Translator{}, defaultLang: defaultLang}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		code := strings.TrimSuffix(name, ".yaml")
		tr, err := NewTranslator(fsys, code)
		if err != nil {
			return nil, err
		}
		c.byLang[code] = tr
	}
	if _, ok := c.byLang[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q has no locale file", defaultLang)
	}
	return c, nil
}

// WithLangSource sets where per-user languages come from. Without one, the default is used.
func (c *Catalog) WithLangSource(src LangSource) *Catalog {
	c.langs = src
	return c
}

// Languages returns the loaded language codes, sorted.
func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.byLang))
	for code := range c.byLang {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// In translates key for an explicit language, falling back to the default language.
func (c *Catalog) In(lang, key string, args ...interface{}) string {
	if tr, ok := c.byLang[lang]; ok && tr.has(key) {
		return tr.T(key, args...)
	}
	return c.byLang[c.defaultLang].T(key, args...)
}

func (c *Catalog) T(ctx context.Context, requesterID int64, key string, args ...interface{}) string {
	lang := c.defaultLang
	if c.langs != nil {
		lang = c.langs.Lang(ctx, requesterID)
	}
	return c.In(lang, key, args...)
}
