//go:build !integration

package i18n

import (
	"context"
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: hola\nwelcome_user: hola %s"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "hola" {
			t.Errorf("wanted 'hola', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ana"); got != "hola Ana" {
			t.Errorf("wanted 'hola Ana', got '%s'", got)
		}
	})
}

type fixedLang map[int64]string

func (f fixedLang) Lang(ctx context.Context, tgID int64) string { return f[tgID] }

func TestCatalog(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en.yaml": {Data: []byte("hello: hello\nonly_en: english only\n")},
		"locales/es.yaml": {Data: []byte("hello: hola\n")},
		"locales/README":  {Data: []byte("ignored")},
	}
	c, err := NewCatalog(fsys, "en")
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	if langs := c.Languages(); len(langs) != 2 || langs[0] != "en" || langs[1] != "es" {
		t.Fatalf("Languages = %v", langs)
	}

	ctx := context.Background()
	if got := c.T(ctx, 1, "hello"); got != "hello" {
		t.Errorf("without a lang source the default is used, got %q", got)
	}

	c.WithLangSource(fixedLang{1: "es", 2: "de"})
	if got := c.T(ctx, 1, "hello"); got != "hola" {
		t.Errorf("es user got %q", got)
	}
	if got := c.T(ctx, 1, "only_en"); got != "english only" {
		t.Errorf("missing key should fall back to default language, got %q", got)
	}
	if got := c.T(ctx, 2, "hello"); got != "hello" {
		t.Errorf("unknown language should fall back, got %q", got)
	}

	if _, err := NewCatalog(fsys, "fa"); err == nil {
		t.Error("expected error for a default language without a locale file")
	}
}

func TestEmbeddedLocalesShareKeys(t *testing.T) {
	en, err := NewTranslator(LocalesFS, "en")
	if err != nil {
		t.Fatal(err)
	}
	es, err := NewTranslator(LocalesFS, "es")
	if err != nil {
		t.Fatal(err)
	}
	for key := range en.translations {
		if !es.has(key) {
			t.Errorf("es locale misses key %q", key)
		}
	}
	for _, key := range []string{"video_starting", "video_downloading", "video_uploading", "video_done", "video_error", "video_queued", "video_cancelled", "target_missing"} {
		if !en.has(key) {
			t.Errorf("en locale misses relay key %q", key)
		}
	}
}
