package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var (
	mu            sync.RWMutex
	bundle        *i18n.Bundle
	matcher       language.Matcher
	defaultLocale = "en"
)

type ctxKey struct{}

func init() {
	if err := Init(""); err != nil {
		panic(err)
	}
}

// Init loads the embedded locale files and sets the default locale.
func Init(defLocale string) error {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("i18n: read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	bundle = b
	matcher = language.NewMatcher(b.LanguageTags())
	if defLocale != "" {
		defaultLocale = defLocale
	}
	zap.L().Debug("i18n loaded", zap.Int("locales", len(entries)), zap.String("default", defaultLocale))
	return nil
}

// WithLocale returns a context carrying the given locale, e.g. "es".
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ctxKey{}, locale)
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	mu.RLock()
	defer mu.RUnlock()
	return defaultLocale
}

// Match picks the best supported locale for an Accept-Language header.
func Match(acceptLanguage string) string {
	mu.RLock()
	defer mu.RUnlock()
	if acceptLanguage == "" {
		return defaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return defaultLocale
	}
	tag, _, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return defaultLocale
	}
	base, _ := tag.Base()
	return base.String()
}

// T translates messageID for the context's locale, falling back to the id.
func T(ctx context.Context, messageID string, templateData ...map[string]any) string {
	lang := LocaleFromContext(ctx)
	mu.RLock()
	l := i18n.NewLocalizer(bundle, lang)
	mu.RUnlock()

	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(templateData) > 0 && templateData[0] != nil {
		cfg.TemplateData = templateData[0]
	}
	msg, err := l.Localize(cfg)
	if err != nil {
		return messageID
	}
	return msg
}
