// Пакет i18n — переводы страниц админки Vixio.
// Языки: português (pt, по умолчанию) и english (en).
// Язык запроса выбирает Middleware и кладёт его в контекст;
// страницы получают строки через T и Tf.
package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang — язык, на который откатываются неизвестные языки и ключи.
const DefaultLang = "pt"

// Langs — коды поддерживаемых языков, DefaultLang первым.
var Langs = []string{"pt", "en"}

var (
	tags    = []language.Tag{language.Portuguese, language.English}
	matcher = language.NewMatcher(tags)
)

// IsSupported сообщает, есть ли каталог для языка lang.
func IsSupported(lang string) bool {
	return slices.Contains(Langs, lang)
}

// MatchLanguage выбирает язык по заголовку Accept-Language.
func MatchLanguage(acceptLanguage string) string {
	_, idx := language.MatchStrings(matcher, acceptLanguage)
	return Langs[idx]
}

// Bundle — каталоги переводов. Ключ каталога — плоская строка вида "nav.users".
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string
	printers map[string]*message.Printer
	logger   *slog.Logger
}

// NewBundle создаёт пустой Bundle. logger может быть nil.
func NewBundle(logger *slog.Logger) *Bundle {
	return &Bundle{
		catalogs: make(map[string]map[string]string, len(Langs)),
		printers: make(map[string]*message.Printer, len(Langs)),
		logger:   logger,
	}
}

// LoadMessages загружает JSON-каталог {"ключ": "перевод"} языка lang.
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: каталог %s: %w", lang, err)
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("i18n: язык %q: %w", lang, err)
	}

	b.mu.Lock()
	b.catalogs[lang] = messages
	b.printers[lang] = message.NewPrinter(tag)
	b.mu.Unlock()

	if b.logger != nil {
		b.logger.Debug("Каталог переводов загружен",
			slog.String("lang", lang),
			slog.Int("keys", len(messages)),
		)
	}
	return nil
}

// Translate возвращает перевод key. Ключ, которого нет в каталоге lang,
// ищется в DefaultLang; ненайденный ключ возвращается как есть.
func (b *Bundle) Translate(lang, key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, l := range []string{lang, DefaultLang} {
		if msg, ok := b.catalogs[l][key]; ok {
			return msg
		}
	}
	return key
}

// Translatef — Translate с подстановкой args по правилам языка lang.
func (b *Bundle) Translatef(lang, key string, args ...any) string {
	format := b.Translate(lang, key)
	if len(args) == 0 {
		return format
	}

	b.mu.RLock()
	p, ok := b.printers[lang]
	b.mu.RUnlock()
	if !ok {
		p = message.NewPrinter(language.Portuguese)
	}
	return p.Sprintf(format, args...)
}

// MissingKeys возвращает ключи DefaultLang, которых нет в каталоге lang.
func (b *Bundle) MissingKeys(lang string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var missing []string
	for key := range b.catalogs[DefaultLang] {
		if _, ok := b.catalogs[lang][key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return missing
}

var (
	global     *Bundle
	globalOnce sync.Once
)

// Init создаёт глобальный Bundle, которым пользуются T и Tf.
// Повторные вызовы возвращают тот же Bundle.
func Init(logger *slog.Logger) *Bundle {
	globalOnce.Do(func() {
		global = NewBundle(logger)
	})
	return global
}

type ctxKey struct{}

// WithLang кладёт язык в контекст.
func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, ctxKey{}, lang)
}

// LangFromContext возвращает язык запроса или DefaultLang.
func LangFromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(ctxKey{}).(string); ok && lang != "" {
		return lang
	}
	return DefaultLang
}

// T переводит key на язык запроса.
func T(ctx context.Context, key string) string {
	if global == nil {
		return key
	}
	return global.Translate(LangFromContext(ctx), key)
}

// Tf переводит key и подставляет args.
func Tf(ctx context.Context, key string, args ...any) string {
	if global == nil {
		return key
	}
	return global.Translatef(LangFromContext(ctx), key, args...)
}
