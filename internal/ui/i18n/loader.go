package i18n

import (
	"embed"
	"fmt"
	"log/slog"
)

//go:embed locales/*.json
var localeFS embed.FS

// LoadFromEmbedFS загружает в bundle встроенные каталоги всех языков из Langs
// и предупреждает о ключах, переведённых не на все языки.
func LoadFromEmbedFS(bundle *Bundle, logger *slog.Logger) error {
	for _, lang := range Langs {
		data, err := localeFS.ReadFile("locales/" + lang + ".json")
		if err != nil {
			return fmt.Errorf("i18n: каталог %s: %w", lang, err)
		}
		if err := bundle.LoadMessages(lang, data); err != nil {
			return err
		}
	}

	for _, lang := range Langs[1:] {
		if missing := bundle.MissingKeys(lang); len(missing) > 0 {
			logger.Warn("В каталоге переводов нет ключей",
				slog.String("lang", lang),
				slog.Any("keys", missing),
			)
		}
	}
	logger.Info("Переводы загружены", slog.Any("languages", Langs))
	return nil
}
