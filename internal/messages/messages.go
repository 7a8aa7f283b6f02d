// Package messages localizes user-facing text. English is the default and
// the fallback for any message a language does not define.
package messages

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/amirbrooks/tasker-today/internal/model"
)

const (
	LanguageEn = "en"
	LanguageZh = "zh"
)

//go:embed locales/*.toml
var localeFS embed.FS

// Supported reports whether lang has a bundled message file.
func Supported(lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case LanguageEn, LanguageZh:
		return true
	}
	return false
}

type Translator struct {
	lang      string
	localizer *i18n.Localizer
	logger    *log.Logger
}

// NewBundle loads every embedded message file.
func NewBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localeFS, path.Join("locales", e.Name())); err != nil {
			return nil, fmt.Errorf("load %s: %w", e.Name(), err)
		}
	}
	return bundle, nil
}

// New returns a translator for lang, falling back to English.
func New(lang string, logger *log.Logger) (*Translator, error) {
	bundle, err := NewBundle()
	if err != nil {
		return nil, err
	}
	return NewWithBundle(bundle, lang, logger), nil
}

func NewWithBundle(bundle *i18n.Bundle, lang string, logger *log.Logger) *Translator {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = LanguageEn
	}
	return &Translator{
		lang:      lang,
		localizer: i18n.NewLocalizer(bundle, lang, LanguageEn),
		logger:    logger,
	}
}

func (t *Translator) Lang() string { return t.lang }

// T renders message id with data. A missing message renders as its id.
func (t *Translator) T(id string, data map[string]any) string {
	msg, err := t.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		t.logger.Warn("translation not found", "lang", t.lang, "message_id", id, "err", err)
		return id
	}
	return msg
}

// Error renders a parse or validation error in the active language. Other
// errors keep their own text.
func (t *Translator) Error(err error) string {
	if err == nil {
		return ""
	}
	if code, ok := model.Code(err); ok {
		return t.T(code, nil)
	}
	return err.Error()
}

// ErrorLine formats err for the command surfaces: "Error: ..." for
// recoverable errors and "Unknown error: ..." for anything else.
func (t *Translator) ErrorLine(err error) string {
	if IsUserError(err) {
		return t.T("error_line", map[string]any{"Message": t.Error(err)})
	}
	return t.T("unknown_error", map[string]any{"Message": t.Error(err)})
}

// IsUserError reports whether err is a parse or validation error.
func IsUserError(err error) bool {
	return errors.Is(err, model.ErrParse) || errors.Is(err, model.ErrValidation)
}
