package messages

import (
	"bytes"
	"errors"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/amirbrooks/tasker-today/internal/model"
)

func TestEnglishMessages(t *testing.T) {
	tr, err := New(LanguageEn, nil)
	require.NoError(t, err)
	require.Equal(t, "No tasks yet.", tr.T("no_tasks", nil))
	require.Equal(t, "Completed and removed subtask: draft", tr.T("completed", map[string]any{"Subtask": "draft"}))
}

func TestChineseMessages(t *testing.T) {
	tr, err := New("ZH", nil)
	require.NoError(t, err)
	require.Equal(t, "zh", tr.Lang())
	require.Equal(t, "暂无任务。", tr.T("no_tasks", nil))
	require.Equal(t, "错误：未找到任务。", tr.ErrorLine(model.NewValidationError(model.CodeTaskNotFound, "task not found")))
}

func TestUnknownLanguageFallsBackToEnglish(t *testing.T) {
	tr, err := New("fr", nil)
	require.NoError(t, err)
	require.Equal(t, "Task deleted.", tr.T("task_deleted", nil))
}

func TestMissingMessageFallsBackToIDWithWarning(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(LanguageEn, log.New(&buf))
	require.NoError(t, err)
	require.Equal(t, "no_such_message", tr.T("no_such_message", nil))
	require.Contains(t, buf.String(), "translation not found")
}

func TestChineseFallsBackToEnglishPerMessage(t *testing.T) {
	bundle := i18n.NewBundle(language.English)
	bundle.MustAddMessages(language.English, &i18n.Message{ID: "only_en", Other: "English only"})
	tr := NewWithBundle(bundle, LanguageZh, nil)
	require.Equal(t, "English only", tr.T("only_en", nil))
}

func TestEveryCodeIsTranslated(t *testing.T) {
	codes := []string{
		model.CodeEmptyInput, model.CodeNoName, model.CodeEmptyName, model.CodeDueInPast,
		model.CodeEmptyIdentifier, model.CodeTaskNotFound, model.CodeAmbiguousName,
		model.CodeInvalidIndex, model.CodeEmptyKeyword, model.CodeEmptySubtask, model.CodeInvalidStatus,
	}
	for _, lang := range []string{LanguageEn, LanguageZh} {
		tr, err := New(lang, nil)
		require.NoError(t, err)
		for _, code := range codes {
			require.NotEqual(t, code, tr.T(code, nil), "%s missing %s", lang, code)
		}
	}
}

func TestErrorLineKinds(t *testing.T) {
	tr, err := New(LanguageEn, nil)
	require.NoError(t, err)
	require.Equal(t, "Error: Input is empty; cannot parse task.",
		tr.ErrorLine(model.NewParseError(model.CodeEmptyInput, "input is empty")))
	require.Equal(t, "Unknown error: disk full", tr.ErrorLine(errors.New("disk full")))
	require.True(t, IsUserError(model.NewValidationError(model.CodeInvalidIndex, "bad")))
	require.False(t, IsUserError(errors.New("boom")))
}

func TestSupported(t *testing.T) {
	require.True(t, Supported("en"))
	require.True(t, Supported(" ZH "))
	require.False(t, Supported("fr"))
}
