package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"
)

// isolate clears every TASKER_ variable and moves into an empty directory so
// no stray .env file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("TASKER_CONFIG", "")
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)
	root := filepath.Join(dir, "data")

	loaded, err := Load(Overrides{Root: root})
	require.NoError(t, err)
	require.Equal(t, root, loaded.Root)
	require.Equal(t, DefaultBackend, loaded.Backend)
	require.Equal(t, filepath.Join(root, DefaultDBName), loaded.DBPath)
	require.Equal(t, "en", loaded.Lang)
	require.Equal(t, "warn", loaded.LogLevel)
	require.Equal(t, "text", loaded.LogFormat)
	require.Equal(t, filepath.Join(root, FileName), loaded.File)
	require.Equal(t, SourceFlag, loaded.Sources["root"])
	require.Equal(t, SourceDefault, loaded.Sources["backend"])
}

func TestLoadLayering(t *testing.T) {
	dir := isolate(t)
	root := filepath.Join(dir, "data")
	writeConfig(t, filepath.Join(root, FileName), `
backend = "sqlite"
lang = "zh"
log_level = "info"
`)
	t.Setenv("TASKER_ROOT", root)
	t.Setenv("TASKER_LOG_LEVEL", "debug")

	loaded, err := Load(Overrides{LogFormat: "json"})
	require.NoError(t, err)
	require.Equal(t, "sqlite", loaded.Backend)
	require.Equal(t, "zh", loaded.Lang)
	require.Equal(t, "debug", loaded.LogLevel)
	require.Equal(t, "json", loaded.LogFormat)

	require.Equal(t, SourceEnv, loaded.Sources["root"])
	require.Equal(t, SourceFile, loaded.Sources["backend"])
	require.Equal(t, SourceEnv, loaded.Sources["log_level"])
	require.Equal(t, SourceFlag, loaded.Sources["log_format"])
	require.Equal(t, SourceDefault, loaded.Sources["db_path"])
}

func TestLoadFlagBeatsEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("TASKER_BACKEND", "sqlite")

	loaded, err := Load(Overrides{Root: dir, Backend: "memory"})
	require.NoError(t, err)
	require.Equal(t, "memory", loaded.Backend)
}

func TestLoadExplicitConfigPath(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "elsewhere.toml")
	writeConfig(t, path, `db_path = "`+filepath.ToSlash(filepath.Join(dir, "custom.db"))+`"`)
	t.Setenv("TASKER_CONFIG", path)

	loaded, err := Load(Overrides{Root: dir})
	require.NoError(t, err)
	require.Equal(t, path, loaded.File)
	require.Equal(t, filepath.Join(dir, "custom.db"), filepath.FromSlash(loaded.DBPath))
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.Unsetenv("TASKER_LANG"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TASKER_LANG=zh\nTASKER_BACKEND=memory\n"), 0o644))
	t.Setenv("TASKER_BACKEND", "sqlite")

	loaded, err := Load(Overrides{Root: dir})
	require.NoError(t, err)
	require.Equal(t, "zh", loaded.Lang)
	// real environment wins over .env
	require.Equal(t, "sqlite", loaded.Backend)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]Overrides{
		"backend":    {Backend: "mongo"},
		"lang":       {Lang: "fr"},
		"log_level":  {LogLevel: "chatty"},
		"log_format": {LogFormat: "xml"},
	}
	for name, o := range cases {
		t.Run(name, func(t *testing.T) {
			o.Root = isolate(t)
			_, err := Load(o)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadRejectsUnknownFileKey(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, filepath.Join(dir, FileName), "colour = \"blue\"\n")

	_, err := Load(Overrides{Root: dir})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := isolate(t)
	writeConfig(t, filepath.Join(dir, FileName), "backend = \n")

	_, err := Load(Overrides{Root: dir})
	require.Error(t, err)
}

func TestSetInFileKeepsOtherKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeConfig(t, path, "lang = \"zh\"\n")

	require.NoError(t, SetInFile(path, "backend", "sqlite"))

	var got map[string]string
	_, err := toml.DecodeFile(path, &got)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"lang": "zh", "backend": "sqlite"}, got)
}

func TestSetInFileCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	require.NoError(t, SetInFile(path, "log_level", "debug"))

	var got map[string]string
	_, err := toml.DecodeFile(path, &got)
	require.NoError(t, err)
	require.Equal(t, "debug", got["log_level"])
}

func TestSetInFileRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	require.ErrorIs(t, SetInFile(path, "colour", "blue"), ErrInvalid)
	require.ErrorIs(t, SetInFile(path, "lang", "fr"), ErrInvalid)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestGetAndStoreConfig(t *testing.T) {
	cfg := Config{Root: "/data", Backend: "sqlite", DBPath: "/data/t.db", Lang: "en", LogLevel: "warn", LogFormat: "text"}
	v, ok := cfg.Get("db_path")
	require.True(t, ok)
	require.Equal(t, "/data/t.db", v)
	_, ok = cfg.Get("nope")
	require.False(t, ok)

	sc := cfg.Store()
	require.Equal(t, "sqlite", sc.Backend)
	require.Equal(t, "/data/t.db", sc.DBPath)
	require.Equal(t, "warn", cfg.Logging().Level)
}
