package store

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/tasker-today/internal/model"
)

const recordSchema = 1

// taskRecord is the frontmatter of a task file. The description lives in the
// Markdown body below it.
type taskRecord struct {
	Schema     int `yaml:"schema"`
	model.Task `yaml:",inline"`
}

func encodeTaskFile(t model.Task) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(&taskRecord{Schema: recordSchema, Task: t})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yamlBytes)
	buf.WriteString("---\n\n")
	if strings.TrimSpace(t.Description) != "" {
		buf.WriteString(t.Description)
		if !strings.HasSuffix(t.Description, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

func readTaskFile(path string) (model.Task, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.Task{}, err
	}
	rec, body, err := parseFrontmatter(b)
	if err != nil {
		return model.Task{}, err
	}
	t := rec.Task
	t.Description = strings.TrimSuffix(strings.TrimPrefix(body, "\n"), "\n")
	return t, nil
}

func parseFrontmatter(b []byte) (*taskRecord, string, error) {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if !strings.HasPrefix(s, "---\n") {
		return nil, "", fmt.Errorf("%w: missing frontmatter", ErrInvalidRecord)
	}
	parts := strings.SplitN(s, "\n---\n", 2)
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("%w: invalid frontmatter delimiters", ErrInvalidRecord)
	}
	var rec taskRecord
	if err := yaml.Unmarshal([]byte(strings.TrimPrefix(parts[0], "---\n")), &rec); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if rec.Schema == 0 {
		rec.Schema = recordSchema
	}
	return &rec, parts[1], nil
}
