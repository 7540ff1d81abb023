package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/gosimple/slug"
)

const versionLayout = "20060102150405"

// "table" carries the uuid/timestamps columns every Pharo table has.
var scaffolds = template.Must(template.New("scaffolds").Parse(`{{define "table"}}-- +goose Up
-- +goose StatementBegin
CREATE TABLE IF NOT EXISTS {{.Table}} (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
);
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
DROP TABLE IF EXISTS {{.Table}};
-- +goose StatementEnd
{{end}}{{define "change"}}-- +goose Up
-- +goose StatementBegin
SELECT 'pending: {{.Name}}';
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 'pending: revert {{.Name}}';
-- +goose StatementEnd
{{end}}`))

// Scaffold writes <dir>/<version>_<name>.sql. Names of the form
// create_<table> get a table skeleton; anything else gets placeholder
// SELECTs to replace by hand.
func Scaffold(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := strings.ReplaceAll(slug.Make(name), "-", "_")
	if safe == "" {
		return "", fmt.Errorf("name %q has no letters or digits", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := now.UTC().Format(versionLayout)
	taken, err := fs.Glob(os.DirFS(dir), version+"_*.sql")
	if err != nil {
		return "", err
	}
	if len(taken) > 0 {
		return "", fmt.Errorf("version %s already used by %s", version, taken[0])
	}

	fullpath := filepath.Join(dir, version+"_"+safe+".sql")
	f, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", fullpath, err)
	}
	defer f.Close()

	data := struct{ Name, Table string }{Name: safe}
	tmpl := "change"
	if table, ok := strings.CutPrefix(safe, "create_"); ok && table != "" {
		data.Table = table
		tmpl = "table"
	}
	if err := scaffolds.ExecuteTemplate(f, tmpl, data); err != nil {
		return "", fmt.Errorf("write %q: %w", fullpath, err)
	}
	return fullpath, nil
}
