package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// CheckDir runs Check against a directory on disk.
func CheckDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return Check(os.DirFS(dir))
}

// Check reports every problem in the migrations at the root of fsys: bad file
// names, reused versions, missing or misordered goose sections, unbalanced
// statement blocks and empty Up sections.
func Check(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var errs error
	versions := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := migrationName.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: name must be YYYYMMDDHHMMSS_snake_case.sql", name))
			continue
		}
		if prev, ok := versions[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", name, m[1], prev))
		}
		versions[m[1]] = name

		f, err := fsys.Open(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, problem := range inspect(bufio.NewScanner(f)) {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s", name, problem))
		}
		_ = f.Close()
	}
	return errs
}

// inspect walks one migration's lines and returns its structural problems.
func inspect(sc *bufio.Scanner) []string {
	var (
		problems       []string
		section        string
		seenUp, seenDn bool
		open           bool
		upStatements   int
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "-- +goose Up":
			if seenDn {
				problems = append(problems, "Up section after Down")
			}
			seenUp, section = true, "up"
			continue
		case "-- +goose Down":
			if open {
				problems = append(problems, "StatementBegin without StatementEnd")
				open = false
			}
			seenDn, section = true, "down"
			continue
		case "-- +goose StatementBegin":
			if open {
				problems = append(problems, "nested StatementBegin")
			}
			open = true
			continue
		case "-- +goose StatementEnd":
			if !open {
				problems = append(problems, "StatementEnd without StatementBegin")
			}
			open = false
			continue
		}
		if section == "up" && line != "" && !strings.HasPrefix(line, "--") {
			upStatements++
		}
	}
	if err := sc.Err(); err != nil {
		return append(problems, err.Error())
	}
	if open {
		problems = append(problems, "StatementBegin without StatementEnd")
	}
	if !seenUp {
		problems = append(problems, `missing "-- +goose Up"`)
	} else if upStatements == 0 {
		problems = append(problems, "Up section has no statements")
	}
	if !seenDn {
		problems = append(problems, `missing "-- +goose Down"`)
	}
	return problems
}
