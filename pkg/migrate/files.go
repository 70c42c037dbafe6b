package migrate

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pressly/goose/v3"
)

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// Create writes a new timestamped SQL migration into dir and returns its path.
func Create(dir, name string) (string, error) {
	slug := strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := goose.Create(nil, dir, slug, "sql"); err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*_"+slug+".sql"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("created migration %s not found in %s", slug, dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// Validate checks every .sql file in fsys: timestamp versions must be unique
// and each file needs Up and Down sections with balanced statement blocks.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}

	versions := make(map[int64]string, len(names))
	for _, name := range names {
		version, err := goose.NumericComponent(name)
		if err != nil || len(strings.SplitN(name, "_", 2)[0]) != 14 {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if other, dup := versions[version]; dup {
			return fmt.Errorf("duplicate migration version %d in %q and %q", version, other, name)
		}
		versions[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := checkSections(string(body)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkSections(sql string) error {
	up := strings.Index(sql, "-- +goose Up")
	down := strings.Index(sql, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("missing \"-- +goose Up\"")
	case down < 0:
		return fmt.Errorf("missing \"-- +goose Down\"")
	case down < up:
		return fmt.Errorf("down section precedes up section")
	}
	if begins, ends := strings.Count(sql, "-- +goose StatementBegin"), strings.Count(sql, "-- +goose StatementEnd"); begins != ends {
		return fmt.Errorf("unbalanced statement blocks (%d begin, %d end)", begins, ends)
	}
	return nil
}
