package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	connectors "github.com/goliatone/go-connectors"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		trimmed := strings.TrimSpace(label)
		if trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if len(targets) == 0 {
			return
		}
		next := make([]string, 0, len(targets))
		for _, target := range targets {
			trimmed := strings.TrimSpace(strings.ToLower(target))
			if trimmed == "" {
				continue
			}
			next = append(next, trimmed)
		}
		if len(next) == 0 {
			return
		}
		r.ValidationTargets = dedupe(next)
	}
}

func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		if len(filesystems) == 0 {
			return
		}
		copied := make([]FilesystemSpec, 0, len(filesystems))
		for _, fsys := range filesystems {
			dialect := strings.TrimSpace(strings.ToLower(fsys.Dialect))
			if dialect == "" || fsys.FS == nil {
				continue
			}
			copied = append(copied, FilesystemSpec{
				Dialect: dialect,
				Path:    fsys.Path,
				FS:      fsys.FS,
			})
		}
		if len(copied) == 0 {
			return
		}
		r.Filesystems = copied
	}
}

// migration is one versioned schema step inside a dialect tree.
type migration struct {
	Version string
	Label   string
}

func (m migration) Name() string {
	return m.Version + "_" + m.Label
}

// readMigrationSet lists one dialect tree and checks that every up file has
// a matching down file under the same version and label, versions are
// numeric and unique, and the tree is not empty. Subdirectories (the sqlite
// alternatives under the postgres tree) are skipped.
func readMigrationSet(fsys fs.FS, dialect string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read %s tree: %w", dialect, err)
	}

	ups := map[string]string{}
	downs := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var stem string
		var bucket map[string]string
		switch {
		case strings.HasSuffix(name, upSuffix):
			stem = strings.TrimSuffix(name, upSuffix)
			bucket = ups
		case strings.HasSuffix(name, downSuffix):
			stem = strings.TrimSuffix(name, downSuffix)
			bucket = downs
		default:
			continue
		}

		version, label, ok := strings.Cut(stem, "_")
		if !ok || version == "" || label == "" {
			return nil, fmt.Errorf("migrations: %s file %q is not <version>_<label>%s", dialect, name, upSuffix)
		}
		for _, r := range version {
			if r < '0' || r > '9' {
				return nil, fmt.Errorf("migrations: %s file %q has a non-numeric version %q", dialect, name, version)
			}
		}
		if existing, dup := bucket[version]; dup {
			return nil, fmt.Errorf("migrations: %s version %s names both %q and %q", dialect, version, existing, label)
		}
		bucket[version] = label
	}

	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s tree has no %s files", dialect, upSuffix)
	}

	set := make([]migration, 0, len(ups))
	for version, label := range ups {
		downLabel, ok := downs[version]
		if !ok {
			return nil, fmt.Errorf("migrations: %s migration %s_%s has no down file", dialect, version, label)
		}
		if downLabel != label {
			return nil, fmt.Errorf("migrations: %s version %s pairs up %q with down %q", dialect, version, label, downLabel)
		}
		set = append(set, migration{Version: version, Label: label})
	}
	for version, label := range downs {
		if _, ok := ups[version]; !ok {
			return nil, fmt.Errorf("migrations: %s down file %s_%s has no up file", dialect, version, label)
		}
	}

	slices.SortFunc(set, func(a, b migration) int {
		return strings.Compare(a.Version, b.Version)
	})
	return set, nil
}

func migrationNames(set []migration) []string {
	names := make([]string, 0, len(set))
	for _, entry := range set {
		names = append(names, entry.Name())
	}
	return names
}

// Filesystems resolves the postgres and sqlite migration trees from the
// embedded schema (or the first of sources when given) and validates both:
// paired up/down files per version, and identical version sets across
// dialects so a schema change cannot land in one dialect only.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := connectors.GetCoreMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	postgresSet, err := readMigrationSet(base, DialectPostgres)
	if err != nil {
		return nil, err
	}
	sqliteSet, err := readMigrationSet(sqliteFS, DialectSQLite)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(postgresSet, sqliteSet) {
		return nil, fmt.Errorf(
			"migrations: postgres and sqlite trees diverge: %v vs %v",
			migrationNames(postgresSet), migrationNames(sqliteSet),
		)
	}

	return []FilesystemSpec{
		{
			Dialect: DialectPostgres,
			Path:    basePath,
			FS:      base,
		},
		{
			Dialect: DialectSQLite,
			Path:    pathJoin(basePath, "sqlite"),
			FS:      sqliteFS,
		},
	}, nil
}

func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       "go-connectors",
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&reg)
	}

	if len(reg.ValidationTargets) == 0 {
		return reg, fmt.Errorf("migrations: validation targets are required")
	}
	if strings.TrimSpace(reg.SourceLabel) == "" {
		return reg, fmt.Errorf("migrations: source label is required")
	}
	if len(reg.Filesystems) == 0 {
		return reg, fmt.Errorf("migrations: filesystems are required")
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}

	targets := dedupe(reg.ValidationTargets)
	for _, fsys := range reg.Filesystems {
		if !slices.Contains(targets, fsys.Dialect) {
			continue
		}
		if fsys.FS == nil {
			return reg, fmt.Errorf("migrations: filesystem for %s is nil", fsys.Dialect)
		}
		if err := registerFn(ctx, fsys.Dialect, reg.SourceLabel, fsys.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
	}

	return reg, nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, "data/sql/migrations")
	if err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, "data/sql/migrations", nil
		}
	}

	entries, readErr := fs.ReadDir(root, ".")
	if readErr == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				return root, ".", nil
			}
		}
	}

	return nil, "", fmt.Errorf("migrations: data/sql/migrations not found in source filesystem")
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func pathJoin(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
