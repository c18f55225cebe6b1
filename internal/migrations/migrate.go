package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	pg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const migrationsTable = "schema_migrations_ratings"

var versionPrefix = regexp.MustCompile(`^0*([0-9]+)_`)

// RunMigrations applies the file migrations found in dir. A database that
// already has the ratings table but no migrate metadata (created by hand or by
// an older deploy) is baselined to the latest version first.
func RunMigrations(databaseURL, dir string, log zerolog.Logger) error {
	if databaseURL == "" {
		return fmt.Errorf("database URL is empty")
	}

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqlDB.Close()

	driver, err := pg.WithInstance(sqlDB, &pg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if baseline, ok := needsBaseline(sqlDB, dir); ok {
		log.Warn().Int64("version", baseline).Msg("baselining existing ratings schema")
		if err := m.Force(int(baseline)); err != nil {
			return fmt.Errorf("force version %d: %w", baseline, err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
	return nil
}

func needsBaseline(db *sql.DB, dir string) (int64, bool) {
	var ratingsExist, metaExist bool
	if err := db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name='ratings')",
	).Scan(&ratingsExist); err != nil || !ratingsExist {
		return 0, false
	}
	if err := db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", migrationsTable,
	).Scan(&metaExist); err != nil || metaExist {
		return 0, false
	}
	latest := LatestVersion(dir)
	return latest, latest > 0
}

// LatestVersion returns the highest numeric prefix (000002_ -> 2) among the
// files in dir, or 0 when none match.
func LatestVersion(dir string) int64 {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	var max int64
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := versionPrefix.FindStringSubmatch(f.Name())
		if len(m) < 2 {
			continue
		}
		v, _ := strconv.ParseInt(m[1], 10, 64)
		if v > max {
			max = v
		}
	}

	return max
}
