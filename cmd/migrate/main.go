// Command migrate applies the SQL migrations under migrations/ to the
// QuerySmith database.
//
//	migrate [flags] up [N]      apply all, or the next N, migrations
//	migrate [flags] down [N]    roll back all, or the last N, migrations
//	migrate [flags] version     print the current version
//	migrate [flags] force V     mark version V as clean after a failed run
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/af-corp/querysmith/internal/store/postgres"
)

// migrator is the subset of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(v int) error
	Version() (uint, bool, error)
}

func main() {
	dbURL := flag.String("db-url", "", "database URL (default: DATABASE_URL or DB_* variables)")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up [N] | down [N] | version | force V")
		flag.PrintDefaults()
	}
	flag.Parse()

	dsn := *dbURL
	if dsn == "" {
		dsn = postgres.DSNFromEnv(os.Getenv)
	}

	m, err := migrate.New("file://"+*migrationsPath, dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	if err := run(m, flag.Args()); err != nil {
		log.Fatal(err)
	}
	fmt.Println(describeVersion(m))
}

func run(m migrator, args []string) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}
	n, err := optionalCount(args)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		if n > 0 {
			err = m.Steps(n)
		} else {
			err = m.Up()
		}
	case "down":
		if n > 0 {
			err = m.Steps(-n)
		} else {
			err = m.Down()
		}
	case "force":
		if len(args) < 2 {
			return errors.New("force needs a version")
		}
		err = m.Force(n)
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown command %q (use up, down, version or force)", cmd)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}
	return nil
}

func optionalCount(args []string) (int, error) {
	if len(args) < 2 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid count %q", args[1])
	}
	return n, nil
}

func describeVersion(m migrator) string {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return "no migrations applied"
	case err != nil:
		return "version unknown: " + err.Error()
	case dirty:
		return fmt.Sprintf("version %d (dirty: run force after fixing the failed migration)", v)
	default:
		return fmt.Sprintf("version %d", v)
	}
}
