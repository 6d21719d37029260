// Command migrate applies the embedded tagger schema to PostgreSQL.
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"

	"github.com/JaimeStill/tagger/internal/config"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

//go:embed migrations/*.sql
var migrations embed.FS

func main() {
	log.SetFlags(0)
	log.SetPrefix("migrate: ")
	_ = godotenv.Load()

	var (
		dsn     = flag.String("dsn", "", "PostgreSQL URL (default: built from TAGGER_DB_*)")
		up      = flag.Bool("up", false, "Apply all pending migrations")
		down    = flag.Bool("down", false, "Revert all migrations")
		steps   = flag.Int("steps", 0, "Apply N migrations, or revert when negative")
		version = flag.Bool("version", false, "Print the current version")
		force   = flag.Int("force", -1, "Mark version N as clean without running it")
	)
	flag.Parse()

	forced := false
	flag.Visit(func(f *flag.Flag) { forced = forced || f.Name == "force" })

	if !*up && !*down && *steps == 0 && !*version && !forced {
		fmt.Println("usage: migrate [-dsn URL] -up | -down | -steps N | -version | -force N")
		flag.PrintDefaults()
		return
	}

	if *dsn == "" {
		db, err := config.DatabaseConfig()
		if err != nil {
			log.Fatalf("no -dsn and TAGGER_DB_* incomplete: %v", err)
		}
		*dsn = db.MigrationURL()
	}

	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		log.Fatalf("open embedded migrations: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, *dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer m.Close()

	switch {
	case *version:
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		check("version", err)
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
	case forced:
		check("force", m.Force(*force))
		fmt.Printf("forced version %d\n", *force)
	case *up:
		check("up", m.Up())
		report(m)
	case *down:
		check("down", m.Down())
		fmt.Println("all migrations reverted")
	default:
		check("steps", m.Steps(*steps))
		report(m)
	}
}

func check(op string, err error) {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("%s: %v", op, err)
	}
}

func report(m *migrate.Migrate) {
	v, _, err := m.Version()
	if err != nil {
		fmt.Println("no migrations applied")
		return
	}
	fmt.Printf("at version %d\n", v)
}
