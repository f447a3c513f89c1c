package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"trafficsentinel/internal/config"
	"trafficsentinel/internal/repository/sqlite"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: migrate [-db path] <command>

Commands:
  up             apply all pending migrations
  down           roll back the last migration
  version        print the current schema version
  force <n>      set the version without running migrations (fixes a dirty state)

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	cfg := config.Load()
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(2)
	}

	// Open bez migracji - komenda decyduje co zrobić
	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch command := flag.Arg(0); command {
	case "up":
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		printVersion(db)

	case "down":
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		printVersion(db)

	case "version":
		printVersion(db)

	case "force":
		if flag.NArg() < 2 {
			log.Fatalf("force requires a version number")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			log.Fatalf("Invalid version %q: %v", flag.Arg(1), err)
		}
		if err := db.MigrateForce(version); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		printVersion(db)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", command)
		printUsage()
		os.Exit(2)
	}
}

func printVersion(db *sqlite.DB) {
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	if dirty {
		fmt.Printf("⚠️  Schema version %d (dirty)\n", version)
		return
	}
	fmt.Printf("✅ Schema version %d\n", version)
}
