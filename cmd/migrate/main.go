package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"consorcia.org/internal/migrate"
	"consorcia.org/internal/obs"
	"consorcia.org/ops/migrations"
)

func main() {
	log := obs.Logger()
	var (
		dsn     = flag.String("dsn", os.Getenv("CONSORCIA_PG_DSN"), "PostgreSQL DSN")
		dir     = flag.String("dir", "", "Read migrations from this directory instead of the embedded set")
		timeout = flag.Duration("timeout", 60*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CONSORCIA_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	var files fs.FS = migrations.FS
	if *dir != "" {
		files = os.DirFS(*dir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer db.Close()

	mgr := migrate.NewManager(db, files, migrations.SQLDir, migrations.SeedsDir)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		log.WithField("count", len(applied)).Info("migrations applied")
	case "down":
		var last string
		last, err = mgr.Down(ctx)
		if err == nil {
			log.WithField("file", last).Info("migration reverted")
		}
	case "seed":
		var applied []string
		applied, err = mgr.Seed(ctx)
		log.WithField("count", len(applied)).Info("seeds applied")
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", cmd)
	}
}
