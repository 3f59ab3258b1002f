// Command seed_catalog loads a catalog YAML file (the built-in IPL catalog
// by default) into the Postgres catalog tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mcdev12/bidroom/go/internal/catalog"
	"github.com/mcdev12/bidroom/go/internal/dbconfig"
)

func main() {
	path := flag.String("file", "", "catalog YAML file (empty = built-in catalog)")
	migrate := flag.Bool("migrate", true, "apply catalog migrations first")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	// 1) Load and validate the catalog
	ctx := context.Background()
	c, err := catalog.NewFileSource(*path).Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *migrate {
		if err := catalog.Migrate(cfg.DSN()); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert in one transaction
	res, err := catalog.NewPostgresSource(pool).Save(ctx, c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed catalog: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Catalog seed complete: %d teams, %d items, %d modes\n",
		res.Teams, res.Items, res.Modes,
	)
}
