package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/sw33tLie/goesplan/pkg/catalog"
	"github.com/sw33tLie/goesplan/pkg/download"
	"github.com/sw33tLie/goesplan/pkg/plan"
	"github.com/sw33tLie/goesplan/pkg/reconcile"
	"github.com/sw33tLie/goesplan/pkg/remote"
)

func main() {
	// Usage: go run *.go -product ABI-L2-LSTF -position east -year 2026 -day 003 -archive /data/goes

	productFlag := flag.String("product", "ABI-L2-LSTF", "Product ID")
	positionFlag := flag.String("position", "east", "Satellite position (east or west)")
	yearFlag := flag.String("year", "", "Year (YYYY)")
	dayFlag := flag.String("day", "", "Julian day (DDD)")
	archiveFlag := flag.String("archive", "goes-archive", "Local archive root")

	// Parse the command-line flags
	flag.Parse()

	if *yearFlag == "" || *dayFlag == "" {
		fmt.Println("Year and day are required. Please provide them using -year and -day flags.")
		return
	}

	ctx := context.Background()
	g := plan.NewGenerator(catalog.Default(), *archiveFlag, nil)
	p, err := g.Generate(*positionFlag, *productFlag, *yearFlag, *dayFlag)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// Plans live next to the archive, one folder per day
	store := plan.NewStore(*archiveFlag + "/plans")
	if _, err := store.Save(p, false); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	path := store.PathFor(p)

	rec := reconcile.New(afero.NewOsFs(), *archiveFlag, nil)
	if p, err = rec.File(store, path); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Printf("Already local: %d of %d\n", p.Summary.TotalFilesReady, p.Summary.TotalFilesExpected)

	client, err := remote.NewS3(ctx, remote.DefaultRegion, "")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	sum, err := download.New(download.Config{
		Store:       store,
		Remote:      client,
		ArchiveRoot: *archiveFlag,
		Workers:     8,
	}).Execute(ctx, path)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println(sum)
}
