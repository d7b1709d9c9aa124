package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"main/internal/journal"
	"main/internal/store"
)

// Reads an audit journal back and prints it, optionally filtered. With
// -store-dsn it reads the Postgres mirror instead and prints the newest
// terminal command records. Useful for reconstructing what the coordinator
// did around an incident.
func main() {
	path := flag.String("path", "audit.jsonl", "Journal file path")
	component := flag.String("component", "", "Only show events from this component")
	kind := flag.String("kind", "", "Only show events of this kind")
	summary := flag.Bool("summary", false, "Print per-kind counts instead of events")
	storeDSN := flag.String("store-dsn", "", "Read terminal commands from the Postgres mirror instead of the journal")
	recent := flag.Int("recent", 50, "How many mirror records to print with -store-dsn")
	flag.Parse()

	if *storeDSN != "" {
		printRecent(*storeDSN, *recent)
		return
	}

	counts := make(map[string]int)
	var index int
	err := journal.Replay(*path, func(e journal.Event) {
		if *component != "" && e.Component != *component {
			return
		}
		if *kind != "" && e.Kind != *kind {
			return
		}
		counts[e.Component+"/"+e.Kind]++
		if *summary {
			return
		}
		index++
		fmt.Printf("%06d %s %s %s %s\n", index, e.Ts.Format("2006-01-02T15:04:05.000Z07:00"), e.Component, e.Kind, e.Detail)
	})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	if *summary {
		for key, n := range counts {
			fmt.Printf("%-40s %d\n", key, n)
		}
	}
}

func printRecent(dsn string, limit int) {
	db, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	records, err := db.Recent(context.Background(), limit)
	if err != nil {
		log.Fatalf("query mirror: %v", err)
	}
	for _, rec := range records {
		fmt.Printf("%s %-9s %-9s attempts=%d terminal=%s %s\n",
			rec.ID, rec.Priority, rec.State, rec.Attempts,
			rec.TerminalAt.Format("2006-01-02T15:04:05.000Z07:00"), rec.LastErr)
	}
}
