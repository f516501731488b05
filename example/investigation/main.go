package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/archivegraph/dossier"
	"github.com/archivegraph/dossier/model"
)

// Demonstrates entity resolution and the co-occurrence graph without a
// database or embedding model: flight-manifest rows go in as mention
// groups, a noisy spelling lands in the review queue, and the graph
// answers how two people are connected.
func main() {
	d, err := dossier.NewMemoryDossier()
	if err != nil {
		log.Fatalf("Failed to create dossier: %v", err)
	}
	defer d.Close()

	manifests := [][]string{
		{"Jeffrey Epstein", "Ghislaine Maxwell"},
		{"Epstein, Jeffrey", "G. Maxwell"},
		{"Ghislaine Maxwell", "Jean-Luc Brunel"},
	}

	date := time.Date(2002, 7, 15, 0, 0, 0, 0, time.UTC)
	for i, names := range manifests {
		mentions := make([]model.Mention, 0, len(names))
		for _, name := range names {
			mentions = append(mentions, model.Mention{
				RawText:    name,
				SourceID:   fmt.Sprintf("manifest-%d", i+1),
				SourceType: "flight_log",
			})
		}

		resolutions, err := d.IngestMentionGroup(mentions, date, "flight_log")
		if err != nil {
			log.Fatalf("Failed to ingest manifest: %v", err)
		}
		for _, r := range resolutions {
			fmt.Printf("%-20s -> %s (%s, %.2f)\n", r.RawText, r.EntityID, r.Rule, r.Confidence)
		}
	}

	// A misspelling from a second source type is too risky to merge
	// silently, it lands in the review queue
	_, err = d.ResolveMention(model.Mention{
		RawText:    "Jefrey Epstein",
		SourceID:   "article-7",
		SourceType: "news_article",
	})
	if err != nil {
		log.Fatalf("Failed to resolve mention: %v", err)
	}

	for _, candidate := range d.PendingMerges() {
		fmt.Printf("\npending review: %q (score %.2f): %s\n", candidate.Alias, candidate.Score, candidate.Reason)
		if err := d.ResolveCandidate(candidate.ID, model.DecisionMerge); err != nil {
			log.Fatalf("Failed to apply decision: %v", err)
		}
		fmt.Println("approved and merged")
	}

	// How are Epstein and Brunel connected?
	path, err := d.Connection(context.Background(), "Jeffrey Epstein", "Jean-Luc Brunel", 2, 0)
	if err != nil {
		log.Fatalf("Failed to find connection: %v", err)
	}
	fmt.Printf("\nconnection path (%d hops):\n", len(path)-1)
	for _, id := range path {
		fmt.Printf("  %s\n", id)
	}
}
