package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/archivegraph/dossier"
	"github.com/archivegraph/dossier/helper"
	"github.com/archivegraph/dossier/model"
)

const depositionText = `The witness stated that she met both of them on the island in July 2002.
She recalled several flights between Palm Beach and the island that summer.
The flight logs were later entered into evidence during the proceedings.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "dossier",
		Username: "postgres",
		Password: "postgres",
	}

	d, err := dossier.NewDossier(dbConfig, 384)
	if err != nil {
		log.Fatalf("Failed to create dossier: %v", err)
	}
	defer d.Close()

	// Set up the default pipeline (semantic chunking + embeddings)
	if err := d.UseDefaultPipeline(); err != nil {
		log.Fatalf("Failed to set up pipeline: %v", err)
	}

	// Ingest a document: mentions are resolved to entities, the text is
	// chunked, embedded and indexed, and the mention group lands in the
	// co-occurrence graph
	date := time.Date(2002, 7, 15, 0, 0, 0, 0, time.UTC)
	fmt.Println("Ingesting document...")
	result, err := d.IngestDocument(context.Background(), model.Document{
		SourceID:   "deposition-2002-0715",
		SourceType: "deposition",
		Text:       depositionText,
		Date:       &date,
		Mentions:   []string{"Jeffrey Epstein", "Ghislaine Maxwell"},
	})
	if err != nil {
		log.Fatalf("Failed to ingest document: %v", err)
	}
	fmt.Printf("Ingested %d chunks, %d entities\n", result.Chunks, len(result.EntityIDs))

	// Hybrid query: semantic similarity plus graph proximity to the
	// filtered entities
	response, err := d.Query(context.Background(), model.QueryRequest{
		Text:     "who traveled to the island",
		Entities: []string{"Ghislaine Maxwell"},
		Limit:    5,
	})
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}

	fmt.Printf("\n%d results:\n", len(response.Results))
	for i, r := range response.Results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.FinalScore, r.Record.Content)
	}
	for _, warning := range response.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}

	// Snapshot the resolver and graph state
	if err := d.Save(); err != nil {
		log.Fatalf("Failed to save snapshot: %v", err)
	}
	fmt.Println("\nSnapshot saved")
}
