package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dshills/gorecall-mcp/internal/embedder"
)

func main() {
	fmt.Println("Checking embedding configuration...")

	emb, err := embedder.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer emb.Close()

	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Provider: %s\n", emb.Provider())
	fmt.Printf("  Model: %s\n", emb.Model())
	fmt.Printf("  Dimension: %d\n", emb.Dimension())
	fmt.Printf("  Batch Size: %d\n", emb.BatchSize())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Health probe
	fmt.Printf("\nHealth check: ")
	if err := emb.Ping(ctx); err != nil {
		fmt.Println("FAILED")
		log.Fatalf("Service unreachable: %v", err)
	}
	fmt.Println("ok")

	// Single embedding
	start := time.Now()
	single, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
		Text: "the quick brown fox jumps over the lazy dog",
	})
	if err != nil {
		log.Fatalf("Single embedding failed: %v", err)
	}
	fmt.Printf("\nSingle embedding:\n")
	fmt.Printf("  Dimension: %d\n", len(single.Vector))
	fmt.Printf("  Latency: %v\n", time.Since(start))

	if len(single.Vector) != emb.Dimension() {
		fmt.Printf("\n✗ FAILURE: embedding has dimension %d, configuration says %d\n",
			len(single.Vector), emb.Dimension())
		os.Exit(1)
	}

	// Batch embedding
	texts := []string{
		"semantic memory stores durable fragments",
		"tiered caching promotes hot entries",
		"cosine similarity ranks recall candidates",
	}
	start = time.Now()
	batch, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		log.Fatalf("Batch embedding failed: %v", err)
	}
	fmt.Printf("\nBatch embedding:\n")
	fmt.Printf("  Texts: %d\n", len(texts))
	fmt.Printf("  Embeddings: %d\n", len(batch.Embeddings))
	fmt.Printf("  Latency: %v\n", time.Since(start))

	for i, e := range batch.Embeddings {
		if len(e.Vector) != emb.Dimension() {
			fmt.Printf("\n✗ FAILURE: embedding %d has dimension %d, want %d\n",
				i, len(e.Vector), emb.Dimension())
			os.Exit(1)
		}
	}

	fmt.Println("\n✓ SUCCESS: embedding service is ready!")
}
