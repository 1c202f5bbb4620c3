// Command test-pipeline runs the conversation pipeline over JSON files on
// disk and prints the resulting blocks, so source payloads can be checked
// without credentials or a storage account.
//
// Usage:
//
//	test-pipeline forum=thread.json facebook=scrape.json whatsapp=events.json
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/supportlens/conversations-bot/internal/pipeline"
	"github.com/supportlens/conversations-bot/internal/sources"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: test-pipeline <kind>=<file.json> [...]")
		os.Exit(1)
	}

	var batches []pipeline.Batch
	for _, arg := range os.Args[1:] {
		kind, path, ok := strings.Cut(arg, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "bad argument %q, want <kind>=<file.json>\n", arg)
			os.Exit(1)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
		batches = append(batches, pipeline.Batch{Kind: sources.Kind(kind), Raw: data})
	}

	blocks, stats, err := pipeline.BuildBlocks(batches, pipeline.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Posts: %d | Blocks: %d | Skipped: %d | Timestamp fallbacks: %d\n",
		stats.Posts, stats.Blocks, stats.Skipped, stats.FallbackTimestamps)
	fmt.Println(strings.Repeat("=", 70))

	for _, block := range blocks {
		fmt.Printf("\n--- %s (%s, %d replies, %s - %s)\n",
			block.BlockID, block.StreamTitle, len(block.Replies),
			block.StartTime.Format("2006-01-02"), block.EndTime.Format("2006-01-02"))
		fmt.Println(block.FlattenedText)
	}

	out, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal blocks: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("blocks.json", out, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write blocks.json: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nWrote %d blocks to blocks.json\n", len(blocks))
}
