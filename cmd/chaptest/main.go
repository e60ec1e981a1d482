package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/voxbookapp/voxbook-server/internal/ingest"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: chaptest <book_file>")
	}

	path := os.Args[1]
	fmt.Printf("Testing: %s\n\n", path)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	parser := ingest.NewParser(logger)
	book, err := parser.Parse(path)
	if err != nil {
		log.Fatalf("Failed to parse file: %v", err)
	}

	fmt.Printf("Format: %s\n", book.Format)
	fmt.Printf("Title: %s\n", book.Title)
	fmt.Printf("Authors: %v\n", book.Authors)
	fmt.Printf("Language: %s\n", book.Language)
	fmt.Printf("Characters: %d\n", book.CharCount())
	fmt.Println()

	fmt.Printf("Chapters: %d\n", len(book.Chapters))
	for i, ch := range book.Chapters {
		if i < 10 { // Show first 10 chapters
			chars := 0
			for _, page := range ch.Pages {
				chars += len(page)
			}
			fmt.Printf("  [%d] %s (%d pages, %d chars)\n",
				i, ch.Title, len(ch.Pages), chars)
		}
	}
	if len(book.Chapters) > 10 {
		fmt.Printf("  ... and %d more chapters\n", len(book.Chapters)-10)
	}
}
