package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/voxbookapp/voxbook-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/voxbook/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	bookCount := 0
	analyzedBooks := 0
	totalChapters := 0
	analyzedChapters := 0
	characterCount := 0
	checkpointCount := 0
	shown := 0

	err = db.View(func(txn *badger.Txn) error {
		// Per-book analyzed-chapter counts, keyed by book ID.
		analyses := map[string]int{}
		countPrefix(txn, "analysis:", func(key string) {
			parts := strings.SplitN(key, ":", 3)
			if len(parts) == 3 {
				analyses[parts[1]]++
				analyzedChapters++
			}
		})
		countPrefix(txn, "character:", func(key string) {
			if !strings.Contains(key, "idx:") {
				characterCount++
			}
		})
		countPrefix(txn, "checkpoint:", func(_ string) {
			checkpointCount++
		})

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("book:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte("book:")); it.ValidForPrefix([]byte("book:")); it.Next() {
			item := it.Item()
			key := string(item.Key())

			// Skip index keys
			if strings.HasPrefix(key, "book:idx:") {
				continue
			}

			err := item.Value(func(val []byte) error {
				var book domain.Book
				if err := json.Unmarshal(val, &book); err != nil {
					return err
				}

				bookCount++
				totalChapters += book.ChapterCount
				done := analyses[book.ID]
				if book.ChapterCount > 0 && done >= book.ChapterCount {
					analyzedBooks++
				}

				if shown < 5 {
					shown++
					fmt.Printf("Book: %s\n", book.Title)
					fmt.Printf("  ID: %s\n", book.ID)
					fmt.Printf("  Author: %s\n", book.DisplayAuthor())
					fmt.Printf("  Format: %s\n", book.SourceFormat)
					fmt.Printf("  Chapters: %d (analyzed: %d)\n", book.ChapterCount, done)
					fmt.Printf("  Characters in text: %d\n", book.CharCount)
					fmt.Println()
				}

				return nil
			})
			if err != nil {
				log.Printf("Error reading book %s: %v", key, err)
			}
		}
		return nil
	})

	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	fmt.Println("=== Summary ===")
	fmt.Printf("Total books: %d\n", bookCount)
	fmt.Printf("Fully analyzed books: %d\n", analyzedBooks)
	fmt.Printf("Total chapters: %d\n", totalChapters)
	fmt.Printf("Analyzed chapters: %d\n", analyzedChapters)
	fmt.Printf("Characters: %d\n", characterCount)
	fmt.Printf("Pending checkpoints: %d\n", checkpointCount)
	if bookCount > 0 {
		fmt.Printf("Average chapters per book: %.1f\n", float64(totalChapters)/float64(bookCount))
	}
}

// countPrefix walks every key under prefix and invokes fn with the key,
// without loading values.
func countPrefix(txn *badger.Txn, prefix string, fn func(key string)) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		fn(string(it.Item().Key()))
	}
}
