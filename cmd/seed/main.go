// Package main provides a tool to seed the database with sample book data.
//
// This creates books with chapters, completed analyses, and characters with
// dialog so search, analysis status, and character endpoints can be exercised
// without running a model.
//
// Usage:
//
//	DB_PATH=~/voxbook/db go run ./cmd/seed
//	DB_PATH=~/voxbook/db go run ./cmd/seed --books 5
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/id"
	"github.com/voxbookapp/voxbook-server/internal/store"
)

var bookCount = flag.Int("books", 3, "Number of sample books to create")

// sampleTitles pair a title with an author for generated books.
var sampleTitles = [][2]string{
	{"The Lighthouse Keeper's Daughter", "Margaret Holloway"},
	{"Shadows Over Brindlewood", "Thomas Ashford"},
	{"A Winter in Carthage", "Elena Voss"},
	{"The Cartographer's Secret", "James Whitfield"},
	{"Letters from the Hollow", "Abigail Thorne"},
}

// sampleCharacters are reused across books with varied traits.
var sampleCharacters = []struct {
	name   string
	traits []string
	gender string
}{
	{"Eleanor", []string{"determined", "observant"}, "female"},
	{"Marcus", []string{"gruff", "loyal"}, "male"},
	{"The Stranger", []string{"mysterious"}, "male"},
	{"Beatrice", []string{"witty", "sharp-tongued"}, "female"},
}

var sampleLines = []string{
	"We cannot stay here past nightfall.",
	"You knew about this all along, didn't you?",
	"The road north is washed out. We go east or not at all.",
	"I have read that letter a hundred times.",
	"Whatever happens, keep the lamp burning.",
}

func main() {
	flag.Parse()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/voxbook/db")
	}

	fmt.Printf("Opening database at: %s\n", dbPath)

	s, err := store.New(dbPath, nil, store.NewNoopEmitter())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	n := min(*bookCount, len(sampleTitles))
	for i := range n {
		title, author := sampleTitles[i][0], sampleTitles[i][1]

		if existing, _ := s.GetBookByPath(ctx, seedPath(title)); existing != nil {
			fmt.Printf("Book %q already exists, skipping\n", title)
			continue
		}

		if err := seedBook(ctx, s, rng, title, author); err != nil {
			log.Printf("Failed to seed %q: %v", title, err)
			continue
		}
		fmt.Printf("Seeded: %s by %s\n", title, author)
	}

	fmt.Println("\nSeeding complete!")
}

func seedPath(title string) string {
	return "/seed/" + strings.ReplaceAll(strings.ToLower(title), " ", "-") + ".txt"
}

// seedBook creates one book with chapters, a completed analysis per chapter,
// merged characters, and a completed analysis job.
func seedBook(ctx context.Context, s *store.Store, rng *rand.Rand, title, author string) error {
	now := time.Now()
	chapterCount := 4 + rng.Intn(5)

	book := &domain.Book{
		Title:        title,
		Authors:      []string{author},
		Language:     "en",
		SourcePath:   seedPath(title),
		SourceFormat: domain.FormatText,
		ImportedAt:   now,
		ChapterCount: chapterCount,
	}
	book.ID = id.MustGenerate("book")
	book.InitTimestamps()

	chapters := make([]*domain.Chapter, 0, chapterCount)
	totalChars := 0
	for idx := range chapterCount {
		text := sampleChapterText(rng, idx)
		chapter := &domain.Chapter{
			ID:        id.MustGenerate("chap"),
			BookID:    book.ID,
			Index:     idx,
			Title:     fmt.Sprintf("Chapter %d", idx+1),
			Pages:     []string{text},
			CharCount: len(text),
		}
		chapters = append(chapters, chapter)
		totalChars += chapter.CharCount
	}
	book.CharCount = totalChars

	if err := s.CreateBook(ctx, book); err != nil {
		return err
	}
	for _, ch := range chapters {
		if err := s.CreateChapter(ctx, ch); err != nil {
			return err
		}
	}

	// A completed analysis per chapter, each naming 2-3 characters.
	for _, ch := range chapters {
		analyzed := make([]domain.AnalyzedCharacter, 0, 3)
		for _, sc := range sampleCharacters[:2+rng.Intn(2)] {
			analyzed = append(analyzed, domain.AnalyzedCharacter{
				Name:    sc.name,
				Traits:  sc.traits,
				Dialogs: []string{sampleLines[rng.Intn(len(sampleLines))]},
			})
		}
		analysis := &domain.ChapterAnalysis{
			ID:             id.MustGenerate("anl"),
			BookID:         book.ID,
			ChapterID:      ch.ID,
			ChapterIndex:   ch.Index,
			Characters:     analyzed,
			ParagraphCount: 8 + rng.Intn(20),
			BatchCount:     1 + rng.Intn(3),
			DialogCount:    len(analyzed),
			ModelName:      "seed-tool",
			CreatedAt:      now,
		}
		if err := s.SaveChapterAnalysis(ctx, analysis); err != nil {
			return err
		}
	}

	// Book-level characters merged across chapters.
	for _, sc := range sampleCharacters {
		dialogs := make([]domain.DialogLine, 0, chapterCount)
		chapterIDs := make([]string, 0, chapterCount)
		for _, ch := range chapters {
			dialogs = append(dialogs, domain.DialogLine{
				ChapterIndex: ch.Index,
				Text:         sampleLines[rng.Intn(len(sampleLines))],
			})
			chapterIDs = append(chapterIDs, ch.ID)
		}

		c := &domain.Character{
			BookID:        book.ID,
			Name:          sc.name,
			CanonicalName: strings.ToLower(sc.name),
			Traits:        sc.traits,
			Dialogs:       dialogs,
			ChapterIDs:    chapterIDs,
			Voice: &domain.VoiceProfile{
				Gender: sc.gender,
				Age:    "adult",
				Pitch:  1.0,
				Speed:  1.0,
			},
		}
		c.ID = id.MustGenerate("char")
		c.InitTimestamps()
		if err := s.CreateCharacter(ctx, c); err != nil {
			return err
		}
	}

	// A completed job so the analysis status endpoint has history.
	started := now.Add(-time.Duration(5+rng.Intn(30)) * time.Minute)
	job := &domain.AnalysisJob{
		BookID:        book.ID,
		Status:        domain.AnalysisStatusCompleted,
		ChaptersTotal: chapterCount,
		ChaptersDone:  chapterCount,
		Progress:      100,
		StartedAt:     &started,
		CompletedAt:   &now,
	}
	job.ID = id.MustGenerate("job")
	job.InitTimestamps()
	return s.CreateJob(ctx, job)
}

// sampleChapterText builds a few paragraphs of narration with quoted dialog,
// enough for the segmenter and search index to have something real to chew on.
func sampleChapterText(rng *rand.Rand, index int) string {
	var b strings.Builder
	paragraphs := 6 + rng.Intn(6)
	for p := range paragraphs {
		fmt.Fprintf(&b, "The morning of the %dth day broke cold over the valley. ", index*paragraphs+p+1)
		b.WriteString("Eleanor pulled her coat tighter and studied the horizon, counting the lights along the far ridge. ")
		if p%2 == 0 {
			line := sampleLines[rng.Intn(len(sampleLines))]
			fmt.Fprintf(&b, "%q said Marcus, without looking up.", line)
		} else {
			b.WriteString("Nobody spoke for a long while.")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}
