// Command import_books bulk-loads a catalog from a CSV file with the columns
// title,author,isbn,copies_total,year,category. Each row is added
// independently; rows that fail (duplicate ISBN, bad data) are skipped and
// counted, never fatal to the batch.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"library-catalog/library"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <books.csv>\n", os.Args[0])
		os.Exit(2)
	}
	csvPath := os.Args[1]

	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	records, badRows, err := parseBookCSV(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing CSV: %v\n", err)
		os.Exit(1)
	}

	manager, err := library.NewLibraryManager(library.OptionsFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	fmt.Printf("Importing %d records from %s...\n", len(records), csvPath)
	imported, skipped := manager.ImportBooks(context.Background(), records)

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", imported)
	fmt.Printf("Skipped: %d (plus %d unparseable rows)\n", skipped, badRows)

	if imported > 0 {
		books, err := manager.AllBooks(context.Background())
		if err != nil {
			fmt.Printf("Error retrieving books: %v\n", err)
			return
		}
		fmt.Println("\nCatalog:")
		fmt.Printf("%-3s %-40s %-25s %-15s %s\n", "ID", "Title", "Author", "ISBN", "Copies")
		fmt.Println(strings.Repeat("-", 95))
		for _, b := range books {
			fmt.Printf("%-3d %-40s %-25s %-15s %d/%d\n",
				b.ID, truncateString(b.Title, 40), truncateString(b.Author, 25), b.ISBN, b.CopiesAvailable, b.CopiesTotal)
		}
	}
}

// parseBookCSV reads the CSV header and rows, tolerating malformed numeric
// fields: copies default to 1 and the year to the current year, matching the
// loose handling of the bulk-upload this replaces.
func parseBookCSV(r io.Reader) ([]library.BookRecord, int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"title", "author", "isbn"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []library.BookRecord
	badRows := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			badRows++
			continue
		}

		rec := library.BookRecord{
			Title:       field(row, "title"),
			Author:      field(row, "author"),
			ISBN:        field(row, "isbn"),
			CopiesTotal: 1,
			Year:        time.Now().UTC().Year(),
			Category:    field(row, "category"),
		}
		if v, err := strconv.Atoi(field(row, "copies_total")); err == nil && v > 0 {
			rec.CopiesTotal = v
		}
		if v, err := strconv.Atoi(field(row, "year")); err == nil {
			rec.Year = v
		}
		records = append(records, rec)
	}
	return records, badRows, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
