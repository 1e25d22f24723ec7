package library

import (
	"context"
	"errors"
)

// LibraryManager is a thin façade over the Database, keeping CLI code simple.
type LibraryManager struct {
	db *Database
}

// NewLibraryManager opens (or creates) the SQLite database described by opt.
func NewLibraryManager(opt Options) (*LibraryManager, error) {
	db, err := NewDatabase(opt)
	if err != nil {
		return nil, err
	}
	return &LibraryManager{db: db}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// ------------------ Account helpers ------------------

func (lm *LibraryManager) RegisterUser(ctx context.Context, name, email, password string, role Role) (int64, error) {
	return lm.db.RegisterUser(ctx, name, email, password, role)
}

func (lm *LibraryManager) Authenticate(ctx context.Context, email, password string) (*User, error) {
	return lm.db.Authenticate(ctx, email, password)
}

func (lm *LibraryManager) GetUser(ctx context.Context, id int64) (*User, error) {
	return lm.db.GetUser(ctx, id)
}

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(ctx context.Context, title, author, isbn string, copies, year int, category string) (int64, error) {
	return lm.db.AddBook(ctx, title, author, isbn, copies, year, category)
}

func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	return lm.db.GetBook(ctx, id)
}

func (lm *LibraryManager) UpdateBook(ctx context.Context, id int64, title, author, isbn string, newTotal, year int, category string) error {
	return lm.db.UpdateBook(ctx, id, title, author, isbn, newTotal, year, category)
}

func (lm *LibraryManager) DeleteBook(ctx context.Context, id int64) error {
	return lm.db.DeleteBook(ctx, id)
}

// ------------------ Search ------------------

func (lm *LibraryManager) SearchBooks(ctx context.Context, query, category string, onlyAvailable bool) ([]*Book, error) {
	return lm.db.SearchBooks(ctx, query, category, onlyAvailable)
}

// AllBooks lists the whole catalog.
func (lm *LibraryManager) AllBooks(ctx context.Context) ([]*Book, error) {
	return lm.db.SearchBooks(ctx, "", "", false)
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) IssueBook(ctx context.Context, userID, bookID int64) (*Loan, error) {
	return lm.db.IssueBook(ctx, userID, bookID)
}

// ReturnBook closes the loan and yields it with the computed fine.
func (lm *LibraryManager) ReturnBook(ctx context.Context, loanID int64) (*Loan, error) {
	return lm.db.ReturnBook(ctx, loanID)
}

func (lm *LibraryManager) LoansForUser(ctx context.Context, userID int64) ([]LoanDetail, error) {
	return lm.db.LoansForUser(ctx, userID)
}

// ------------------ Dashboard ------------------

func (lm *LibraryManager) Stats(ctx context.Context) (Stats, error) {
	return lm.db.Stats(ctx)
}

// ------------------ Bulk import ------------------

// BookRecord is one row of a bulk import.
type BookRecord struct {
	Title       string
	Author      string
	ISBN        string
	CopiesTotal int
	Year        int
	Category    string
}

// ImportBooks adds each record independently. Records that fail (duplicate
// ISBN, constraint violations) are skipped and counted; the batch itself never
// fails on a bad record.
func (lm *LibraryManager) ImportBooks(ctx context.Context, records []BookRecord) (imported, skipped int) {
	for _, r := range records {
		if _, err := lm.db.AddBook(ctx, r.Title, r.Author, r.ISBN, r.CopiesTotal, r.Year, r.Category); err != nil {
			skipped++
			continue
		}
		imported++
	}
	return imported, skipped
}

// ------------------ Seeding ------------------

// Seed bootstraps a fresh database with the default admin account (only when
// no users exist yet) and a handful of sample books. Safe to run repeatedly:
// sample books that already exist are left alone.
func (lm *LibraryManager) Seed(ctx context.Context) error {
	stats, err := lm.db.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.Users == 0 {
		if _, err := lm.db.RegisterUser(ctx, "Admin", "admin@example.com", "admin123", RoleAdmin); err != nil {
			return err
		}
	}

	samples := []BookRecord{
		{Title: "Python Basics", Author: "John Smith", ISBN: "9780134685991", CopiesTotal: 5, Year: 2021, Category: "Programming"},
		{Title: "Data Science Handbook", Author: "Jake VanderPlas", ISBN: "9781491912058", CopiesTotal: 3, Year: 2018, Category: "Data Science"},
		{Title: "Machine Learning Guide", Author: "Andrew Ng", ISBN: "9781789955750", CopiesTotal: 4, Year: 2020, Category: "AI"},
	}
	for _, s := range samples {
		_, err := lm.db.AddBook(ctx, s.Title, s.Author, s.ISBN, s.CopiesTotal, s.Year, s.Category)
		if err != nil && !errors.Is(err, ErrDuplicateKey) {
			return err
		}
	}
	return nil
}
