package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newManager(t *testing.T) *LibraryManager {
	t.Helper()
	opt := DefaultOptions()
	opt.DBPath = filepath.Join(t.TempDir(), "lib.db")
	mgr, err := NewLibraryManager(opt)
	if err != nil {
		t.Fatalf("mgr: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestImportBooksSkipsFailures(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	records := []BookRecord{
		{Title: "A", Author: "X", ISBN: "111", CopiesTotal: 1, Year: 2020, Category: "Fiction"},
		{Title: "B", Author: "Y", ISBN: "222", CopiesTotal: 2, Year: 2021, Category: "Fiction"},
		{Title: "A again", Author: "X", ISBN: "111", CopiesTotal: 1, Year: 2020, Category: "Fiction"}, // duplicate ISBN
	}
	imported, skipped := mgr.ImportBooks(ctx, records)
	if imported != 2 || skipped != 1 {
		t.Fatalf("imported=%d skipped=%d, want 2/1", imported, skipped)
	}

	books, err := mgr.AllBooks(ctx)
	if err != nil {
		t.Fatalf("all books: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("want 2 books after import, got %d", len(books))
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	if err := mgr.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := mgr.Seed(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	stats, err := mgr.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 1 || stats.Books != 3 {
		t.Fatalf("seeded state users=%d books=%d, want 1/3", stats.Users, stats.Books)
	}

	admin, err := mgr.Authenticate(ctx, "admin@example.com", "admin123")
	if err != nil {
		t.Fatalf("authenticate admin: %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Fatalf("admin role = %s", admin.Role)
	}

	// Seeding does not create a second admin once users exist.
	if _, err := mgr.RegisterUser(ctx, "Bob", "bob@example.com", "pw", RolePatron); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.Seed(ctx); err != nil {
		t.Fatalf("third seed: %v", err)
	}
	stats, _ = mgr.Stats(ctx)
	if stats.Users != 2 {
		t.Fatalf("users = %d, want 2", stats.Users)
	}
}

func TestRequireRole(t *testing.T) {
	patron := &User{Role: RolePatron}
	librarian := &User{Role: RoleLibrarian}
	admin := &User{Role: RoleAdmin}

	if err := RequireRole(patron, RoleLibrarian, RoleAdmin); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("patron should be denied, got %v", err)
	}
	if err := RequireRole(librarian, RoleLibrarian, RoleAdmin); err != nil {
		t.Fatalf("librarian denied: %v", err)
	}
	if err := RequireRole(admin, RoleLibrarian, RoleAdmin); err != nil {
		t.Fatalf("admin denied: %v", err)
	}
	if err := RequireRole(nil, RoleLibrarian); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("nil user should be denied, got %v", err)
	}
}

func TestManagerIssueReturnFlow(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	userID, err := mgr.RegisterUser(ctx, "Carol", "carol@example.com", "pw", RolePatron)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	bookID, err := mgr.AddBook(ctx, "The Go Programming Language", "Donovan & Kernighan", "9780134190440", 1, 2015, "Programming")
	if err != nil {
		t.Fatalf("add book: %v", err)
	}

	loan, err := mgr.IssueBook(ctx, userID, bookID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	loans, err := mgr.LoansForUser(ctx, userID)
	if err != nil {
		t.Fatalf("loans: %v", err)
	}
	if len(loans) != 1 || loans[0].Title != "The Go Programming Language" {
		t.Fatalf("unexpected loan listing: %+v", loans)
	}

	returned, err := mgr.ReturnBook(ctx, loan.ID)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if returned.Fine != 0.0 {
		t.Fatalf("on-time return fined: %v", returned.Fine)
	}

	book, err := mgr.GetBook(ctx, bookID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if book.CopiesAvailable != book.CopiesTotal {
		t.Fatalf("availability not restored: %d/%d", book.CopiesAvailable, book.CopiesTotal)
	}
}
