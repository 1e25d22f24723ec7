package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// Database provides transactional access to the catalog's SQLite store.
type Database struct {
	db  *sql.DB
	opt Options

	// now is the clock used for issue dates, due dates and fines.
	// Tests override it to pin time.
	now func() time.Time

	addBookStmt *sql.Stmt
	addUserStmt *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at opt.DBPath, applies
// schema migrations, and prepares common statements.
func NewDatabase(opt Options) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(opt.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// busy_timeout covers lock contention; _txlock=immediate makes every
	// transaction take the write lock up front, so check-then-write sequences
	// inside a transaction are race-free under concurrent callers.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", opt.DBPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{
		db:  db,
		opt: opt,
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.addBookStmt != nil {
		d.addBookStmt.Close()
	}
	if d.addUserStmt != nil {
		d.addUserStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'patron',
            created_at DATETIME NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            isbn TEXT NOT NULL UNIQUE,
            copies_total INTEGER NOT NULL DEFAULT 1,
            copies_available INTEGER NOT NULL DEFAULT 1,
            year INTEGER,
            category TEXT,
            created_at DATETIME NOT NULL
        );`,
		// Foreign keys are declared but enforcement stays off: deleting a book
		// with open loans is allowed and leaves the loan rows in place.
		`CREATE TABLE IF NOT EXISTS loans (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id),
            book_id INTEGER NOT NULL REFERENCES books(id),
            issue_date DATETIME NOT NULL,
            due_date DATETIME NOT NULL,
            return_date DATETIME,
            fine REAL NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'issued'
        );`,
		`CREATE INDEX IF NOT EXISTS idx_loans_user ON loans(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_loans_book_status ON loans(book_id, status);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addBookStmt, err = d.db.Prepare(
		`INSERT INTO books(title,author,isbn,copies_total,copies_available,year,category,created_at) VALUES(?,?,?,?,?,?,?,?)`); err != nil {
		return err
	}
	if d.addUserStmt, err = d.db.Prepare(
		`INSERT INTO users(name,email,password_hash,role,created_at) VALUES(?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// translateConstraint maps SQLite unique-constraint violations to
// ErrDuplicateKey so store-specific error types never reach callers.
func translateConstraint(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateKey
	}
	return err
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// RegisterUser creates a new account. The email is lowercased before storage
// so uniqueness is case-insensitive; the password is stored as a bcrypt hash.
func (d *Database) RegisterUser(ctx context.Context, name, email, password string, role Role) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	res, err := d.addUserStmt.ExecContext(ctx, name, strings.ToLower(email), string(hash), string(role), d.now())
	if err != nil {
		return 0, translateConstraint(err)
	}
	return res.LastInsertId()
}

// Authenticate verifies the credentials and returns the matching user.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (d *Database) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var u User
	var role string
	err := d.db.QueryRowContext(ctx,
		`SELECT id,name,email,password_hash,role,created_at FROM users WHERE email=?`,
		strings.ToLower(email)).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	u.Role = Role(role)
	return &u, nil
}

// GetUser fetches a single user.
func (d *Database) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	var role string
	err := d.db.QueryRowContext(ctx,
		`SELECT id,name,email,role,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

// AddBook creates a book with all copies available. A colliding ISBN yields
// ErrDuplicateKey.
func (d *Database) AddBook(ctx context.Context, title, author, isbn string, copies, year int, category string) (int64, error) {
	res, err := d.addBookStmt.ExecContext(ctx, title, author, isbn, copies, copies, year, category, d.now())
	if err != nil {
		return 0, translateConstraint(err)
	}
	return res.LastInsertId()
}

// GetBook fetches a single book.
func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := d.db.QueryRowContext(ctx,
		`SELECT id,title,author,isbn,copies_total,copies_available,year,category,created_at FROM books WHERE id=?`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.CopiesTotal, &b.CopiesAvailable, &b.Year, &b.Category, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBook rewrites the book's metadata and re-derives availability from the
// change in total copies: available = max(0, available + (newTotal - oldTotal)).
// The clamp at zero can mask over-subscription; with StrictCopyEdit set, edits
// that would cut the total below the number of open loans are rejected instead.
func (d *Database) UpdateBook(ctx context.Context, id int64, title, author, isbn string, newTotal, year int, category string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldTotal, available int
	err = tx.QueryRowContext(ctx, `SELECT copies_total, copies_available FROM books WHERE id=?`, id).
		Scan(&oldTotal, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if d.opt.StrictCopyEdit {
		var issued int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM loans WHERE book_id=? AND status=?`, id, string(LoanIssued)).Scan(&issued); err != nil {
			return err
		}
		if newTotal < issued {
			return fmt.Errorf("%w: %d copies on loan, cannot reduce total to %d", ErrInvalidState, issued, newTotal)
		}
	}

	newAvailable := available + (newTotal - oldTotal)
	if newAvailable < 0 {
		newAvailable = 0
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET title=?, author=?, isbn=?, copies_total=?, copies_available=?, year=?, category=? WHERE id=?`,
		title, author, isbn, newTotal, newAvailable, year, category, id); err != nil {
		return translateConstraint(err)
	}
	return tx.Commit()
}

// DeleteBook removes a book unconditionally. Open loans are not checked: their
// rows keep the old book_id and simply drop out of joined listings.
func (d *Database) DeleteBook(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchBooks filters the catalog. A non-empty query matches substrings of
// title, author or ISBN (case-insensitive); a non-empty category must match
// exactly; onlyAvailable keeps books with copies_available > 0. Empty filters
// match everything. Results come back in store-native order.
func (d *Database) SearchBooks(ctx context.Context, query, category string, onlyAvailable bool) ([]*Book, error) {
	q := `SELECT id,title,author,isbn,copies_total,copies_available,year,category,created_at FROM books WHERE 1=1`
	var args []any
	if query != "" {
		q += ` AND (title LIKE ? OR author LIKE ? OR isbn LIKE ?)`
		like := "%" + query + "%"
		args = append(args, like, like, like)
	}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	if onlyAvailable {
		q += ` AND copies_available > 0`
	}

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.CopiesTotal, &b.CopiesAvailable, &b.Year, &b.Category, &b.CreatedAt); err != nil {
			return nil, err
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}

// ---------------------------------------------------------------------------
// Loans
// ---------------------------------------------------------------------------

// IssueBook lends one copy of a book to a user: it records the loan and
// decrements availability in one transaction. A missing book or one with no
// free copies yields ErrUnavailable and leaves no state behind.
func (d *Database) IssueBook(ctx context.Context, userID, bookID int64) (*Loan, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var available int
	err = tx.QueryRowContext(ctx, `SELECT copies_available FROM books WHERE id=?`, bookID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}
	if available <= 0 {
		return nil, ErrUnavailable
	}

	issueDate := d.now()
	dueDate := issueDate.Add(time.Duration(d.opt.LoanDays) * 24 * time.Hour)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO loans(user_id,book_id,issue_date,due_date,status) VALUES(?,?,?,?,?)`,
		userID, bookID, issueDate, dueDate, string(LoanIssued))
	if err != nil {
		return nil, err
	}
	loanID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET copies_available = copies_available - 1 WHERE id=?`, bookID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Loan{
		ID:        loanID,
		UserID:    userID,
		BookID:    bookID,
		IssueDate: issueDate,
		DueDate:   dueDate,
		Status:    LoanIssued,
	}, nil
}

// ReturnBook closes a loan: it stamps the return date, computes the fine,
// flips the status and releases the copy, all in one transaction. The fine is
// FinePerDay per whole day past the due date, zero for on-time and early
// returns, and is frozen once written. Returning a loan that is not issued
// yields ErrInvalidState; an unknown loan id yields ErrNotFound.
func (d *Database) ReturnBook(ctx context.Context, loanID int64) (*Loan, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var loan Loan
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT id,user_id,book_id,issue_date,due_date,status FROM loans WHERE id=?`, loanID).
		Scan(&loan.ID, &loan.UserID, &loan.BookID, &loan.IssueDate, &loan.DueDate, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if LoanStatus(status) != LoanIssued {
		return nil, ErrInvalidState
	}

	now := d.now()
	daysLate := int(now.Sub(loan.DueDate).Hours() / 24)
	fine := 0.0
	if daysLate > 0 {
		fine = float64(daysLate) * d.opt.FinePerDay
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE loans SET return_date=?, fine=?, status=? WHERE id=?`,
		now, fine, string(LoanReturned), loanID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET copies_available = copies_available + 1 WHERE id=?`, loan.BookID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	loan.ReturnDate = &now
	loan.Fine = fine
	loan.Status = LoanReturned
	return &loan, nil
}

// LoansForUser lists all loans of a user joined with book title and author,
// most recent first. Loans on deleted books drop out of the join.
func (d *Database) LoansForUser(ctx context.Context, userID int64) ([]LoanDetail, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT l.id, l.user_id, l.book_id, l.issue_date, l.due_date, l.return_date, l.fine, l.status, b.title, b.author
        FROM loans l
        JOIN books b ON b.id = l.book_id
        WHERE l.user_id = ?
        ORDER BY l.issue_date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []LoanDetail
	for rows.Next() {
		var ld LoanDetail
		var status string
		var returned sql.NullTime
		if err := rows.Scan(&ld.ID, &ld.UserID, &ld.BookID, &ld.IssueDate, &ld.DueDate, &returned, &ld.Fine, &status, &ld.Title, &ld.Author); err != nil {
			return nil, err
		}
		if returned.Valid {
			t := returned.Time
			ld.ReturnDate = &t
		}
		ld.Status = LoanStatus(status)
		loans = append(loans, ld)
	}
	return loans, rows.Err()
}

// GetLoan fetches a single loan.
func (d *Database) GetLoan(ctx context.Context, id int64) (*Loan, error) {
	var loan Loan
	var status string
	var returned sql.NullTime
	err := d.db.QueryRowContext(ctx,
		`SELECT id,user_id,book_id,issue_date,due_date,return_date,fine,status FROM loans WHERE id=?`, id).
		Scan(&loan.ID, &loan.UserID, &loan.BookID, &loan.IssueDate, &loan.DueDate, &returned, &loan.Fine, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if returned.Valid {
		t := returned.Time
		loan.ReturnDate = &t
	}
	loan.Status = LoanStatus(status)
	return &loan, nil
}

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

// Stats returns the dashboard counters.
func (d *Database) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&s.Books); err != nil {
		return s, err
	}
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&s.Users); err != nil {
		return s, err
	}
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE status=?`, string(LoanIssued)).Scan(&s.OpenLoans); err != nil {
		return s, err
	}
	return s, nil
}
