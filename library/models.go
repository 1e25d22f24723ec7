package library

import "time"

// Role controls which catalog operations a user may perform.
type Role string

const (
	RolePatron    Role = "patron"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// LoanStatus tracks the lifecycle of a loan. Returned is terminal.
type LoanStatus string

const (
	LoanIssued   LoanStatus = "issued"
	LoanReturned LoanStatus = "returned"
)

// User represents a registered account. Emails are stored lowercased and are
// unique; the password hash is never serialized.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Book represents one catalog entry. CopiesAvailable counts the copies not
// currently on loan and never exceeds CopiesTotal in normal operation.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	CopiesTotal     int       `json:"copies_total"`
	CopiesAvailable int       `json:"copies_available"`
	Year            int       `json:"year"`
	Category        string    `json:"category"`
	CreatedAt       time.Time `json:"created_at"`
}

// Loan records one copy of a book borrowed by a user. The fine is computed
// once at return time and frozen.
type Loan struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	BookID     int64      `json:"book_id"`
	IssueDate  time.Time  `json:"issue_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Fine       float64    `json:"fine"`
	Status     LoanStatus `json:"status"`
}

// LoanDetail is a loan joined with the title and author of its book, for listings.
type LoanDetail struct {
	Loan
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Stats holds the dashboard counters.
type Stats struct {
	Books     int `json:"books"`
	Users     int `json:"users"`
	OpenLoans int `json:"open_loans"`
}
