package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"library-catalog/library"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:           "library-catalog",
		Short:         "Library catalog management: books, users, loans and fines",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the SQLite database (overrides LIBRARY_DB)")

	root.AddCommand(
		registerCmd(),
		addBookCmd(),
		updateBookCmd(),
		deleteBookCmd(),
		issueCmd(),
		returnCmd(),
		loansCmd(),
		searchCmd(),
		statsCmd(),
		seedCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withManager opens the catalog, runs fn, and closes it again. Every command
// goes through here so configuration is resolved in exactly one place.
func withManager(fn func(ctx context.Context, mgr *library.LibraryManager) error) error {
	opt := library.OptionsFromEnv()
	if dbPath != "" {
		opt.DBPath = dbPath
	}
	mgr, err := library.NewLibraryManager(opt)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer mgr.Close()
	return fn(context.Background(), mgr)
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // newline after masked input
	return strings.TrimSpace(string(bytePassword)), nil
}

func readLine(prompt string) (string, error) {
	fmt.Print(prompt)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return "", fmt.Errorf("no input")
	}
	return strings.TrimSpace(sc.Text()), nil
}

// login prompts for credentials and returns the authenticated user. Commands
// pass the result into the operations they run; there is no ambient session.
func login(ctx context.Context, mgr *library.LibraryManager) (*library.User, error) {
	email, err := readLine("Email: ")
	if err != nil {
		return nil, err
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return mgr.Authenticate(ctx, email, password)
}

func registerCmd() *cobra.Command {
	var name, email, role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				r := library.Role(role)
				if r != library.RolePatron && r != library.RoleLibrarian {
					return fmt.Errorf("role must be %q or %q", library.RolePatron, library.RoleLibrarian)
				}
				password, err := readPassword(fmt.Sprintf("Password for %s: ", email))
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				if password == "" {
					return fmt.Errorf("password cannot be empty")
				}
				id, err := mgr.RegisterUser(ctx, name, email, password, r)
				if err != nil {
					return fmt.Errorf("register: %w", err)
				}
				fmt.Printf("Registered %s (ID %d). You can now log in.\n", email, id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address (unique, case-insensitive)")
	cmd.Flags().StringVar(&role, "role", string(library.RolePatron), "account role: patron or librarian")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	return cmd
}

// requireLibrarian authenticates the caller and checks the book-management gate.
func requireLibrarian(ctx context.Context, mgr *library.LibraryManager) (*library.User, error) {
	user, err := login(ctx, mgr)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if err := library.RequireRole(user, library.RoleLibrarian, library.RoleAdmin); err != nil {
		return nil, err
	}
	return user, nil
}

func addBookCmd() *cobra.Command {
	var title, author, isbn, category string
	var copies, year int
	cmd := &cobra.Command{
		Use:   "add-book",
		Short: "Add a book to the catalog (librarian)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				if _, err := requireLibrarian(ctx, mgr); err != nil {
					return err
				}
				id, err := mgr.AddBook(ctx, title, author, isbn, copies, year, category)
				if err != nil {
					return fmt.Errorf("add book: %w", err)
				}
				fmt.Printf("Added book ID %d: %s by %s (%d copies)\n", id, title, author, copies)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "book title")
	cmd.Flags().StringVar(&author, "author", "", "book author")
	cmd.Flags().StringVar(&isbn, "isbn", "", "ISBN (unique)")
	cmd.Flags().IntVar(&copies, "copies", 1, "total copies")
	cmd.Flags().IntVar(&year, "year", 0, "publication year")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("author")
	cmd.MarkFlagRequired("isbn")
	return cmd
}

func updateBookCmd() *cobra.Command {
	var id int64
	var title, author, isbn, category string
	var copies, year int
	cmd := &cobra.Command{
		Use:   "update-book",
		Short: "Edit a book's metadata and total copy count (librarian)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				if _, err := requireLibrarian(ctx, mgr); err != nil {
					return err
				}
				if err := mgr.UpdateBook(ctx, id, title, author, isbn, copies, year, category); err != nil {
					return fmt.Errorf("update book: %w", err)
				}
				book, err := mgr.GetBook(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("Updated book ID %d: %d total, %d available\n", book.ID, book.CopiesTotal, book.CopiesAvailable)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "book ID")
	cmd.Flags().StringVar(&title, "title", "", "book title")
	cmd.Flags().StringVar(&author, "author", "", "book author")
	cmd.Flags().StringVar(&isbn, "isbn", "", "ISBN (unique)")
	cmd.Flags().IntVar(&copies, "copies", 1, "new total copies")
	cmd.Flags().IntVar(&year, "year", 0, "publication year")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("author")
	cmd.MarkFlagRequired("isbn")
	return cmd
}

func deleteBookCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete-book",
		Short: "Delete a book from the catalog (librarian)",
		Long: `Delete a book from the catalog. Open loans on the book are not checked;
their records remain but no longer appear in loan listings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				if _, err := requireLibrarian(ctx, mgr); err != nil {
					return err
				}
				if err := mgr.DeleteBook(ctx, id); err != nil {
					return fmt.Errorf("delete book: %w", err)
				}
				fmt.Printf("Deleted book ID %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "book ID")
	cmd.MarkFlagRequired("id")
	return cmd
}

func issueCmd() *cobra.Command {
	var bookID int64
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Borrow a book (issues a copy to the logged-in user)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				user, err := login(ctx, mgr)
				if err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
				loan, err := mgr.IssueBook(ctx, user.ID, bookID)
				if err != nil {
					return fmt.Errorf("issue book: %w", err)
				}
				book, err := mgr.GetBook(ctx, bookID)
				if err != nil {
					return err
				}
				fmt.Printf("Issued '%s' to %s. Loan ID %d, due %s.\n",
					book.Title, user.Name, loan.ID, loan.DueDate.Format("2006-01-02"))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&bookID, "book", 0, "book ID")
	cmd.MarkFlagRequired("book")
	return cmd
}

func returnCmd() *cobra.Command {
	var loanID int64
	cmd := &cobra.Command{
		Use:   "return",
		Short: "Return a borrowed book and settle the fine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				if _, err := login(ctx, mgr); err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
				loan, err := mgr.ReturnBook(ctx, loanID)
				if err != nil {
					return fmt.Errorf("return book: %w", err)
				}
				fmt.Printf("Book returned. Fine: $%.2f\n", loan.Fine)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&loanID, "loan", 0, "loan ID")
	cmd.MarkFlagRequired("loan")
	return cmd
}

func loansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List your loans, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				user, err := login(ctx, mgr)
				if err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
				loans, err := mgr.LoansForUser(ctx, user.ID)
				if err != nil {
					return err
				}
				if len(loans) == 0 {
					fmt.Println("No loans found.")
					return nil
				}
				fmt.Printf("%-5s %-30s %-20s %-12s %-12s %-10s %s\n",
					"ID", "Title", "Author", "Issued", "Due", "Status", "Fine")
				fmt.Println(strings.Repeat("-", 100))
				for _, ln := range loans {
					fmt.Printf("%-5d %-30s %-20s %-12s %-12s %-10s $%.2f\n",
						ln.ID,
						truncateString(ln.Title, 30),
						truncateString(ln.Author, 20),
						ln.IssueDate.Format("2006-01-02"),
						ln.DueDate.Format("2006-01-02"),
						ln.Status,
						ln.Fine)
				}
				return nil
			})
		},
	}
	return cmd
}

func searchCmd() *cobra.Command {
	var query, category string
	var onlyAvailable bool
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the catalog by title, author, ISBN or category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				books, err := mgr.SearchBooks(ctx, query, category, onlyAvailable)
				if err != nil {
					return err
				}
				if len(books) == 0 {
					fmt.Println("No books found.")
					return nil
				}
				fmt.Printf("Found %d book(s):\n", len(books))
				fmt.Printf("%-5s %-30s %-25s %-15s %-6s %-15s %s\n",
					"ID", "Title", "Author", "ISBN", "Year", "Category", "Available")
				fmt.Println(strings.Repeat("-", 110))
				for _, b := range books {
					fmt.Printf("%-5d %-30s %-25s %-15s %-6d %-15s %d/%d\n",
						b.ID,
						truncateString(b.Title, 30),
						truncateString(b.Author, 25),
						b.ISBN,
						b.Year,
						truncateString(b.Category, 15),
						b.CopiesAvailable,
						b.CopiesTotal)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "substring of title, author or ISBN")
	cmd.Flags().StringVarP(&category, "category", "c", "", "exact category")
	cmd.Flags().BoolVar(&onlyAvailable, "available", false, "only books with copies available")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog overview counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				stats, err := mgr.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Books:        %d\n", stats.Books)
				fmt.Printf("Users:        %d\n", stats.Users)
				fmt.Printf("Books issued: %d\n", stats.OpenLoans)
				return nil
			})
		},
	}
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default admin account and sample books",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, mgr *library.LibraryManager) error {
				if err := mgr.Seed(ctx); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
				fmt.Println("Database seeded with admin account and sample books.")
				return nil
			})
		},
	}
	return cmd
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
