package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mcpdir/mcpdir/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// which also makes ApplyDecision races resolve to a single winner.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const listingColumns = `id, name, category, short_description, long_description, requirements, version, maintainer, license, tags, links, status, submitted_by, submitted_at, rating, review_count, analysis, decided_by, decided_at, rejection_reason, moderator_notes, created_at, updated_at`

func (s *SQLiteStore) CreateListing(ctx context.Context, l *models.Listing) error {
	if l.ID == "" {
		l.ID = newULID()
	}
	now := time.Now().UTC()
	l.Status = models.StatusPending
	l.SubmittedAt = now
	l.CreatedAt = now
	l.UpdatedAt = now
	l.Decision = nil

	tagsJSON, err := json.Marshal(l.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	linksJSON, err := json.Marshal(l.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	var analysisJSON any
	if l.Analysis != nil {
		data, err := json.Marshal(l.Analysis)
		if err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
		analysisJSON = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO listings (id, name, category, short_description, long_description, requirements, version, maintainer, license, tags, links, status, submitted_by, submitted_at, rating, review_count, analysis, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Name, string(l.Category), l.ShortDescription, l.LongDescription, l.Requirements,
		l.Version, l.Maintainer, l.License, string(tagsJSON), string(linksJSON),
		string(l.Status), l.SubmittedBy, l.SubmittedAt, l.Rating, l.ReviewCount,
		analysisJSON, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create listing: %w", err)
	}

	if err := appendRevision(ctx, tx, l.ID, l.Status, l.SubmittedBy, "submitted"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) ListListings(ctx context.Context, statuses []models.ListingStatus) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	var args []any

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	// rowid preserves insertion order; callers reorder as needed
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) ApplyDecision(ctx context.Context, id string, in DecisionInput) (*models.Listing, error) {
	if !in.Approve && strings.TrimSpace(in.RejectionReason) == "" {
		return nil, models.NewValidationError("rejectionReason", "a rejection requires a reason")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM listings WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("read listing status: %w", err)
	}
	if models.ListingStatus(current) != models.StatusPending {
		return nil, &models.InvalidTransitionError{ID: id, From: models.ListingStatus(current)}
	}

	target := models.StatusApproved
	var reason any
	if !in.Approve {
		target = models.StatusRejected
		reason = in.RejectionReason
	}
	var notes any
	if in.ModeratorNotes != "" {
		notes = in.ModeratorNotes
	}
	now := time.Now().UTC()

	// The status guard makes the update the single point of truth: a racing
	// decision that lost sees zero rows and observes InvalidTransition.
	res, err := tx.ExecContext(ctx,
		`UPDATE listings SET status=?, decided_by=?, decided_at=?, rejection_reason=?, moderator_notes=?, updated_at=?
		WHERE id=? AND status='pending'`,
		string(target), in.DecidedBy, now, reason, notes, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("apply decision: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, &models.InvalidTransitionError{ID: id, From: models.ListingStatus(current)}
	}

	note := in.RejectionReason
	if in.Approve {
		note = ""
	}
	if err := appendRevision(ctx, tx, id, target, in.DecidedBy, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetListing(ctx, id)
}

func (s *SQLiteStore) SetCatalogMetadata(ctx context.Context, id string, rating float64, reviewCount int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE listings SET rating=?, review_count=?, updated_at=? WHERE id=?",
		rating, reviewCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set catalog metadata: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &models.NotFoundError{ID: id}
	}
	return nil
}

func (s *SQLiteStore) ListRevisions(ctx context.Context, listingID string) ([]*models.Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, listing_id, status, actor, note, created_at
		FROM listing_revisions WHERE listing_id = ? ORDER BY rowid`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var revisions []*models.Revision
	for rows.Next() {
		r := &models.Revision{}
		var status string
		if err := rows.Scan(&r.ID, &r.ListingID, &status, &r.Actor, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		r.Status = models.ListingStatus(status)
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

// appendRevision writes one audit entry inside the caller's transaction.
func appendRevision(ctx context.Context, tx *sql.Tx, listingID string, status models.ListingStatus, actor, note string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO listing_revisions (id, listing_id, status, actor, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		newULID(), listingID, string(status), actor, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append revision: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	l := &models.Listing{}
	var category, status, tagsJSON, linksJSON string
	var analysisJSON, decidedBy, rejectionReason, moderatorNotes sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(&l.ID, &l.Name, &category, &l.ShortDescription, &l.LongDescription,
		&l.Requirements, &l.Version, &l.Maintainer, &l.License, &tagsJSON, &linksJSON,
		&status, &l.SubmittedBy, &l.SubmittedAt, &l.Rating, &l.ReviewCount,
		&analysisJSON, &decidedBy, &decidedAt, &rejectionReason, &moderatorNotes,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	l.Category = models.Category(category)
	l.Status = models.ListingStatus(status)
	if err := json.Unmarshal([]byte(tagsJSON), &l.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(linksJSON), &l.Links); err != nil {
		return nil, fmt.Errorf("unmarshal links: %w", err)
	}
	if analysisJSON.Valid {
		report := &models.AnalysisReport{}
		if err := json.Unmarshal([]byte(analysisJSON.String), report); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
		l.Analysis = report
	}
	if decidedBy.Valid {
		l.Decision = &models.Decision{
			DecidedBy:       decidedBy.String,
			DecidedAt:       decidedAt.Time,
			RejectionReason: rejectionReason.String,
			ModeratorNotes:  moderatorNotes.String,
		}
	}
	return l, nil
}
