package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db            *sqlx.DB
	driver        string
	permalinkBase string
	now           func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPermalinkBase sets the URL prefix used to build ticket permalinks.
func WithPermalinkBase(base string) Option {
	return func(s *Store) {
		s.permalinkBase = strings.TrimRight(base, "/")
	}
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new SQL store and applies pending migrations.
func New(driver, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite allows a single writer; ":memory:" databases are also
	// per-connection.
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(db.DB, driver); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, driver: driver, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate runs the embedded goose migrations against db.
func Migrate(db *sql.DB, driver string) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// ============================================
// Tickets
// ============================================

type ticketRow struct {
	ID             string    `db:"id"`
	QueueID        string    `db:"queue_id"`
	Title          string    `db:"title"`
	Body           string    `db:"body"`
	Owner          string    `db:"owner"`
	ExpirationDate string    `db:"expiration_date"`
	GithubHandle   string    `db:"github_handle"`
	Email          string    `db:"email"`
	FullName       string    `db:"full_name"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const ticketColumns = `id, queue_id, title, body, owner, expiration_date, github_handle, email, full_name, created_at, updated_at`

func (s *Store) toTicket(row *ticketRow, tags []string) *domain.Ticket {
	if tags == nil {
		tags = []string{}
	}
	return &domain.Ticket{
		ID:      row.ID,
		QueueID: row.QueueID,
		Title:   row.Title,
		Body:    row.Body,
		Owner:   row.Owner,
		Tags:    tags,
		Fields: domain.TicketFields{
			ExpirationDate: row.ExpirationDate,
			GithubHandle:   row.GithubHandle,
			Email:          row.Email,
			FullName:       row.FullName,
		},
		Permalink: s.permalink(row.ID),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func (s *Store) permalink(id string) string {
	if s.permalinkBase == "" {
		return "/tickets/" + id
	}
	return s.permalinkBase + "/" + id
}

func getTicketTags(ctx context.Context, db dbInterface, ticketID string) ([]string, error) {
	var tags []string
	err := db.SelectContext(ctx, &tags,
		`SELECT tag FROM ticket_tags WHERE ticket_id = $1 ORDER BY tag`, ticketID)
	return tags, err
}

func (s *Store) hydrate(ctx context.Context, db dbInterface, rows []*ticketRow) ([]*domain.Ticket, error) {
	tickets := make([]*domain.Ticket, 0, len(rows))
	for _, row := range rows {
		tags, err := getTicketTags(ctx, db, row.ID)
		if err != nil {
			return nil, fmt.Errorf("loading tags for ticket %s: %w", row.ID, err)
		}
		tickets = append(tickets, s.toTicket(row, tags))
	}
	return tickets, nil
}

func (s *Store) CreateTicket(ctx context.Context, t *domain.NewTicket) (*domain.Ticket, error) {
	now := s.timestamp()
	row := &ticketRow{
		ID:             uuid.New().String(),
		QueueID:        t.QueueID,
		Title:          t.Title,
		Body:           t.Body,
		Owner:          t.Owner,
		ExpirationDate: t.Fields.ExpirationDate,
		GithubHandle:   t.Fields.GithubHandle,
		Email:          t.Fields.Email,
		FullName:       t.Fields.FullName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (`+ticketColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.QueueID, row.Title, row.Body, row.Owner,
		row.ExpirationDate, row.GithubHandle, row.Email, row.FullName,
		row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return nil, wrapUniqueError(err)
	}
	return s.toTicket(row, nil), nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var row ticketRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	tags, err := getTicketTags(ctx, s.db, row.ID)
	if err != nil {
		return nil, err
	}
	return s.toTicket(&row, tags), nil
}

func (s *Store) SearchTickets(ctx context.Context, queueID, query string) ([]*domain.Ticket, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	var rows []*ticketRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE queue_id = $1 AND (
		     LOWER(title) LIKE $2 OR LOWER(body) LIKE $2 OR LOWER(github_handle) LIKE $2
		     OR LOWER(email) LIKE $2 OR LOWER(full_name) LIKE $2)
		 ORDER BY created_at, id`, queueID, pattern)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, s.db, rows)
}

func (s *Store) ListTickets(ctx context.Context, queueID string, page domain.Page) (*domain.TicketPage, error) {
	var total int
	if err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM tickets WHERE queue_id = $1`, queueID); err != nil {
		return nil, err
	}

	var rows []*ticketRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+ticketColumns+` FROM tickets WHERE queue_id = $1
		 ORDER BY created_at, id LIMIT $2 OFFSET $3`, queueID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	tickets, err := s.hydrate(ctx, s.db, rows)
	if err != nil {
		return nil, err
	}
	return &domain.TicketPage{Tickets: tickets, Total: total}, nil
}

func (s *Store) UpdateFields(ctx context.Context, ticketID string, fields domain.TicketFields) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET
		     expiration_date = CASE WHEN $1 = '' THEN expiration_date ELSE $1 END,
		     github_handle = CASE WHEN $2 = '' THEN github_handle ELSE $2 END,
		     email = CASE WHEN $3 = '' THEN email ELSE $3 END,
		     full_name = CASE WHEN $4 = '' THEN full_name ELSE $4 END,
		     updated_at = $5
		 WHERE id = $6`,
		fields.ExpirationDate, fields.GithubHandle, fields.Email, fields.FullName,
		s.timestamp(), ticketID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ticketExists(ctx context.Context, ticketID string) error {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM tickets WHERE id = $1`, ticketID); err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// Tags
// ============================================

func (s *Store) AddTags(ctx context.Context, ticketID string, tags []string) error {
	if err := s.ticketExists(ctx, ticketID); err != nil {
		return err
	}
	for _, tag := range tags {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO ticket_tags (ticket_id, tag) VALUES ($1, $2)
			 ON CONFLICT (ticket_id, tag) DO NOTHING`, ticketID, tag)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RemoveTag(ctx context.Context, ticketID, tag string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM ticket_tags WHERE ticket_id = $1 AND tag = $2`, ticketID, tag)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// Messages
// ============================================

func (s *Store) PostMessage(ctx context.Context, ticketID, body string) (*domain.TicketMessage, error) {
	if err := s.ticketExists(ctx, ticketID); err != nil {
		return nil, err
	}
	msg := &domain.TicketMessage{
		ID:        uuid.New().String(),
		TicketID:  ticketID,
		Body:      body,
		CreatedAt: s.timestamp(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_messages (id, ticket_id, body, created_at) VALUES ($1, $2, $3, $4)`,
		msg.ID, msg.TicketID, msg.Body, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, ticketID string) ([]*domain.TicketMessage, error) {
	var msgs []*domain.TicketMessage
	err := s.db.SelectContext(ctx, &msgs,
		`SELECT id, ticket_id, body, created_at FROM ticket_messages
		 WHERE ticket_id = $1 ORDER BY created_at, id`, ticketID)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
