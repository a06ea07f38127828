package atlas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const migrate = `
CREATE TABLE IF NOT EXISTS customers (
    email            TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    tier             TEXT NOT NULL DEFAULT 'standard',
    account_age_days INTEGER NOT NULL DEFAULT 0,
    total_orders     INTEGER NOT NULL DEFAULT 0,
    created_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tickets (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id   TEXT NOT NULL,
    email       TEXT NOT NULL,
    name        TEXT,
    query       TEXT,
    priority    TEXT,
    intent      TEXT,
    sentiment   TEXT,
    status      TEXT NOT NULL DEFAULT 'open',
    assigned_to TEXT,
    resolution  TEXT,
    escalated   INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tickets_email ON tickets(email, created_at);

CREATE TABLE IF NOT EXISTS knowledge_base (
    id      TEXT PRIMARY KEY,
    title   TEXT NOT NULL,
    content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id  TEXT NOT NULL,
    summary    TEXT,
    created_at DATETIME NOT NULL
)`

// seedArticles is reference data loaded on first open so knowledge-base
// search has something to match against out of the box.
var seedArticles = []article{
	{ID: "KB001", Title: "Damaged Package Policy", Content: "We replace damaged items within 30 days of delivery. Report damage with photos to speed up processing."},
	{ID: "KB002", Title: "Return and Exchange Policy", Content: "Items can be returned or exchanged within 30 days of delivery with the original receipt."},
	{ID: "KB003", Title: "Refund Processing Times", Content: "Refunds are issued to the original payment method within 5 business days of approval."},
	{ID: "KB004", Title: "Order Tracking", Content: "Track your order status from the account page. Tracking numbers activate within 24 hours of shipment."},
}

var errCustomerNotFound = errors.New("customer not found")

type customer struct {
	Email          string
	Name           string
	Tier           string
	AccountAgeDays int
	TotalOrders    int
}

type ticket struct {
	TicketID   string
	Email      string
	Name       string
	Query      string
	Priority   string
	Intent     string
	Sentiment  string
	Status     string
	Resolution string
	Escalated  bool
}

type article struct {
	ID        string
	Title     string
	Content   string
	Relevance float64
}

// Snippet returns a shortened view of the article content.
func (a article) Snippet() string {
	if len(a.Content) <= 120 {
		return a.Content
	}
	return a.Content[:120] + "..."
}

// ticketStore wraps the SQLite database backing the ATLAS provider.
type ticketStore struct {
	db *sql.DB
}

func openTicketStore(dbPath string) (*ticketStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(migrate); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	ts := &ticketStore{db: db}
	if err := ts.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed reference data: %w", err)
	}
	return ts, nil
}

func (s *ticketStore) seed() error {
	for _, art := range seedArticles {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO knowledge_base (id, title, content) VALUES (?, ?, ?)`,
			art.ID, art.Title, art.Content,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *ticketStore) Close() error { return s.db.Close() }

func (s *ticketStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *ticketStore) FindCustomer(ctx context.Context, email string) (customer, error) {
	var c customer
	err := s.db.QueryRowContext(ctx,
		`SELECT email, name, tier, account_age_days, total_orders FROM customers WHERE email = ?`,
		email,
	).Scan(&c.Email, &c.Name, &c.Tier, &c.AccountAgeDays, &c.TotalOrders)
	if errors.Is(err, sql.ErrNoRows) {
		return customer{}, errCustomerNotFound
	}
	if err != nil {
		return customer{}, fmt.Errorf("find customer: %w", err)
	}
	return c, nil
}

func (s *ticketStore) InsertCustomer(ctx context.Context, c customer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO customers (email, name, tier, account_age_days, total_orders, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.Email, c.Name, c.Tier, c.AccountAgeDays, c.TotalOrders, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (s *ticketStore) RecentTickets(ctx context.Context, email string, limit int) ([]ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticket_id, query, status, COALESCE(resolution, '')
		 FROM tickets WHERE email = ? ORDER BY created_at DESC LIMIT ?`,
		email, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent tickets: %w", err)
	}
	defer rows.Close()

	var out []ticket
	for rows.Next() {
		var t ticket
		if err := rows.Scan(&t.TicketID, &t.Query, &t.Status, &t.Resolution); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SearchArticles ranks knowledge-base articles by the number of search terms
// found in the title or content. SQLite LIKE matching stands in for the
// full-text search the managed deployment uses.
func (s *ticketStore) SearchArticles(ctx context.Context, terms []string, limit int) ([]article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, content FROM knowledge_base`)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()

	var matched []article
	for rows.Next() {
		var art article
		if err := rows.Scan(&art.ID, &art.Title, &art.Content); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		haystack := strings.ToLower(art.Title + " " + art.Content)
		hits := 0
		for _, term := range terms {
			if len(term) < 3 {
				continue
			}
			if strings.Contains(haystack, term) {
				hits++
			}
		}
		if hits > 0 {
			art.Relevance = float64(hits) / float64(len(terms)+1)
			matched = append(matched, art)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Highest hit ratio first; ties keep the seed order via ID.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Relevance > matched[j].Relevance
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *ticketStore) UpsertTicketStatus(ctx context.Context, ticketID, status, assignee string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET status = ?, assigned_to = ?, updated_at = ? WHERE ticket_id = ?`,
		status, assignee, now, ticketID,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO tickets (ticket_id, email, status, assigned_to, created_at, updated_at)
			 VALUES (?, '', ?, ?, ?, ?)`,
			ticketID, status, assignee, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert ticket status: %w", err)
		}
	}
	return nil
}

func (s *ticketStore) InsertTicket(ctx context.Context, t ticket) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (ticket_id, email, name, query, priority, intent, sentiment, status, escalated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TicketID, t.Email, t.Name, t.Query, t.Priority, t.Intent, t.Sentiment, t.Status, t.Escalated, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (s *ticketStore) InsertConversationLog(ctx context.Context, ticketID, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_logs (ticket_id, summary, created_at) VALUES (?, ?, ?)`,
		ticketID, summary, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert conversation log: %w", err)
	}
	return nil
}
