// Package roster is the read-only people catalogue the engine consults when
// deciding assignment suitability. The engine depends on the Roster interface
// so tests can inject a fixture and no global mock state is needed.
package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"workdesk/internal/domain"
)

var ErrNotFound = errors.New("person not found")

// Roster is the lookup surface injected into the engine.
type Roster interface {
	FindByID(ctx context.Context, id string) (domain.Person, error)
	Search(ctx context.Context, q Query) ([]domain.Person, error)
}

// Query filters a roster search. Exclude lists person IDs to drop from the
// results (typically everyone already holding a chair in the work item).
type Query struct {
	Text      string
	Location  string
	Expertise string
	Exclude   []string
	Limit     int
}

// Store is the sqlite-backed Roster.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Store) FindByID(ctx context.Context, id string) (domain.Person, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id,name,title,COALESCE(location,''),COALESCE(expertise_json,''),base_capacity_used,match_score,created_at FROM people WHERE id=?`, id)
	return scanPerson(row)
}

func scanPerson(row *sql.Row) (domain.Person, error) {
	var p domain.Person
	var expertiseJSON string
	err := row.Scan(&p.ID, &p.Name, &p.Title, &p.Location, &expertiseJSON, &p.BaseCapacityUsed, &p.MatchScore, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Expertise = decodeExpertise(expertiseJSON)
	return p, nil
}

func (s Store) Search(ctx context.Context, q Query) ([]domain.Person, error) {
	clauses := []string{"1=1"}
	var args []any
	if q.Text != "" {
		clauses = append(clauses, "(name LIKE ? OR title LIKE ?)")
		pattern := "%" + q.Text + "%"
		args = append(args, pattern, pattern)
	}
	if q.Location != "" {
		clauses = append(clauses, "location=?")
		args = append(args, q.Location)
	}
	if q.Expertise != "" {
		clauses = append(clauses, "expertise_json LIKE ?")
		args = append(args, "%"+q.Expertise+"%")
	}
	if len(q.Exclude) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Exclude)), ",")
		clauses = append(clauses, fmt.Sprintf("id NOT IN (%s)", placeholders))
		for _, id := range q.Exclude {
			args = append(args, id)
		}
	}
	query := `SELECT id,name,title,COALESCE(location,''),COALESCE(expertise_json,''),base_capacity_used,match_score,created_at FROM people WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY match_score DESC, name ASC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Person
	for rows.Next() {
		var p domain.Person
		var expertiseJSON string
		if err := rows.Scan(&p.ID, &p.Name, &p.Title, &p.Location, &expertiseJSON, &p.BaseCapacityUsed, &p.MatchScore, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Expertise = decodeExpertise(expertiseJSON)
		res = append(res, p)
	}
	return res, rows.Err()
}

// Upsert inserts or replaces a person. BaseCapacityUsed outside 0..100 is
// rejected because every capacity projection builds on it.
func (s Store) Upsert(ctx context.Context, p domain.Person) error {
	if p.ID == "" || p.Name == "" {
		return errors.New("person id and name required")
	}
	if p.BaseCapacityUsed < 0 || p.BaseCapacityUsed > 100 {
		return fmt.Errorf("invalid base capacity %d for person %s", p.BaseCapacityUsed, p.ID)
	}
	expertiseJSON := ""
	if len(p.Expertise) > 0 {
		b, err := json.Marshal(p.Expertise)
		if err != nil {
			return err
		}
		expertiseJSON = string(b)
	}
	if p.CreatedAt == "" {
		p.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO people(id,name,title,location,expertise_json,base_capacity_used,match_score,created_at) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, title=excluded.title, location=excluded.location, expertise_json=excluded.expertise_json,
base_capacity_used=excluded.base_capacity_used, match_score=excluded.match_score`,
		p.ID, p.Name, p.Title, nullable(p.Location), nullable(expertiseJSON), p.BaseCapacityUsed, p.MatchScore, p.CreatedAt)
	return err
}

// Import upserts a batch, returning how many rows were written.
func (s Store) Import(ctx context.Context, people []domain.Person) (int, error) {
	count := 0
	for _, p := range people {
		if err := s.Upsert(ctx, p); err != nil {
			return count, fmt.Errorf("import person %s: %w", p.ID, err)
		}
		count++
	}
	return count, nil
}

// List returns the whole roster, best match first.
func (s Store) List(ctx context.Context) ([]domain.Person, error) {
	return s.Search(ctx, Query{})
}

func decodeExpertise(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
