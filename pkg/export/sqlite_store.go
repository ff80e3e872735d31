// Package export persists neighbour graphs to SQLite and CSV.
package export

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"interscellar/internal/models"
)

// CellRecord describes one cell of a run.
type CellRecord struct {
	ID     uint32     `json:"id"`
	Voxels int        `json:"voxels"`
	Volume float64    `json:"volume"`
	Box    models.Box `json:"bbox"`
}

// Store keeps cells and their neighbour relation in a SQLite database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cells (
		id INTEGER PRIMARY KEY,
		voxels INTEGER NOT NULL,
		volume REAL NOT NULL,
		min_z INTEGER NOT NULL,
		min_y INTEGER NOT NULL,
		min_x INTEGER NOT NULL,
		max_z INTEGER NOT NULL,
		max_y INTEGER NOT NULL,
		max_x INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS neighbors (
		cell_a INTEGER NOT NULL,
		cell_b INTEGER NOT NULL,
		distance REAL NOT NULL,
		gap_volume REAL,
		PRIMARY KEY (cell_a, cell_b),
		CHECK (cell_a < cell_b)
	);

	CREATE INDEX IF NOT EXISTS idx_neighbors_b ON neighbors(cell_b);

	CREATE TABLE IF NOT EXISTS contacts (
		cell_a INTEGER NOT NULL,
		cell_b INTEGER NOT NULL,
		area REAL NOT NULL,
		PRIMARY KEY (cell_a, cell_b),
		CHECK (cell_a < cell_b)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveCells inserts or replaces cell records in one transaction.
func (s *Store) SaveCells(cells []CellRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO cells (id, voxels, volume, min_z, min_y, min_x, max_z, max_y, max_x)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cells {
		_, err := stmt.Exec(
			int64(c.ID), c.Voxels, c.Volume,
			c.Box.Min[0], c.Box.Min[1], c.Box.Min[2],
			c.Box.Max[0], c.Box.Max[1], c.Box.Max[2],
		)
		if err != nil {
			return fmt.Errorf("failed to insert cell %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// SaveNeighbors inserts or replaces every relation in one transaction. Pairs
// missing from gaps get a NULL gap volume.
func (s *Store) SaveNeighbors(relations []models.Relation, gaps map[models.Pair]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO neighbors (cell_a, cell_b, distance, gap_volume)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range relations {
		p := models.NewPair(r.A, r.B)
		gap := sql.NullFloat64{}
		if v, ok := gaps[p]; ok {
			gap = sql.NullFloat64{Float64: v, Valid: true}
		}
		if _, err := stmt.Exec(int64(p.A), int64(p.B), r.Distance, gap); err != nil {
			return fmt.Errorf("failed to insert pair %v: %w", p, err)
		}
	}
	return tx.Commit()
}

// SaveContacts replaces the stored contact areas with areas.
func (s *Store) SaveContacts(areas map[models.Pair]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM contacts`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO contacts (cell_a, cell_b, area) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for p, area := range areas {
		p = models.NewPair(p.A, p.B)
		if _, err := stmt.Exec(int64(p.A), int64(p.B), area); err != nil {
			return fmt.Errorf("failed to insert contact %v: %w", p, err)
		}
	}
	return tx.Commit()
}

// ContactArea returns the stored contact area of a pair. The boolean is
// false when the two cells do not touch.
func (s *Store) ContactArea(p models.Pair) (float64, bool, error) {
	p = models.NewPair(p.A, p.B)
	var area float64
	err := s.db.QueryRow(`SELECT area FROM contacts WHERE cell_a = ? AND cell_b = ?`,
		int64(p.A), int64(p.B)).Scan(&area)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return area, true, nil
}

// Cell retrieves one cell record. The boolean is false when id is unknown.
func (s *Store) Cell(id uint32) (*CellRecord, bool, error) {
	row := s.db.QueryRow(`
		SELECT voxels, volume, min_z, min_y, min_x, max_z, max_y, max_x
		FROM cells WHERE id = ?
	`, int64(id))

	c := CellRecord{ID: id}
	err := row.Scan(&c.Voxels, &c.Volume,
		&c.Box.Min[0], &c.Box.Min[1], &c.Box.Min[2],
		&c.Box.Max[0], &c.Box.Max[1], &c.Box.Max[2])
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

// Neighbors returns the stored neighbours of id sorted by id.
func (s *Store) Neighbors(id uint32) ([]models.Neighbor, error) {
	rows, err := s.db.Query(`
		SELECT cell_b, distance FROM neighbors WHERE cell_a = ?
		UNION ALL
		SELECT cell_a, distance FROM neighbors WHERE cell_b = ?
		ORDER BY 1
	`, int64(id), int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Neighbor{}
	for rows.Next() {
		var other int64
		var n models.Neighbor
		if err := rows.Scan(&other, &n.Distance); err != nil {
			return nil, err
		}
		n.ID = uint32(other)
		result = append(result, n)
	}
	return result, rows.Err()
}

// GapVolume returns the stored gap volume of a pair. The boolean is false
// when the pair is not stored or no gap volume was computed for it.
func (s *Store) GapVolume(p models.Pair) (float64, bool, error) {
	p = models.NewPair(p.A, p.B)
	var gap sql.NullFloat64
	err := s.db.QueryRow(`SELECT gap_volume FROM neighbors WHERE cell_a = ? AND cell_b = ?`,
		int64(p.A), int64(p.B)).Scan(&gap)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return gap.Float64, gap.Valid, nil
}
