package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vigil/internal/geometry"
)

// Store handles SQLite persistence for cameras and their ROIs.
type Store struct {
	db *sql.DB
}

// CameraRecord is a camera stored in the database.
type CameraRecord struct {
	ID         string
	Name       string
	RTSPLink   string
	RTSPOutput string
	CreatedAt  time.Time
}

// ROIRecord is one region of interest belonging to a camera.
type ROIRecord struct {
	ID       string
	CameraID string
	Name     string
	Points   geometry.Polygon
}

// New opens the database at dbPath with WAL mode and foreign keys on.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS cameras (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			rtsp_link TEXT NOT NULL,
			rtsp_output TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rois (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			name TEXT NOT NULL,
			points TEXT NOT NULL,
			UNIQUE (camera_id, name),
			FOREIGN KEY (camera_id) REFERENCES cameras(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rois_camera ON rois(camera_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// AddCamera inserts a camera and returns its record.
func (s *Store) AddCamera(name, rtspLink, rtspOutput string) (*CameraRecord, error) {
	rec := &CameraRecord{
		ID:         uuid.New().String(),
		Name:       name,
		RTSPLink:   rtspLink,
		RTSPOutput: rtspOutput,
		CreatedAt:  time.Now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO cameras (id, name, rtsp_link, rtsp_output, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.RTSPLink, rec.RTSPOutput, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add camera: %w", err)
	}
	return rec, nil
}

// GetCameraByName retrieves a camera; a missing camera is (nil, nil).
func (s *Store) GetCameraByName(name string) (*CameraRecord, error) {
	var rec CameraRecord
	err := s.db.QueryRow(
		`SELECT id, name, rtsp_link, rtsp_output, created_at FROM cameras WHERE name = ?`, name,
	).Scan(&rec.ID, &rec.Name, &rec.RTSPLink, &rec.RTSPOutput, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}
	return &rec, nil
}

// ListCameras returns every camera ordered by name.
func (s *Store) ListCameras() ([]CameraRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, name, rtsp_link, rtsp_output, created_at FROM cameras ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []CameraRecord
	for rows.Next() {
		var rec CameraRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.RTSPLink, &rec.RTSPOutput, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, rec)
	}
	return cameras, rows.Err()
}

// DeleteCamera removes a camera; its ROIs cascade.
func (s *Store) DeleteCamera(id string) error {
	if _, err := s.db.Exec(`DELETE FROM cameras WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete camera: %w", err)
	}
	return nil
}

// AddROI stores a polygon for a camera. Polygons need at least 3 points;
// names must be unique per camera and are sanitized because they end up in
// recording and screenshot file names.
func (s *Store) AddROI(cameraID, name string, points geometry.Polygon) (*ROIRecord, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("roi needs at least 3 points, got %d", len(points))
	}
	name = SanitizeName(name)
	if name == "" {
		return nil, fmt.Errorf("roi name is empty after sanitizing")
	}

	encoded, err := encodePoints(points)
	if err != nil {
		return nil, err
	}
	rec := &ROIRecord{
		ID:       uuid.New().String(),
		CameraID: cameraID,
		Name:     name,
		Points:   points,
	}
	_, err = s.db.Exec(
		`INSERT INTO rois (id, camera_id, name, points) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.CameraID, rec.Name, encoded,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add roi: %w", err)
	}
	return rec, nil
}

// UpdateROI replaces an ROI's name and polygon.
func (s *Store) UpdateROI(id, name string, points geometry.Polygon) error {
	if len(points) < 3 {
		return fmt.Errorf("roi needs at least 3 points, got %d", len(points))
	}
	name = SanitizeName(name)
	if name == "" {
		return fmt.Errorf("roi name is empty after sanitizing")
	}

	encoded, err := encodePoints(points)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE rois SET name = ?, points = ? WHERE id = ?`, name, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to update roi: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("roi %s not found", id)
	}
	return nil
}

// DeleteROI removes one ROI.
func (s *Store) DeleteROI(id string) error {
	res, err := s.db.Exec(`DELETE FROM rois WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete roi: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("roi %s not found", id)
	}
	return nil
}

// ListROIs returns the ROIs of one camera.
func (s *Store) ListROIs(cameraID string) ([]ROIRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, camera_id, name, points FROM rois WHERE camera_id = ? ORDER BY name`, cameraID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rois: %w", err)
	}
	defer rows.Close()

	var rois []ROIRecord
	for rows.Next() {
		var rec ROIRecord
		var encoded string
		if err := rows.Scan(&rec.ID, &rec.CameraID, &rec.Name, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan roi: %w", err)
		}
		rec.Points, err = decodePoints(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode roi %s: %w", rec.ID, err)
		}
		rois = append(rois, rec)
	}
	return rois, rows.Err()
}

// SanitizeName reduces an ROI name to characters safe in file names:
// letters, digits, underscore, and dash. Spaces become underscores,
// everything else is dropped.
func SanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '-':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		}
	}
	return string(out)
}

// Points persist as a JSON array of [x, y] pairs.
func encodePoints(points geometry.Polygon) (string, error) {
	pairs := make([][2]int, len(points))
	for i, p := range points {
		pairs[i] = [2]int{p.X, p.Y}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("failed to encode points: %w", err)
	}
	return string(b), nil
}

func decodePoints(encoded string) (geometry.Polygon, error) {
	var pairs [][2]int
	if err := json.Unmarshal([]byte(encoded), &pairs); err != nil {
		return nil, err
	}
	points := make(geometry.Polygon, len(pairs))
	for i, p := range pairs {
		points[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return points, nil
}
