// Package store persists per-slide restore state (last viewport, ROI
// measurement endpoints) in a local SQLite file. Everything here is
// best-effort: a missing or corrupt row degrades to "nothing saved" and is
// overwritten by the next save.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"slideview/internal/model"
	"slideview/internal/viewport"
)

// Store is a handle on the local state directory.
type Store struct {
	Dir string
}

// DefaultDir resolves the user-level state directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "slideview"), nil
}

func (s Store) ensure() error {
	return os.MkdirAll(filepath.Clean(s.Dir), 0o755)
}

func (s Store) sqlitePath() string {
	return filepath.Join(filepath.Clean(s.Dir), "state.sqlite")
}

func (s Store) openSQLite(ctx context.Context) (*sql.DB, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", s.sqlitePath())
	if err != nil {
		return nil, err
	}
	// WAL enables one writer + many readers; busy_timeout avoids
	// "database is locked" flakiness when two viewers share the file.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS slide_state (
			slide_id TEXT PRIMARY KEY,
			viewport_json TEXT NOT NULL,
			roi_json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// SlideState is the restorable per-slide state. Nil members were never
// saved (or failed to load).
type SlideState struct {
	Viewport *viewport.Viewport
	ROI      *model.ROIEndpoints
}

// wire forms; kept separate from the live types so the schema can evolve.
type viewportJSON struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Zoom   float64 `json:"zoom"`
}

type roiJSON struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Load returns the saved state for a slide. Missing rows and undecodable
// columns come back as nil members, never as an error.
func (s Store) Load(ctx context.Context, slideID uuid.UUID) (SlideState, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return SlideState{}, err
	}
	defer db.Close()

	var vpRaw, roiRaw string
	err = db.QueryRowContext(ctx,
		`SELECT viewport_json, roi_json FROM slide_state WHERE slide_id = ?`,
		slideID.String()).Scan(&vpRaw, &roiRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return SlideState{}, nil
	}
	if err != nil {
		return SlideState{}, fmt.Errorf("load slide state: %w", err)
	}

	var out SlideState
	var vw viewportJSON
	if json.Unmarshal([]byte(vpRaw), &vw) == nil && vw.Zoom > 0 {
		out.Viewport = &viewport.Viewport{X: vw.X, Y: vw.Y, Width: vw.Width, Height: vw.Height, Zoom: vw.Zoom}
	}
	var roi roiJSON
	if roiRaw != "" && json.Unmarshal([]byte(roiRaw), &roi) == nil {
		out.ROI = &model.ROIEndpoints{X1: roi.X1, Y1: roi.Y1, X2: roi.X2, Y2: roi.Y2}
	}
	return out, nil
}

// Save writes the slide's state, replacing whatever was there. A nil ROI
// clears the saved endpoints.
func (s Store) Save(ctx context.Context, slideID uuid.UUID, st SlideState) error {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	vpRaw := ""
	if st.Viewport != nil {
		b, err := json.Marshal(viewportJSON{
			X: st.Viewport.X, Y: st.Viewport.Y,
			Width: st.Viewport.Width, Height: st.Viewport.Height,
			Zoom: st.Viewport.Zoom,
		})
		if err != nil {
			return fmt.Errorf("encode viewport: %w", err)
		}
		vpRaw = string(b)
	}
	roiRaw := ""
	if st.ROI != nil {
		b, err := json.Marshal(roiJSON{X1: st.ROI.X1, Y1: st.ROI.Y1, X2: st.ROI.X2, Y2: st.ROI.Y2})
		if err != nil {
			return fmt.Errorf("encode roi: %w", err)
		}
		roiRaw = string(b)
	}

	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO slide_state(slide_id, viewport_json, roi_json, updated_at_unixms) VALUES(?, ?, ?, ?)`,
		slideID.String(), vpRaw, roiRaw, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save slide state: %w", err)
	}
	return nil
}

// Forget drops a slide's saved state.
func (s Store) Forget(ctx context.Context, slideID uuid.UUID) error {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `DELETE FROM slide_state WHERE slide_id = ?`, slideID.String()); err != nil {
		return fmt.Errorf("forget slide state: %w", err)
	}
	return nil
}
