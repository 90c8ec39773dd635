package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/praetorian-inc/yarascan/pkg/types"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-based store.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases and writers consistent.
	db.SetMaxOpenConns(1)

	// Initialize schema
	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// BeginScan records a new scan.
func (s *SQLiteStore) BeginScan(info ScanInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO scans (id, source, mode, started_at)
		VALUES (?, ?, ?, ?)
	`, info.ID, info.Source, info.Mode, formatTime(info.StartedAt))
	if err != nil {
		return fmt.Errorf("inserting scan: %w", err)
	}

	for i, src := range info.Rules {
		_, err = tx.Exec(`
			INSERT INTO scan_rules (scan_id, seq, namespace, path)
			VALUES (?, ?, ?, ?)
		`, info.ID, i, src.Namespace, src.Path)
		if err != nil {
			return fmt.Errorf("inserting scan rule: %w", err)
		}
	}

	return tx.Commit()
}

// AddResult stores one matched target and its matches.
func (s *SQLiteStore) AddResult(scanID string, seq int, res types.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertResult(tx, scanID, seq, res); err != nil {
		return err
	}
	return tx.Commit()
}

func insertResult(tx *sql.Tx, scanID string, seq int, res types.Result) error {
	var hasPackage int
	var pkg, version, sha, typ *string
	if res.PackageRef != nil {
		hasPackage = 1
		pkg, version, sha, typ = &res.Package, &res.Version, &res.SHA256, &res.Type
	}

	out, err := tx.Exec(`
		INSERT INTO results (scan_id, seq, file, has_package, package, version, sha256, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, scanID, seq, res.File, hasPackage, pkg, version, sha, typ)
	if err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}
	resultID, err := out.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading result id: %w", err)
	}

	for i, m := range res.Matches {
		tagsJSON, metaJSON, stringsJSON, err := encodeMatch(m)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO matches (result_id, seq, rule, namespace, severity, tags_json, meta_json, strings_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, resultID, i, m.Rule, m.Namespace, m.Severity(), tagsJSON, metaJSON, stringsJSON)
		if err != nil {
			return fmt.Errorf("inserting match: %w", err)
		}
	}
	return nil
}

// FinishScan updates the counters and finish time of a scan.
func (s *SQLiteStore) FinishScan(info ScanInfo) error {
	out, err := s.db.Exec(`
		UPDATE scans
		SET finished_at = ?, total_scanned = ?, files_with_matches = ?, total_matches = ?
		WHERE id = ?
	`, formatTime(info.FinishedAt), info.TotalScanned, info.FilesWithMatches, info.TotalMatches, info.ID)
	if err != nil {
		return fmt.Errorf("updating scan: %w", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, info.ID)
	}
	return nil
}

// GetScan retrieves one scan record.
func (s *SQLiteStore) GetScan(id string) (*ScanInfo, error) {
	row := s.db.QueryRow(`
		SELECT id, source, mode, started_at, finished_at, total_scanned, files_with_matches, total_matches
		FROM scans WHERE id = ?
	`, id)
	info, err := scanInfoRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying scan: %w", err)
	}

	rules, err := s.scanRules(id)
	if err != nil {
		return nil, err
	}
	info.Rules = rules
	return info, nil
}

func (s *SQLiteStore) scanRules(id string) ([]types.RuleSource, error) {
	rows, err := s.db.Query(`SELECT namespace, path FROM scan_rules WHERE scan_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("querying scan rules: %w", err)
	}
	defer rows.Close()

	var rules []types.RuleSource
	for rows.Next() {
		var src types.RuleSource
		if err := rows.Scan(&src.Namespace, &src.Path); err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		rules = append(rules, src)
	}
	return rules, rows.Err()
}

// GetReport rebuilds the report of a scan.
func (s *SQLiteStore) GetReport(id string) (*types.Report, error) {
	info, err := s.GetScan(id)
	if err != nil {
		return nil, err
	}

	report := types.NewReport()
	report.TotalScanned = info.TotalScanned
	report.FilesWithMatches = info.FilesWithMatches
	report.TotalMatches = info.TotalMatches

	rows, err := s.db.Query(`
		SELECT id, file, has_package, package, version, sha256, type
		FROM results WHERE scan_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var rid int64
		var hasPackage int
		var pkg, version, sha, typ sql.NullString
		var res types.Result
		if err := rows.Scan(&rid, &res.File, &hasPackage, &pkg, &version, &sha, &typ); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		if hasPackage == 1 {
			res.PackageRef = &types.PackageRef{
				Package: pkg.String,
				Version: version.String,
				SHA256:  sha.String,
				Type:    typ.String,
			}
		}
		ids = append(ids, rid)
		report.Results = append(report.Results, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, rid := range ids {
		matches, err := s.matchesFor(rid)
		if err != nil {
			return nil, err
		}
		report.Results[i].Matches = matches
	}

	return report, nil
}

func (s *SQLiteStore) matchesFor(resultID int64) ([]types.Match, error) {
	rows, err := s.db.Query(`
		SELECT rule, namespace, tags_json, meta_json, strings_json
		FROM matches WHERE result_id = ? ORDER BY seq
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	matches := []types.Match{}
	for rows.Next() {
		var rule, namespace, tagsJSON, metaJSON, stringsJSON string
		if err := rows.Scan(&rule, &namespace, &tagsJSON, &metaJSON, &stringsJSON); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		m, err := decodeMatch(rule, namespace, tagsJSON, metaJSON, stringsJSON)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListScans returns all scans, most recent first.
func (s *SQLiteStore) ListScans() ([]ScanInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, source, mode, started_at, finished_at, total_scanned, files_with_matches, total_matches
		FROM scans ORDER BY started_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanInfo
	for rows.Next() {
		info, err := scanInfoRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning scan row: %w", err)
		}
		scans = append(scans, *info)
	}
	return scans, rows.Err()
}

// SetAnnotation stores or clears an annotation.
func (s *SQLiteStore) SetAnnotation(scanID, key string, a Annotation) error {
	if a.Empty() {
		_, err := s.db.Exec(`DELETE FROM annotations WHERE scan_id = ? AND key = ?`, scanID, key)
		if err != nil {
			return fmt.Errorf("deleting annotation: %w", err)
		}
		return nil
	}

	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM scans WHERE id = ?`, scanID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("querying scan: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, scanID)
	}

	_, err = s.db.Exec(`
		INSERT INTO annotations (scan_id, key, status, comment)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scan_id, key) DO UPDATE SET status = excluded.status, comment = excluded.comment
	`, scanID, key, a.Status, a.Comment)
	if err != nil {
		return fmt.Errorf("storing annotation: %w", err)
	}
	return nil
}

// GetAnnotations returns the annotations of a scan.
func (s *SQLiteStore) GetAnnotations(scanID string) (map[string]Annotation, error) {
	rows, err := s.db.Query(`SELECT key, status, comment FROM annotations WHERE scan_id = ?`, scanID)
	if err != nil {
		return nil, fmt.Errorf("querying annotations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Annotation)
	for rows.Next() {
		var key string
		var a Annotation
		if err := rows.Scan(&key, &a.Status, &a.Comment); err != nil {
			return nil, fmt.Errorf("scanning annotation row: %w", err)
		}
		out[key] = a
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ===========================================================================
// HELPERS
// ===========================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfoRow(row rowScanner) (*ScanInfo, error) {
	var info ScanInfo
	var started string
	var finished sql.NullString
	err := row.Scan(&info.ID, &info.Source, &info.Mode, &started, &finished,
		&info.TotalScanned, &info.FilesWithMatches, &info.TotalMatches)
	if err != nil {
		return nil, err
	}
	info.StartedAt = parseTime(started)
	if finished.Valid {
		info.FinishedAt = parseTime(finished.String)
	}
	return &info, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func encodeMatch(m types.Match) (tags, meta, strs string, err error) {
	t, err := json.Marshal(nonNilTags(m.Tags))
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling tags: %w", err)
	}
	mm, err := json.Marshal(m.Meta)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling meta: %w", err)
	}
	s, err := json.Marshal(m.Strings)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling strings: %w", err)
	}
	return string(t), string(mm), string(s), nil
}

func decodeMatch(rule, namespace, tagsJSON, metaJSON, stringsJSON string) (types.Match, error) {
	m := types.NewMatch(rule, namespace)
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return m, fmt.Errorf("unmarshaling tags: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(metaJSON)))
	dec.UseNumber()
	var meta map[string]any
	if err := dec.Decode(&meta); err != nil {
		return m, fmt.Errorf("unmarshaling meta: %w", err)
	}
	for k, v := range meta {
		m.Meta[k] = restoreScalar(v)
	}

	if err := json.Unmarshal([]byte(stringsJSON), &m.Strings); err != nil {
		return m, fmt.Errorf("unmarshaling strings: %w", err)
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.Strings == nil {
		m.Strings = []types.MatchString{}
	}
	return m, nil
}

// restoreScalar turns JSON numbers back into int64 metadata values.
func restoreScalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	return n.String()
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
