package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// CreateRun stores a run in the running state.
func (db *DB) CreateRun(r *Run) error {
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO runs (id, hypothesis, mode, scorer, sources, target, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Hypothesis, r.Mode, r.Scorer, string(sources), r.Target, RunRunning,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	return nil
}

// FailRun marks a run as failed with the given error.
func (db *DB) FailRun(id string, runErr error) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = datetime('now') WHERE id = ?`,
		RunFailed, runErr.Error(), id,
	)
	return err
}

// CompleteRun stores the counters, signals, clusters and decisions of a finished run.
func (db *DB) CompleteRun(r *Run, signals []RunSignal, clusters []RunCluster, decisions []RunDecision) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE runs SET status = ?, fetched = ?, passed_quality = ?, passed_keyword = ?, passed_domain = ?,
			core_count = ?, related_count = ?, recovered_count = ?, cluster_count = ?, boosted = ?,
			report_markdown = ?, finished_at = datetime('now')
		WHERE id = ?`,
		RunDone, r.Fetched, r.PassedQuality, r.PassedKeyword, r.PassedDomain,
		r.CoreCount, r.RelatedCount, r.RecoveredCount, r.ClusterCount, r.Boosted,
		r.ReportMarkdown, r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	for _, s := range signals {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO run_signals
			(run_id, item_id, kind, container, title, excerpt, permalink, tier, recovered, weight, similarity, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, s.ItemID, s.Kind, s.Container, s.Title, s.Excerpt, s.Permalink,
			s.Tier, s.Recovered, s.Weight, s.Similarity, s.CreatedAt,
		); err != nil {
			return fmt.Errorf("inserting signal %s: %w", s.ItemID, err)
		}
	}

	for i, c := range clusters {
		members, err := json.Marshal(c.MemberIDs)
		if err != nil {
			return err
		}
		excerpts, err := json.Marshal(c.Excerpts)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO run_clusters
			(run_id, cluster_id, position, label, size, cohesion, member_ids, excerpts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, c.ClusterID, i, c.Label, c.Size, c.Cohesion, string(members), string(excerpts),
		); err != nil {
			return fmt.Errorf("inserting cluster %s: %w", c.ClusterID, err)
		}
	}

	for i, d := range decisions {
		if _, err := tx.Exec(
			`INSERT INTO run_decisions (run_id, seq, item_id, stage, verdict, tier, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, i, d.ItemID, d.Stage, d.Verdict, d.Tier, d.Reason,
		); err != nil {
			return fmt.Errorf("inserting decision %d: %w", i, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, hypothesis, mode, scorer, sources, target, status, error, fetched, passed_quality,
	passed_keyword, passed_domain, core_count, related_count, recovered_count, cluster_count, boosted,
	report_markdown, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var sources string
	if err := row.Scan(&r.ID, &r.Hypothesis, &r.Mode, &r.Scorer, &sources, &r.Target, &r.Status, &r.Error,
		&r.Fetched, &r.PassedQuality, &r.PassedKeyword, &r.PassedDomain, &r.CoreCount, &r.RelatedCount,
		&r.RecoveredCount, &r.ClusterCount, &r.Boosted, &r.ReportMarkdown, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		r.Sources = nil
	}
	return &r, nil
}

// GetRun returns a run by ID, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRunSignals returns the signals of a run, core first, then by weight.
func (db *DB) GetRunSignals(runID string) ([]RunSignal, error) {
	rows, err := db.conn.Query(
		`SELECT item_id, kind, container, title, excerpt, permalink, tier, recovered, weight, similarity, created_at
		FROM run_signals WHERE run_id = ?
		ORDER BY CASE tier WHEN 'core' THEN 0 ELSE 1 END, weight DESC, item_id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []RunSignal
	for rows.Next() {
		var s RunSignal
		if err := rows.Scan(&s.ItemID, &s.Kind, &s.Container, &s.Title, &s.Excerpt, &s.Permalink,
			&s.Tier, &s.Recovered, &s.Weight, &s.Similarity, &s.CreatedAt); err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// GetRunClusters returns the clusters of a run in their original order.
func (db *DB) GetRunClusters(runID string) ([]RunCluster, error) {
	rows, err := db.conn.Query(
		`SELECT cluster_id, label, size, cohesion, member_ids, excerpts
		FROM run_clusters WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []RunCluster
	for rows.Next() {
		var c RunCluster
		var members, excerpts string
		if err := rows.Scan(&c.ClusterID, &c.Label, &c.Size, &c.Cohesion, &members, &excerpts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(members), &c.MemberIDs); err != nil {
			c.MemberIDs = nil
		}
		if err := json.Unmarshal([]byte(excerpts), &c.Excerpts); err != nil {
			c.Excerpts = nil
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// GetRunStageCounts returns decision counts per stage and verdict.
func (db *DB) GetRunStageCounts(runID string) ([]StageCount, error) {
	rows, err := db.conn.Query(
		`SELECT stage, verdict, COUNT(*) FROM run_decisions WHERE run_id = ?
		GROUP BY stage, verdict ORDER BY MIN(seq), verdict`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StageCount
	for rows.Next() {
		var c StageCount
		if err := rows.Scan(&c.Stage, &c.Verdict, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// DeleteRun removes a run and everything stored with it.
func (db *DB) DeleteRun(id string) error {
	_, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, id)
	return err
}

// GetStats returns aggregate statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM embedding_cache", &s.CachedEmbeddings},
		{"SELECT COUNT(DISTINCT model) FROM embedding_cache", &s.EmbeddingModels},
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM runs WHERE status = 'failed'", &s.FailedRuns},
		{"SELECT COUNT(*) FROM run_signals", &s.StoredSignals},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	if err := db.conn.QueryRow("SELECT MAX(started_at) FROM runs").Scan(&s.LastRunAt); err != nil {
		return nil, err
	}

	return s, nil
}
