// Package storage persists resampling results using BoltDB. Each run is
// stored under its run ID: the ordered score records for later
// re-aggregation or comparison, and the computed summary. The harness
// itself only appends; external reporting tooling reads.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"spatialcv/internal/resample"
)

const (
	scoresBucket    = "scores"
	summariesBucket = "summaries"
)

// Store provides persistent storage for run results.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the results database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "spatialcv-results.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(scoresBucket)); err != nil {
			return fmt.Errorf("create scores bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(summariesBucket)); err != nil {
			return fmt.Errorf("create summaries bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreRun persists every score record of a run plus its summary under
// the given run ID.
func (s *Store) StoreRun(runID string, result *resample.Result, summary resample.Summary) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		scores := tx.Bucket([]byte(scoresBucket))
		for _, score := range result.Scores {
			data, err := json.Marshal(score)
			if err != nil {
				return fmt.Errorf("marshal score: %w", err)
			}
			key := scoreKey(runID, score.Repetition, score.Fold)
			if err := scores.Put(key, data); err != nil {
				return err
			}
		}

		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		return tx.Bucket([]byte(summariesBucket)).Put([]byte(runID), data)
	})
}

// GetScores retrieves a run's score records in (repetition, fold) order.
func (s *Store) GetScores(runID string) ([]resample.Score, error) {
	var scores []resample.Score

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(scoresBucket)).Cursor()
		prefix := []byte(runID + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var score resample.Score
			if err := json.Unmarshal(v, &score); err != nil {
				continue // Skip malformed records
			}
			scores = append(scores, score)
		}
		return nil
	})

	return scores, err
}

// GetSummary retrieves a stored run summary.
func (s *Store) GetSummary(runID string) (resample.Summary, error) {
	var summary resample.Summary

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(summariesBucket)).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("no summary stored for run %q", runID)
		}
		return json.Unmarshal(data, &summary)
	})

	return summary, err
}

// ListRuns returns the IDs of all stored runs.
func (s *Store) ListRuns() ([]string, error) {
	var runs []string

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(summariesBucket)).ForEach(func(k, _ []byte) error {
			runs = append(runs, string(k))
			return nil
		})
	})

	return runs, err
}

// scoreKey orders records by run, then repetition, then fold. Fixed
// widths keep the byte order aligned with the numeric order.
func scoreKey(runID string, rep, fold int) []byte {
	return []byte(fmt.Sprintf("%s_%06d_%04d", runID, rep, fold))
}
