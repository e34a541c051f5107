package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a fresh on-disk store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSubmission creates a submission record with minimal required fields.
func createTestSubmission(token, entityURI, department, user string, at time.Time) Submission {
	return Submission{
		Token:       token,
		BatchName:   "teaser propagate " + entityURI + " " + user,
		Entity:      entityURI,
		Department:  department,
		Variant:     "default",
		User:        user,
		Fingerprint: "fp-" + token,
		SubmittedAt: at,
		Jobs: []SubmissionJob{
			{Name: "publish_shot_010_0020_" + department, Kind: "publish", FarmID: "fm-" + token + "-1"},
			{Name: "notify", Kind: "notify", FarmID: "fm-" + token + "-2"},
		},
	}
}
