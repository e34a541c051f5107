package store

import (
	"context"
	"reflect"
	"testing"
	"time"
)

var ledgerBase = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

func TestRecordSubmission(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sub := createTestSubmission("tok-1", "entity:/shots/010/0020", "light", "ada", ledgerBase)
	inserted, err := s.RecordSubmission(ctx, sub)
	if err != nil {
		t.Fatalf("RecordSubmission() failed: %v", err)
	}
	if !inserted {
		t.Error("expected inserted=true for a new token")
	}

	got, ok, err := s.GetSubmission(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetSubmission() failed: %v", err)
	}
	if !ok {
		t.Fatal("recorded submission not found")
	}
	if got.BatchName != sub.BatchName {
		t.Errorf("BatchName = %q, expected %q", got.BatchName, sub.BatchName)
	}
	if got.Fingerprint != "fp-tok-1" {
		t.Errorf("Fingerprint = %q, expected %q", got.Fingerprint, "fp-tok-1")
	}
	if !got.SubmittedAt.Equal(ledgerBase) {
		t.Errorf("SubmittedAt = %v, expected %v", got.SubmittedAt, ledgerBase)
	}
	if !reflect.DeepEqual(got.Jobs, sub.Jobs) {
		t.Errorf("Jobs = %+v, expected %+v", got.Jobs, sub.Jobs)
	}
}

func TestRecordSubmission_IdempotentOnRetry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sub := createTestSubmission("tok-1", "entity:/shots/010/0020", "light", "ada", ledgerBase)
	if _, err := s.RecordSubmission(ctx, sub); err != nil {
		t.Fatalf("first RecordSubmission() failed: %v", err)
	}

	inserted, err := s.RecordSubmission(ctx, sub)
	if err != nil {
		t.Fatalf("retry RecordSubmission() failed: %v", err)
	}
	if inserted {
		t.Error("expected inserted=false on retry")
	}

	// Retry must not duplicate job rows
	var jobCount int
	err = s.db.QueryRow(
		"SELECT COUNT(*) FROM submission_jobs WHERE submission_token = ?",
		"tok-1",
	).Scan(&jobCount)
	if err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if jobCount != len(sub.Jobs) {
		t.Errorf("job rows = %d, expected %d", jobCount, len(sub.Jobs))
	}
}

func TestRecordSubmission_EmptyToken(t *testing.T) {
	s := createTestStore(t)

	_, err := s.RecordSubmission(context.Background(), Submission{})
	if err == nil {
		t.Error("expected error for empty token, got nil")
	}
}

func TestGetSubmission_Missing(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.GetSubmission(context.Background(), "never-recorded")
	if err != nil {
		t.Fatalf("GetSubmission() failed: %v", err)
	}
	if ok {
		t.Error("expected ok=false for an unrecorded token")
	}
}

func TestQuerySubmissions_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seed := []Submission{
		createTestSubmission("tok-1", "entity:/shots/010/0020", "light", "ada", ledgerBase),
		createTestSubmission("tok-2", "entity:/shots/010/0020", "comp", "grace", ledgerBase.Add(time.Hour)),
		createTestSubmission("tok-3", "entity:/assets/char/hero", "model", "ada", ledgerBase.Add(2*time.Hour)),
	}
	for _, sub := range seed {
		if _, err := s.RecordSubmission(ctx, sub); err != nil {
			t.Fatalf("seed RecordSubmission(%s) failed: %v", sub.Token, err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string // tokens, newest first
	}{
		{"unfiltered", Filter{}, []string{"tok-3", "tok-2", "tok-1"}},
		{"by entity", Filter{Entity: "entity:/shots/010/0020"}, []string{"tok-2", "tok-1"}},
		{"by department", Filter{Department: "model"}, []string{"tok-3"}},
		{"by user", Filter{User: "ada"}, []string{"tok-3", "tok-1"}},
		{"since", Filter{Since: ledgerBase.Add(30 * time.Minute)}, []string{"tok-3", "tok-2"}},
		{"combined", Filter{Entity: "entity:/shots/010/0020", User: "ada"}, []string{"tok-1"}},
		{"limit", Filter{Limit: 2}, []string{"tok-3", "tok-2"}},
		{"no match", Filter{User: "nobody"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, err := s.QuerySubmissions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QuerySubmissions() failed: %v", err)
			}
			tokens := make([]string, 0, len(subs))
			for _, sub := range subs {
				tokens = append(tokens, sub.Token)
			}
			if len(tokens) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(tokens, tt.want) {
				t.Errorf("tokens = %v, expected %v", tokens, tt.want)
			}
		})
	}
}

func TestQuerySubmissions_TokenTiebreaker(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Same timestamp: ordering falls back to the token
	for _, token := range []string{"tok-b", "tok-a"} {
		sub := createTestSubmission(token, "entity:/shots/010/0020", "light", "ada", ledgerBase)
		if _, err := s.RecordSubmission(ctx, sub); err != nil {
			t.Fatalf("seed RecordSubmission(%s) failed: %v", token, err)
		}
	}

	subs, err := s.QuerySubmissions(ctx, Filter{})
	if err != nil {
		t.Fatalf("QuerySubmissions() failed: %v", err)
	}
	if len(subs) != 2 || subs[0].Token != "tok-a" || subs[1].Token != "tok-b" {
		t.Errorf("expected tok-a before tok-b, got %+v", subs)
	}
}

func TestQuerySubmissions_AttachesJobs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sub := createTestSubmission("tok-1", "entity:/shots/010/0020", "light", "ada", ledgerBase)
	if _, err := s.RecordSubmission(ctx, sub); err != nil {
		t.Fatalf("RecordSubmission() failed: %v", err)
	}

	subs, err := s.QuerySubmissions(ctx, Filter{})
	if err != nil {
		t.Fatalf("QuerySubmissions() failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	if !reflect.DeepEqual(subs[0].Jobs, sub.Jobs) {
		t.Errorf("Jobs = %+v, expected %+v", subs[0].Jobs, sub.Jobs)
	}
}

func TestQuerySubmissions_EmptyLedger(t *testing.T) {
	s := createTestStore(t)

	subs, err := s.QuerySubmissions(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("QuerySubmissions() failed: %v", err)
	}
	if subs == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(subs) != 0 {
		t.Errorf("expected no submissions, got %d", len(subs))
	}
}
