package store

import (
	"context"
	"testing"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
)

func TestVerifyIntegritySucceeds(t *testing.T) {
	path := storePath(t)
	s, err := Init(path, nil, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	if _, err := s.Add("a.txt", []byte("alpha content"), 0644, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("b.txt", []byte("beta content"), 0644, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	root, err := s.Commit(context.Background(), "m", "a")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	report, err := s.VerifyIntegrity(root)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !report.Valid {
		t.Errorf("report.Valid = false, want true: %+v", report)
	}
	if report.TotalFiles != 2 || report.ValidFiles != 2 {
		t.Errorf("TotalFiles/ValidFiles = %d/%d, want 2/2", report.TotalFiles, report.ValidFiles)
	}
	for _, fr := range report.Files {
		if !fr.Valid {
			t.Errorf("file %q reported invalid: %+v", fr.Path, fr)
		}
		for _, cr := range fr.Chunks {
			if !cr.Valid {
				t.Errorf("file %q chunk %d reported invalid: %+v", fr.Path, cr.Index, cr)
			}
		}
	}
}

func TestVerifyIntegrityDefaultsToCurrentRoot(t *testing.T) {
	path := storePath(t)
	s, err := Init(path, nil, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	if _, err := s.Add("a.txt", []byte("content"), 0644, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Commit(context.Background(), "m", "a"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	report, err := s.VerifyIntegrity(dighash.Zero)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !report.Valid {
		t.Errorf("report.Valid = false, want true")
	}
}
