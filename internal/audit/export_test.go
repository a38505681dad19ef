package audit

import (
	"strings"
	"testing"
	"time"
)

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	entries := []Entry{
		{ID: 1, SessionID: "s1", Flag: "csv_loaded", Value: "true", Source: "api", ChangedAt: ts},
		{ID: 2, SessionID: "s1", Flag: "tpr_workflow_active", Value: "true", Source: "ctl", ChangedAt: ts.Add(time.Minute)},
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, entries); err != nil {
		t.Fatalf("WriteCSV() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "id,session_id,flag,value,source,changed_at" {
		t.Errorf("header: got %q", lines[0])
	}
	if lines[1] != "1,s1,csv_loaded,true,api,2026-08-25T10:30:00Z" {
		t.Errorf("row 1: got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "2,s1,tpr_workflow_active") {
		t.Errorf("row 2: got %q", lines[2])
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var sb strings.Builder
	if err := WriteCSV(&sb, nil); err != nil {
		t.Fatalf("WriteCSV() error: %v", err)
	}
	if strings.TrimSpace(sb.String()) != "id,session_id,flag,value,source,changed_at" {
		t.Errorf("expected header only, got %q", sb.String())
	}
}
