package export

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/schemaflow/schemaflow/constants"
	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/entity"
)

func TestJobResult(t *testing.T) {
	t.Run("completed job becomes a pretty attachment", func(t *testing.T) {
		job := &entity.ProcessingJob{
			Status:     constants.JobStatusCompleted,
			ResultData: json.RawMessage(`{"vendor":"Acme","total":99.5}`),
		}
		att, err := JobResult(job, "Q3 Invoice #42")
		if err != nil {
			t.Fatalf("JobResult() error = %v", err)
		}
		if att.Filename != "Q3_Invoice_42_extraction.json" {
			t.Errorf("filename = %q", att.Filename)
		}
		if att.ContentType != "application/json" {
			t.Errorf("content type = %q", att.ContentType)
		}
		if !strings.Contains(string(att.Body), "\n  \"total\"") {
			t.Errorf("body not indented: %q", att.Body)
		}
	})

	t.Run("non-completed job refused", func(t *testing.T) {
		for _, status := range []constants.JobStatus{
			constants.JobStatusPending,
			constants.JobStatusProcessing,
			constants.JobStatusRetrying,
			constants.JobStatusFailed,
		} {
			_, err := JobResult(&entity.ProcessingJob{Status: status}, "doc")
			var ae *common.AppError
			if !errors.As(err, &ae) || ae.Code != "JOB_NOT_COMPLETED" {
				t.Errorf("status %s: error = %v", status, err)
			}
		}
	})

	t.Run("corrupt stored result refused", func(t *testing.T) {
		job := &entity.ProcessingJob{
			Status:     constants.JobStatusCompleted,
			ResultData: json.RawMessage(`{"broken`),
		}
		_, err := JobResult(job, "doc")
		var ae *common.AppError
		if !errors.As(err, &ae) || ae.Code != "RESULT_CORRUPT" {
			t.Fatalf("error = %v", err)
		}
	})
}

func TestDocumentText(t *testing.T) {
	att := DocumentText(&entity.Document{Title: "meeting notes", RawText: "agenda\nitems"})
	if att.Filename != "meeting_notes.txt" {
		t.Errorf("filename = %q", att.Filename)
	}
	if string(att.Body) != "agenda\nitems" {
		t.Errorf("body = %q", att.Body)
	}
}

func TestSafeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Q3 Invoice #42", "Q3_Invoice_42"},
		{"  spaced  ", "spaced"},
		{"../../etc/passwd", "etc_passwd"},
		{"saldo überfällig", "saldo_berf_llig"},
		{"", "document"},
		{"___", "document"},
	}
	for _, tc := range cases {
		if got := safeName(tc.in); got != tc.want {
			t.Errorf("safeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
