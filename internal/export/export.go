// Package export packages completed results and document text for
// download.
package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/schemaflow/schemaflow/constants"
	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/entity"
)

// Attachment is a downloadable payload with its suggested filename and
// content type.
type Attachment struct {
	Filename    string
	ContentType string
	Body        []byte
}

// JobResult returns a completed job's merged record as a pretty-printed
// JSON attachment named after the document.
func JobResult(job *entity.ProcessingJob, documentTitle string) (Attachment, error) {
	if job.Status != constants.JobStatusCompleted {
		return Attachment{}, common.NewAppError("JOB_NOT_COMPLETED",
			fmt.Sprintf("job is %s, result is only available once completed", job.Status), nil)
	}
	var v any
	if err := json.Unmarshal(job.ResultData, &v); err != nil {
		return Attachment{}, common.NewAppError("RESULT_CORRUPT", "stored result is not valid JSON", err)
	}
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Attachment{}, common.NewAppError("RESULT_CORRUPT", "encode result", err)
	}
	return Attachment{
		Filename:    safeName(documentTitle) + "_extraction.json",
		ContentType: "application/json",
		Body:        body,
	}, nil
}

// DocumentText returns a document's raw text as a plain-text attachment.
func DocumentText(doc *entity.Document) Attachment {
	return Attachment{
		Filename:    safeName(doc.Title) + ".txt",
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(doc.RawText),
	}
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func safeName(title string) string {
	name := unsafeName.ReplaceAllString(strings.TrimSpace(title), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "document"
	}
	return name
}
