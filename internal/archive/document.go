package archive

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ingest"
)

// ErrUnsupportedFileType is returned when an uploaded document's extension
// is not recognised.
var ErrUnsupportedFileType = fmt.Errorf("unsupported file type")

var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// DocumentToIngestRequest bridges an uploaded document into an ingest
// request instead of the teacher's original ad hoc prompt-stuffing: the raw
// text becomes a single synthetic "document" message, which the ingest
// orchestrator (C7) then chunks, embeds, and persists like any other
// conversation, making uploaded material searchable and citable.
func DocumentToIngestRequest(originalName string, data []byte, uploadedAt time.Time) (ingest.Request, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".txt"
	}
	if !supportedExtensions[ext] {
		return ingest.Request{}, ErrUnsupportedFileType
	}

	author, err := domain.NewAuthorInfo(originalName, domain.AuthorSystem)
	if err != nil {
		return ingest.Request{}, err
	}

	title := originalName
	ts := uploadedAt.UTC()

	return ingest.Request{
		ScenarioTitle: &title,
		Messages: []ingest.InputMessage{
			{
				Author:    author,
				Text:      string(data),
				Timestamp: &ts,
			},
		},
		PartialEmbeddings: true,
	}, nil
}
