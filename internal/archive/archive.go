// Package archive implements the transcript-archival side channel: a
// markdown mirror of every ingested conversation, written alongside the
// primary Postgres store so operators can grep or diff history without a
// database connection. It implements ingest.Archiver.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fabfab/convo-rag/internal/domain"
)

// Archiver mirrors conversations to markdown transcripts under a root
// directory, one file per conversation, guarded by a per-conversation lock
// so concurrent re-archival (e.g. a retried ingest) cannot interleave writes.
type Archiver struct {
	root string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New initialises an Archiver rooted at the provided directory.
func New(root string) (*Archiver, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &Archiver{root: root, locks: make(map[int64]*sync.Mutex)}, nil
}

// Archive writes conv as a markdown transcript, overwriting any prior
// archive for the same conversation ID.
func (a *Archiver) Archive(ctx context.Context, conv domain.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := a.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	path := a.transcriptPath(conv.ID)
	body := renderTranscript(conv)

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// Load reads back a previously archived transcript's raw markdown, for
// operator inspection or debugging. Returns os.ErrNotExist if none exists.
func (a *Archiver) Load(conversationID int64) (string, error) {
	data, err := os.ReadFile(a.transcriptPath(conversationID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func renderTranscript(conv domain.Conversation) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(fmt.Sprintf("conversation_id: %d\n", conv.ID))
	if conv.ScenarioTitle != nil {
		b.WriteString(fmt.Sprintf("scenario_title: %s\n", *conv.ScenarioTitle))
	}
	if conv.OriginalTitle != nil {
		b.WriteString(fmt.Sprintf("original_title: %s\n", *conv.OriginalTitle))
	}
	if conv.URL != nil {
		b.WriteString(fmt.Sprintf("url: %s\n", *conv.URL))
	}
	b.WriteString(fmt.Sprintf("archived_at: %s\n", time.Now().UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("chunk_count: %d\n", conv.ChunkCount()))
	b.WriteString("---\n\n")

	for _, c := range conv.Chunks {
		b.WriteString(fmt.Sprintf("**%s**", c.Author.Name))
		if c.Timestamp != nil {
			b.WriteString(fmt.Sprintf(" _(%s)_", c.Timestamp.UTC().Format(time.RFC3339)))
		}
		b.WriteString(":\n\n")
		b.WriteString(c.Text.String())
		b.WriteString("\n\n")
	}
	return b.String()
}

func (a *Archiver) lockFor(conversationID int64) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	if lock, ok := a.locks[conversationID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	a.locks[conversationID] = lock
	return lock
}

func (a *Archiver) transcriptPath(conversationID int64) string {
	return filepath.Join(a.root, fmt.Sprintf("%d.md", conversationID))
}
