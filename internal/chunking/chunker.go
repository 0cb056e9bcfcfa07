// Package chunking implements the deterministic, pure splitting of ordered
// messages into size-bounded, speaker-aware chunks (C3).
package chunking

import (
	"strings"
	"time"

	"github.com/fabfab/convo-rag/internal/domain"
)

const (
	DefaultMaxChunkChars       = 1000
	DefaultMinChunkChars       = 50
	DefaultSplitOnSpeaker      = true
	messageSeparator           = "\n\n"
)

// InputMessage is one ordered message to be chunked.
type InputMessage struct {
	Author    domain.AuthorInfo
	Text      string
	Timestamp *time.Time
}

// Params controls chunk boundary decisions.
type Params struct {
	MaxChunkChars       int
	MinChunkChars       int
	SplitOnSpeakerChange bool
}

// DefaultParams returns spec.md §4.3's defaults.
func DefaultParams() Params {
	return Params{
		MaxChunkChars:        DefaultMaxChunkChars,
		MinChunkChars:        DefaultMinChunkChars,
		SplitOnSpeakerChange: DefaultSplitOnSpeaker,
	}
}

func (p Params) normalized() Params {
	if p.MaxChunkChars <= 0 {
		p.MaxChunkChars = DefaultMaxChunkChars
	}
	if p.MinChunkChars <= 0 {
		p.MinChunkChars = DefaultMinChunkChars
	}
	return p
}

// Draft is one emitted chunk before persistence assigns it an ID.
type Draft struct {
	OrderIndex int
	Text       string
	Author     domain.AuthorInfo
	Timestamp  *time.Time
}

type builder struct {
	parts         []string
	dominantAuthor domain.AuthorInfo
	timestamp     *time.Time
	length        int
}

func (b *builder) empty() bool { return len(b.parts) == 0 }

func (b *builder) add(msg InputMessage) {
	if b.empty() {
		b.dominantAuthor = msg.Author
		b.timestamp = msg.Timestamp
	}
	b.parts = append(b.parts, msg.Text)
	b.length += len(msg.Text)
	if len(b.parts) > 1 {
		b.length += len(messageSeparator)
	}
}

func (b *builder) text() string {
	return strings.Join(b.parts, messageSeparator)
}

func (b *builder) reset() {
	b.parts = nil
	b.length = 0
	b.dominantAuthor = domain.AuthorInfo{}
	b.timestamp = nil
}

// Chunk splits messages into chunk drafts. The algorithm is pure and
// deterministic: identical input and params always yield byte-identical
// boundaries (spec.md §4.3 Determinism, property 7 of §8).
func Chunk(messages []InputMessage, params Params) []Draft {
	params = params.normalized()

	var drafts []Draft
	cur := &builder{}

	emit := func() {
		if cur.empty() {
			return
		}
		drafts = append(drafts, Draft{
			OrderIndex: len(drafts),
			Text:       cur.text(),
			Author:     cur.dominantAuthor,
			Timestamp:  cur.timestamp,
		})
		cur.reset()
	}

	for i, msg := range messages {
		for _, piece := range splitOversizedMessage(msg, params.MaxChunkChars) {
			pieceLen := len(piece.Text)
			wouldExceed := !cur.empty() && cur.length+len(messageSeparator)+pieceLen > params.MaxChunkChars
			speakerChanged := params.SplitOnSpeakerChange && !cur.empty() && piece.Author.Name != cur.dominantAuthor.Name

			// A size overflow always forces a split: the current chunk
			// cannot grow further without violating max_chunk_chars. A bare
			// speaker change only forces a split once the current chunk has
			// already reached min_chunk_chars, or no more input remains to
			// merge into it (spec.md §4.3 rule 4).
			shouldSplit := wouldExceed ||
				(speakerChanged && (cur.length >= params.MinChunkChars || isLastMergeable(messages, i)))

			if shouldSplit {
				emit()
			}
			cur.add(piece)
		}
	}
	emit()

	return drafts
}

// isLastMergeable reports whether no more input remains after message index
// i that could still be merged into the current short chunk.
func isLastMergeable(messages []InputMessage, i int) bool {
	return i >= len(messages)-1
}

// splitOversizedMessage splits a single message into pieces no longer than
// maxChars, breaking at the nearest whitespace boundary not exceeding the
// limit. It never drops content.
func splitOversizedMessage(msg InputMessage, maxChars int) []InputMessage {
	if maxChars <= 0 || len(msg.Text) <= maxChars {
		return []InputMessage{msg}
	}

	var pieces []InputMessage
	remaining := msg.Text
	for len(remaining) > maxChars {
		cut := lastWhitespaceBefore(remaining, maxChars)
		if cut <= 0 {
			cut = maxChars
		}
		pieces = append(pieces, InputMessage{
			Author:    msg.Author,
			Text:      strings.TrimRight(remaining[:cut], " \t\n"),
			Timestamp: msg.Timestamp,
		})
		remaining = strings.TrimLeft(remaining[cut:], " \t\n")
	}
	if remaining != "" {
		pieces = append(pieces, InputMessage{
			Author:    msg.Author,
			Text:      remaining,
			Timestamp: msg.Timestamp,
		})
	}
	return pieces
}

// lastWhitespaceBefore returns the index just past the last whitespace byte
// among the first limit bytes of text (a cut position), or -1 if none exists.
func lastWhitespaceBefore(text string, limit int) int {
	if limit > len(text) {
		limit = len(text)
	}
	for i := limit; i > 0; i-- {
		if text[i-1] == ' ' || text[i-1] == '\n' || text[i-1] == '\t' {
			return i
		}
	}
	return -1
}
