// Package chunker splits documents into chunks suitable for retrieval indexing.
package chunker

import "strings"

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text recursively on paragraph, line and word boundaries,
// keeping chunks at or under ChunkSize characters with ChunkOverlap characters
// of overlap between adjacent chunks.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a splitter. Non-positive size falls back to 1000 characters,
// negative overlap to 200.
func New(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 200
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split returns the chunks of text, in document order. Empty chunks are dropped.
func (s *Splitter) Split(text string) []string {
	return s.split(text, defaultSeparators)
}

func (s *Splitter) split(text string, separators []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sep := separators[len(separators)-1]
	rest := separators
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = fixedPieces(text, s.chunkSize)
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks []string
	var pending []string
	fresh := false
	flush := func() {
		if len(pending) == 0 {
			return
		}
		chunk := strings.TrimSpace(strings.Join(pending, sep))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		// Keep a tail of pieces as overlap for the next chunk.
		var kept []string
		total := 0
		for i := len(pending) - 1; i >= 0; i-- {
			total += len(pending[i]) + len(sep)
			if total > s.chunkOverlap {
				break
			}
			kept = append([]string{pending[i]}, kept...)
		}
		pending = kept
		fresh = false
	}

	for _, piece := range pieces {
		if len(piece) > s.chunkSize && len(rest) > 0 {
			flush()
			pending = nil
			fresh = false
			chunks = append(chunks, s.split(piece, rest)...)
			continue
		}
		if joinedLen(pending, sep)+len(piece) > s.chunkSize {
			flush()
		}
		pending = append(pending, piece)
		if strings.TrimSpace(piece) != "" {
			fresh = true
		}
	}
	// A tail holding only carried-over overlap is already covered by the
	// previous chunk.
	if fresh {
		if chunk := strings.TrimSpace(strings.Join(pending, sep)); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func joinedLen(pieces []string, sep string) int {
	n := 0
	for _, p := range pieces {
		n += len(p) + len(sep)
	}
	return n
}

func fixedPieces(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
