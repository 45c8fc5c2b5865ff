package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// Splitter cuts plain-text résumés into section-tagged chunks. It stands in for
// the external indexer when fixtures are seeded locally.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

var sectionHeaders = map[string]string{
	"summary":          "summary",
	"profile":          "summary",
	"about":            "summary",
	"experience":       "experience",
	"work experience":  "experience",
	"employment":       "experience",
	"education":        "education",
	"skills":           "skills",
	"technical skills": "skills",
	"certifications":   "certifications",
	"certificates":     "certifications",
	"projects":         "projects",
	"languages":        "languages",
}

type section struct {
	kind string
	text strings.Builder
}

// SplitResume returns chunks of one résumé. Text before the first recognised
// header is tagged as summary. meta is copied into every chunk.
func (s *Splitter) SplitResume(documentID, text string, meta map[string]any) ([]domain.Chunk, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("document %s is not valid UTF-8", documentID)
	}

	var sections []*section
	current := &section{kind: "summary"}
	for _, line := range strings.Split(text, "\n") {
		if kind, ok := headerKind(line); ok {
			sections = append(sections, current)
			current = &section{kind: kind}
			continue
		}
		current.text.WriteString(line)
		current.text.WriteByte('\n')
	}
	sections = append(sections, current)

	var out []domain.Chunk
	for _, sec := range sections {
		for _, window := range s.Split(sec.text.String()) {
			metadata := make(map[string]any, len(meta)+1)
			for k, v := range meta {
				metadata[k] = v
			}
			metadata[domain.MetaSectionType] = sec.kind
			out = append(out, domain.Chunk{
				ID:         fmt.Sprintf("%s-%03d", documentID, len(out)+1),
				DocumentID: documentID,
				Text:       window,
				Metadata:   metadata,
			})
		}
	}
	return out, nil
}

func headerKind(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimLeft(trimmed, "#")
	trimmed = strings.TrimRight(strings.TrimSpace(trimmed), ":")
	if trimmed == "" || utf8.RuneCountInString(trimmed) > 32 {
		return "", false
	}
	kind, ok := sectionHeaders[strings.ToLower(trimmed)]
	return kind, ok
}

// Split cuts text into overlapping rune windows.
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
