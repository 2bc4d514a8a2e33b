// Package ingest splits unified diffs into bounded, language-tagged chunks.
package ingest

import (
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"sift-agent/src/logger"
	"sift-agent/src/review"
)

const (
	// DefaultMaxChunkLines bounds chunk size when the configuration does not.
	DefaultMaxChunkLines = 200

	fileHeader = "diff --git "
	hunkPrefix = "@@ "
)

// Chunker converts diff text into chunks.
type Chunker struct {
	maxLines int
	logger   logger.Logger
}

// NewChunker creates a chunker. maxLines <= 0 uses DefaultMaxChunkLines.
func NewChunker(maxLines int, log logger.Logger) *Chunker {
	if maxLines <= 0 {
		maxLines = DefaultMaxChunkLines
	}
	return &Chunker{maxLines: maxLines, logger: logger.OrSilent(log)}
}

// Chunk splits diff into chunks, in file order then line order.
// Malformed file sections and hunks are skipped with a warning.
func (c *Chunker) Chunk(diff string) []review.Chunk {
	if strings.TrimSpace(diff) == "" {
		return []review.Chunk{}
	}

	chunks := []review.Chunk{}
	for _, section := range splitSections(diff) {
		files, err := c.parseSection(section)
		if err != nil {
			c.logger.Warn("[Chunker] Skipping malformed diff section for %s: %v", sectionName(section), err)
			continue
		}
		for _, f := range files {
			chunks = append(chunks, c.chunkFile(f)...)
		}
	}
	return chunks
}

// parseSection parses one file section. gitdiff rejects the whole section
// when any hunk is malformed, so on failure each hunk is parsed on its own
// behind the section's file headers and only the bad hunks are dropped.
func (c *Chunker) parseSection(section string) ([]*gitdiff.File, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(section))
	if err == nil {
		return files, nil
	}

	preamble, hunks := splitHunks(section)
	if len(hunks) < 2 {
		return nil, err
	}

	var file *gitdiff.File
	for _, hunk := range hunks {
		parsed, _, herr := gitdiff.Parse(strings.NewReader(preamble + hunk))
		if herr != nil || len(parsed) != 1 {
			c.logger.Warn("[Chunker] Skipping malformed hunk in %s (%s): %v", sectionName(section), hunkHeader(hunk), herr)
			continue
		}
		if file == nil {
			file = parsed[0]
			continue
		}
		file.TextFragments = append(file.TextFragments, parsed[0].TextFragments...)
	}
	if file == nil {
		return nil, err
	}
	return []*gitdiff.File{file}, nil
}

// chunkFile groups a file's hunks into chunks of at most maxLines new-file lines.
func (c *Chunker) chunkFile(f *gitdiff.File) []review.Chunk {
	if f.IsDelete || f.IsBinary {
		return nil
	}

	filePath := f.NewName
	if filePath == "" {
		filePath = f.OldName
	}
	language := DetectLanguage(filePath)

	var chunks []review.Chunk
	var current []review.Line

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, newChunk(filePath, language, current))
		current = nil
	}

	for _, frag := range f.TextFragments {
		if err := frag.Validate(); err != nil {
			c.logger.Warn("[Chunker] Skipping malformed hunk in %s at +%d: %v", filePath, frag.NewPosition, err)
			continue
		}

		lines := fragmentLines(frag)
		if len(lines) == 0 {
			continue
		}

		// Keep whole hunks together when they fit alongside what is buffered.
		if len(current)+len(lines) > c.maxLines {
			flush()
		}
		for len(lines) > c.maxLines {
			current = lines[:c.maxLines]
			flush()
			lines = lines[c.maxLines:]
		}
		current = append(current, lines...)
	}
	flush()

	return chunks
}

// fragmentLines returns the new-file lines of a hunk with absolute numbers.
func fragmentLines(frag *gitdiff.TextFragment) []review.Line {
	var lines []review.Line
	lineNum := int(frag.NewPosition)
	for _, l := range frag.Lines {
		text := strings.TrimSuffix(l.Line, "\n")
		switch l.Op {
		case gitdiff.OpAdd:
			lines = append(lines, review.Line{Number: lineNum, Op: review.OpAdd, Text: text})
			lineNum++
		case gitdiff.OpContext:
			lines = append(lines, review.Line{Number: lineNum, Op: review.OpContext, Text: text})
			lineNum++
		}
	}
	return lines
}

func newChunk(filePath, language string, lines []review.Line) review.Chunk {
	owned := make([]review.Line, len(lines))
	copy(owned, lines)

	texts := make([]string, len(owned))
	for i, l := range owned {
		texts[i] = l.Text
	}

	return review.Chunk{
		FilePath:  filePath,
		StartLine: owned[0].Number,
		EndLine:   owned[len(owned)-1].Number,
		Content:   strings.Join(texts, "\n"),
		Language:  language,
		Lines:     owned,
	}
}

// splitSections splits a multi-file diff on "diff --git" headers. A diff
// without those headers is returned as a single section.
func splitSections(diff string) []string {
	var sections []string
	var current strings.Builder

	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, fileHeader) && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if strings.TrimSpace(current.String()) != "" {
		sections = append(sections, current.String())
	}
	return sections
}

// splitHunks separates a file section into the header lines before the first
// hunk and the hunks themselves, each starting at its "@@" line.
func splitHunks(section string) (string, []string) {
	var preamble strings.Builder
	var hunks []string
	var current strings.Builder

	for _, line := range strings.SplitAfter(section, "\n") {
		if strings.HasPrefix(line, hunkPrefix) {
			if current.Len() > 0 {
				hunks = append(hunks, current.String())
				current.Reset()
			}
			current.WriteString(line)
			continue
		}
		if current.Len() > 0 {
			current.WriteString(line)
			continue
		}
		preamble.WriteString(line)
	}
	if current.Len() > 0 {
		hunks = append(hunks, current.String())
	}
	return preamble.String(), hunks
}

func hunkHeader(hunk string) string {
	header, _, _ := strings.Cut(hunk, "\n")
	return header
}

// sectionName extracts a best-effort path for log messages.
func sectionName(section string) string {
	for _, line := range strings.Split(section, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			return strings.TrimPrefix(line, "+++ b/")
		}
		if strings.HasPrefix(line, fileHeader) {
			fields := strings.Fields(line)
			if len(fields) == 4 {
				return strings.TrimPrefix(fields[3], "b/")
			}
		}
	}
	return "unknown"
}
