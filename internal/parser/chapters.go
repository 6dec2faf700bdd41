package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"textbook-rag/internal/models"
)

// Page is the extracted text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

type chunkerState struct {
	chapter string

	buf          strings.Builder
	startPage    int
	startChapter string

	result []models.ChunkRecord
}

// chunkPages walks pages in order, tracks the current chapter from heading matches and
// packs paragraphs into chunks shorter than maxChars.
func chunkPages(pages []Page, chapterRe *regexp.Regexp, maxChars int) []models.ChunkRecord {
	state := chunkerState{chapter: models.UnknownChapter}
	for _, page := range pages {
		for _, para := range paragraphRe.Split(page.Text, -1) {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			processParagraph(&state, para, page.Number, chapterRe, maxChars)
		}
	}
	flush(&state)
	return state.result
}

func processParagraph(state *chunkerState, para string, page int, chapterRe *regexp.Regexp, maxChars int) {
	if m := chapterRe.FindStringSubmatch(para); m != nil {
		// chunks never span two chapters
		flush(state)
		state.chapter = chapterTitle(m)
	}

	if len(para) >= maxChars {
		flush(state)
		for _, piece := range splitLong(para, maxChars) {
			state.result = append(state.result, models.ChunkRecord{
				ChapterTitle: state.chapter,
				PageNum:      page,
				ChunkText:    piece,
			})
		}
		return
	}

	if state.buf.Len() > 0 && state.buf.Len()+2+len(para) >= maxChars {
		flush(state)
	}
	if state.buf.Len() == 0 {
		state.startPage = page
		state.startChapter = state.chapter
	} else {
		state.buf.WriteString("\n\n")
	}
	state.buf.WriteString(para)
}

func flush(state *chunkerState) {
	text := strings.TrimSpace(state.buf.String())
	state.buf.Reset()
	if text == "" {
		return
	}
	state.result = append(state.result, models.ChunkRecord{
		ChapterTitle: state.startChapter,
		PageNum:      state.startPage,
		ChunkText:    text,
	})
}

// chapterTitle prefers the first capture group and collapses runs of whitespace.
func chapterTitle(m []string) string {
	title := m[0]
	if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
		title = m[1]
	}
	return strings.Join(strings.Fields(title), " ")
}

// splitLong cuts an oversized paragraph into pieces shorter than maxChars,
// breaking at the last whitespace in each window when there is one.
func splitLong(content string, maxChars int) []string {
	var pieces []string
	for len(content) >= maxChars {
		end := strings.LastIndexAny(content[:maxChars-1], " \n\t")
		if end <= 0 {
			end = maxChars - 1
			for end > 1 && !utf8.RuneStart(content[end]) {
				end--
			}
		}
		if piece := strings.TrimSpace(content[:end]); piece != "" {
			pieces = append(pieces, piece)
		}
		content = strings.TrimSpace(content[end:])
	}
	if content != "" {
		pieces = append(pieces, content)
	}
	return pieces
}
