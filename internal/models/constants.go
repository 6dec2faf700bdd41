package models

const (
	// ChapterRegex matches chapter headings on a page, e.g. "Chapter 3 Probability Topics".
	ChapterRegex = `(?mi)^\s*(chapter\s+\d+[^\n]*)$`
	// UnknownChapter is assigned to text that appears before the first chapter heading.
	UnknownChapter = "Unknown"
	// AcceptToken is the only evaluator output accepted as a positive verdict.
	AcceptToken = "YES"
	// RejectToken is the evaluator output for a negative verdict.
	RejectToken = "NO"
)

var (
	SelectChaptersPromptTemplate = `You are planning how to answer a textbook question.

Question:
%s

Available chapters:
%s

Return ONLY a JSON array of chapter titles to consult, chosen from the available chapters.
Do not include any explanation or extra text.

Example:
["1.2 Data, Sampling, and Variation in Data and Sampling"]
`

	SynthesizePromptTemplate = `You are a helpful teaching assistant. Use only the following textbook excerpts to answer the question.
If the answer is not stated explicitly, give your best answer from what the excerpts imply.

Textbook content:
%s
Question:
%s

Answer clearly and concisely.
`

	EvaluatePromptTemplate = `Evaluate the following answer to the question.

Question:
%s

Answer:
%s

Is this answer COMPLETE and WELL-SUPPORTED by textbook content?
Respond with ONLY one word: YES or NO.
`

	// ChunkHeaderTemplate prefixes each excerpt in the synthesis prompt.
	ChunkHeaderTemplate = "[%s | Page %d]\n"
)
