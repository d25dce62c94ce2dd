// Package interview parses interview transcripts into coding records.
//
// Transcripts are plain text with Q:/A: markers (full-width Q：/A： is
// accepted). Lines without a marker continue the open question or
// answer. A question without any answer lines produces no record.
package interview

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

// Parse splits a transcript into question/answer records. Records get
// fresh uuid IDs and ordinal indexes in transcript order.
func Parse(text string) []domain.Record {
	var records []domain.Record
	var question string
	var answerLines []string
	questionOpen := false

	flush := func() {
		if questionOpen && len(answerLines) > 0 {
			records = append(records, domain.Record{
				ID:       uuid.New().String(),
				Index:    len(records) + 1,
				Question: strings.TrimSpace(question),
				Text:     strings.TrimSpace(strings.Join(answerLines, "\n")),
			})
		}
		answerLines = nil
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if body, ok := cutMarker(line, "Q"); ok {
			flush()
			question = body
			questionOpen = true
			continue
		}

		if body, ok := cutMarker(line, "A"); ok {
			if body != "" {
				answerLines = append(answerLines, body)
			}
			continue
		}

		// Continuation line: extends the answer if one has started,
		// otherwise the question.
		if len(answerLines) > 0 {
			answerLines = append(answerLines, line)
		} else if questionOpen {
			question += " " + line
		}
	}
	flush()

	return records
}

// ParseFile reads a transcript file and parses it.
func ParseFile(path string) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return Parse(string(data)), nil
}

// cutMarker strips a leading "Q:" or "Q：" style marker and returns the
// remainder trimmed.
func cutMarker(line, marker string) (string, bool) {
	for _, sep := range []string{":", "："} {
		if rest, ok := strings.CutPrefix(line, marker+sep); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}
