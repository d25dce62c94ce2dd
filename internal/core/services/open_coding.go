package services

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// openCodingResponse is the expected model reply for one record.
type openCodingResponse struct {
	Codes []struct {
		Code string `json:"code"`
		Span string `json:"span"`
	} `json:"codes"`
}

// OpenCodingConfig builds the stage configuration for open coding.
// One call per record: the question is context only, codes are derived
// from the answer alone.
func OpenCodingConfig(llm driven.LLMService, prompt, promptVersion string) StageConfig {
	return StageConfig{
		Stage:         domain.StageOpenCoding,
		LLM:           llm,
		SystemPrompt:  prompt,
		PromptVersion: promptVersion,
		Schema:        StageSchema(domain.StageOpenCoding),
		BatchSize:     1,
		CallTimeout:   openCodingTimeout,
		BuildPrompt:   buildOpenCodingPrompt,
		Parse:         parseOpenCoding,
		Finalise:      mergeCodeTable,
	}
}

func buildOpenCodingPrompt(batch []domain.Record) (string, error) {
	rec := batch[0]
	return fmt.Sprintf(
		"Below is one interview question/answer segment.\n"+
			"Question: %s\n"+
			"Answer: %s\n\n"+
			"Apply open coding to the answer only; the question is context, never code it. "+
			"Reply with JSON only.",
		rec.Question, rec.Text), nil
}

func parseOpenCoding(rawJSON []byte, batch []domain.Record) (*BatchOutcome, error) {
	var resp openCodingResponse
	if err := json.Unmarshal(rawJSON, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	rec := batch[0]
	outcome := &BatchOutcome{Records: []domain.Record{rec}}
	for _, c := range resp.Codes {
		label := domain.NormaliseLabel(c.Code)
		if label == "" {
			continue
		}
		// IDs stay zero here; mergeCodeTable assigns them once all
		// records are in and ordered.
		outcome.Codes = append(outcome.Codes, domain.Code{
			Label:     label,
			Span:      c.Span,
			RecordIDs: []string{rec.ID},
		})
	}
	if len(outcome.Codes) == 0 {
		return nil, fmt.Errorf("%w: no usable codes in response", domain.ErrMalformedResponse)
	}
	return outcome, nil
}

// mergeCodeTable deduplicates the raw per-record codes into the global
// code table. Labels merge across records; IDs are sequential in
// first-seen order walking records in input order, so repeated runs over
// the same responses produce the same table.
func mergeCodeTable(res *domain.StageResult) error {
	byRecord := make(map[string][]domain.Code)
	for _, c := range res.Codes {
		if len(c.RecordIDs) != 1 {
			continue
		}
		byRecord[c.RecordIDs[0]] = append(byRecord[c.RecordIDs[0]], c)
	}

	table := make([]domain.Code, 0, len(res.Codes))
	index := make(map[string]int) // label -> position in table

	for i := range res.Records {
		rec := &res.Records[i]
		rec.CodeIDs = nil
		seen := make(map[int]struct{})

		for _, raw := range byRecord[rec.ID] {
			pos, ok := index[raw.Label]
			if !ok {
				pos = len(table)
				index[raw.Label] = pos
				table = append(table, domain.Code{
					ID:    pos + 1,
					Label: raw.Label,
					Span:  raw.Span,
				})
			}
			code := &table[pos]
			code.RecordIDs = domain.UnionRecordIDs(code.RecordIDs, []string{rec.ID})

			if _, dup := seen[code.ID]; !dup {
				seen[code.ID] = struct{}{}
				rec.CodeIDs = append(rec.CodeIDs, code.ID)
			}
		}
		sort.Ints(rec.CodeIDs)
	}

	res.Codes = table
	return nil
}
