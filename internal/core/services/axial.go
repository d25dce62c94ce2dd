package services

import (
	"encoding/json"
	"fmt"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// axialResponse is the expected model reply for the corpus call.
type axialResponse struct {
	AxialCoding []struct {
		AxialCode string `json:"axial_code"`
		MemberIDs []int  `json:"member_ids"`
	} `json:"axial_coding"`
}

// AxialCodingConfig builds the stage configuration for axial coding.
// Grouping needs the whole retained code table at once, so this is a
// single corpus-level call; a failure here is a stage failure.
func AxialCodingConfig(llm driven.LLMService, prompt, promptVersion string, prior *domain.StageResult) StageConfig {
	return StageConfig{
		Stage:         domain.StageAxialCoding,
		LLM:           llm,
		SystemPrompt:  prompt,
		PromptVersion: promptVersion,
		Schema:        StageSchema(domain.StageAxialCoding),
		BatchSize:     0,
		CallTimeout:   axialCodingTimeout,
		Precheck:      requireScreened,
		BuildPrompt: func(batch []domain.Record) (string, error) {
			return buildAxialPrompt(prior.Codes)
		},
		Parse: func(rawJSON []byte, batch []domain.Record) (*BatchOutcome, error) {
			return parseAxialCoding(rawJSON, batch, prior.Codes)
		},
		Finalise: func(res *domain.StageResult) error {
			res.Codes = prior.Codes
			return nil
		},
	}
}

func buildAxialPrompt(codes []domain.Code) (string, error) {
	type item struct {
		ID   int    `json:"id"`
		Text string `json:"text"`
	}
	items := make([]item, 0, len(codes))
	for _, c := range codes {
		if len(c.RecordIDs) == 0 {
			continue
		}
		items = append(items, item{ID: c.ID, Text: c.Label})
	}

	payload, err := json.Marshal(map[string]any{"open_codes": items})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Below are the retained open codes (JSON):\n%s\n\n"+
			"Group them into axial categories as instructed. Every member_id must come "+
			"from the list above. Reply with JSON only.",
		payload), nil
}

func parseAxialCoding(rawJSON []byte, batch []domain.Record, codes []domain.Code) (*BatchOutcome, error) {
	var resp axialResponse
	if err := json.Unmarshal(rawJSON, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	codeByID := make(map[int]domain.Code, len(codes))
	for _, c := range codes {
		codeByID[c.ID] = c
	}

	outcome := &BatchOutcome{Records: passthroughRecords(batch)}
	catIndex := make(map[string]int)

	for _, g := range resp.AxialCoding {
		label := domain.NormaliseLabel(g.AxialCode)
		if label == "" {
			continue
		}

		pos, ok := catIndex[label]
		if !ok {
			pos = len(outcome.Categories)
			catIndex[label] = pos
			outcome.Categories = append(outcome.Categories, domain.Category{Label: label})
		}
		cat := &outcome.Categories[pos]

		for _, id := range g.MemberIDs {
			code, known := codeByID[id]
			if !known {
				outcome.Warnings = append(outcome.Warnings,
					fmt.Sprintf("category %q references unknown code id %d", label, id))
				continue
			}
			cat.MemberCodeIDs = append(cat.MemberCodeIDs, id)
			cat.RecordIDs = domain.UnionRecordIDs(cat.RecordIDs, code.RecordIDs)
		}
	}

	if len(outcome.Categories) == 0 {
		return nil, fmt.Errorf("%w: no usable categories in response", domain.ErrMalformedResponse)
	}

	annotateRecordCategories(outcome)
	return outcome, nil
}

// annotateRecordCategories writes each record's category labels from the
// categories whose member codes the record evidences.
func annotateRecordCategories(outcome *BatchOutcome) {
	memberOf := make(map[int][]string) // code id -> category labels
	for _, cat := range outcome.Categories {
		for _, id := range cat.MemberCodeIDs {
			memberOf[id] = append(memberOf[id], cat.Label)
		}
	}

	for i := range outcome.Records {
		rec := &outcome.Records[i]
		rec.Categories = nil
		seen := make(map[string]struct{})
		for _, codeID := range rec.CodeIDs {
			for _, label := range memberOf[codeID] {
				if _, ok := seen[label]; ok {
					continue
				}
				seen[label] = struct{}{}
				rec.Categories = append(rec.Categories, label)
			}
		}
	}
}
