package services

import (
	"encoding/json"
	"fmt"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// noVerdictReason marks records the model silently skipped. They are
// excluded rather than guessed at, and flagged for manual review.
const noVerdictReason = "no verdict returned by model; needs manual review"

// filteringItem is one record as presented to the model. IDs are
// positions within the batch, not record identities, so the model never
// has to echo long identifiers back.
type filteringItem struct {
	ID      int      `json:"id"`
	Codes   []string `json:"open_codes"`
	Excerpt string   `json:"excerpt,omitempty"`
}

// filteringResponse is the expected model reply for one batch.
type filteringResponse struct {
	Filtering []struct {
		ID            int    `json:"id"`
		Retain        bool   `json:"retain"`
		ExcludeReason string `json:"exclude_reason"`
	} `json:"filtering"`
}

// FilteringConfig builds the stage configuration for relevance
// screening. Records are screened in batches; a failed batch is split in
// half and retried so one bad response never takes out sixty verdicts.
func FilteringConfig(llm driven.LLMService, prompt, promptVersion string, batchSize int, prior *domain.StageResult) StageConfig {
	codeLabels := make(map[int]string, len(prior.Codes))
	for _, c := range prior.Codes {
		codeLabels[c.ID] = c.Label
	}

	return StageConfig{
		Stage:          domain.StageFiltering,
		LLM:            llm,
		SystemPrompt:   prompt,
		PromptVersion:  promptVersion,
		Schema:         StageSchema(domain.StageFiltering),
		BatchSize:      batchSize,
		SplitOnFailure: true,
		CallTimeout:    filteringTimeout,
		Precheck:       requireCoded,
		BuildPrompt: func(batch []domain.Record) (string, error) {
			return buildFilteringPrompt(batch, codeLabels)
		},
		Parse: parseFiltering,
		Finalise: func(res *domain.StageResult) error {
			return restrictCodeTable(res, prior.Codes)
		},
	}
}

func buildFilteringPrompt(batch []domain.Record, codeLabels map[int]string) (string, error) {
	items := make([]filteringItem, len(batch))
	for i, rec := range batch {
		labels := make([]string, 0, len(rec.CodeIDs))
		for _, id := range rec.CodeIDs {
			if label, ok := codeLabels[id]; ok {
				labels = append(labels, label)
			}
		}
		items[i] = filteringItem{
			ID:      i + 1,
			Codes:   labels,
			Excerpt: truncate(rec.Text, excerptCharLimit),
		}
	}

	payload, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Below are coded interview segments (JSON):\n%s\n\n"+
			"Screen each item for relevance as instructed. Return a verdict for every id. "+
			"Reply with JSON only.",
		payload), nil
}

func parseFiltering(rawJSON []byte, batch []domain.Record) (*BatchOutcome, error) {
	var resp filteringResponse
	if err := json.Unmarshal(rawJSON, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	verdicts := make(map[int]struct {
		retain bool
		reason string
	}, len(resp.Filtering))
	for _, v := range resp.Filtering {
		if v.ID < 1 || v.ID > len(batch) {
			continue
		}
		if _, dup := verdicts[v.ID]; dup {
			continue
		}
		verdicts[v.ID] = struct {
			retain bool
			reason string
		}{v.Retain, v.ExcludeReason}
	}

	if len(verdicts) == 0 {
		return nil, fmt.Errorf("%w: no verdicts for any batch id", domain.ErrMalformedResponse)
	}

	outcome := &BatchOutcome{}
	for i, rec := range batch {
		v, ok := verdicts[i+1]
		if !ok {
			rec.MarkRetained(false, noVerdictReason)
			outcome.Excluded = append(outcome.Excluded, rec)
			continue
		}
		rec.MarkRetained(v.retain, v.reason)
		if v.retain {
			outcome.Records = append(outcome.Records, rec)
		} else {
			outcome.Excluded = append(outcome.Excluded, rec)
		}
	}
	return outcome, nil
}

// restrictCodeTable carries the open-code table forward restricted to
// retained records. Codes left with no retained evidence are removed by
// the anchoring prune that follows.
func restrictCodeTable(res *domain.StageResult, codes []domain.Code) error {
	retained := make(map[string]struct{}, len(res.Records))
	for _, rec := range res.Records {
		retained[rec.ID] = struct{}{}
	}

	out := make([]domain.Code, 0, len(codes))
	for _, c := range codes {
		kept := c
		kept.RecordIDs = nil
		for _, id := range c.RecordIDs {
			if _, ok := retained[id]; ok {
				kept.RecordIDs = append(kept.RecordIDs, id)
			}
		}
		out = append(out, kept)
	}
	res.Codes = out
	return nil
}
