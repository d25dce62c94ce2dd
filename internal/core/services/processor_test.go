package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

func makeRecords(n int) []domain.Record {
	recs := make([]domain.Record, n)
	for i := range recs {
		recs[i] = domain.Record{
			ID:       fmt.Sprintf("r%d", i+1),
			Index:    i + 1,
			Question: "How did it feel?",
			Text:     fmt.Sprintf("answer %d", i+1),
		}
	}
	return recs
}

// passthroughConfig echoes the batch back as the outcome. Prompts encode
// the batch so handlers can key failures off specific records or sizes.
func passthroughConfig(llm driven.LLMService, batchSize int, split bool) StageConfig {
	return StageConfig{
		Stage:          domain.StageOpenCoding,
		LLM:            llm,
		SystemPrompt:   "system",
		BatchSize:      batchSize,
		SplitOnFailure: split,
		BuildPrompt: func(batch []domain.Record) (string, error) {
			ids := make([]string, len(batch))
			for i, rec := range batch {
				ids[i] = rec.ID
			}
			return fmt.Sprintf("size=%d ids=%s", len(batch), strings.Join(ids, ",")), nil
		},
		Parse: func(rawJSON []byte, batch []domain.Record) (*BatchOutcome, error) {
			return &BatchOutcome{Records: domain.CloneRecords(batch)}, nil
		},
	}
}

func userContent(messages []driven.ChatMessage) string {
	for _, m := range messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

func TestStageProcessorAllRecordsSucceed(t *testing.T) {
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return `{"ok": true}`, nil
	}}

	proc := NewStageProcessor(2, nil)
	res, err := proc.Run(context.Background(), makeRecords(5), passthroughConfig(llm, 1, false))
	require.NoError(t, err)

	assert.Len(t, res.Records, 5)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 5, llm.callCount())
	assert.Equal(t, 5, res.Meta.RecordsIn)
	assert.Equal(t, 5, res.Meta.RecordsOut)

	// Concurrency must not reorder output.
	for i, rec := range res.Records {
		assert.Equal(t, i+1, rec.Index)
	}
}

func TestStageProcessorPartialFailureContained(t *testing.T) {
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		if strings.Contains(userContent(messages), "ids=r2") {
			return "sorry, I cannot code this", nil
		}
		return `{"ok": true}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	res, err := proc.Run(context.Background(), makeRecords(3), passthroughConfig(llm, 1, false))
	require.NoError(t, err)

	assert.Len(t, res.Records, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "r2", res.Errors[0].RecordID)
	assert.Contains(t, res.Errors[0].RawResponse, "cannot code")
	assert.Equal(t, 1, res.Meta.ErrorCount)
}

func TestStageProcessorExhaustion(t *testing.T) {
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return "not json", nil
	}}

	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(context.Background(), makeRecords(3), passthroughConfig(llm, 1, false))
	assert.ErrorIs(t, err, domain.ErrStageExhausted)
}

func TestStageProcessorConfigurationErrorIsFatal(t *testing.T) {
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return "", fmt.Errorf("%w: invalid API key", domain.ErrConfiguration)
	}}

	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(context.Background(), makeRecords(3), passthroughConfig(llm, 1, false))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStageProcessorSplitsFailedBatch(t *testing.T) {
	// Batches of more than two records fail; the processor should split
	// 4 -> 2+2 and succeed on the halves.
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		if strings.Contains(userContent(messages), "size=4") {
			return "garbled", nil
		}
		return `{"ok": true}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	res, err := proc.Run(context.Background(), makeRecords(4), passthroughConfig(llm, 4, true))
	require.NoError(t, err)

	assert.Len(t, res.Records, 4)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, llm.callCount())
}

func TestStageProcessorSplitBottomsOutPerRecord(t *testing.T) {
	// One poisoned record keeps failing; splitting should isolate it and
	// save the other three.
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		if strings.Contains(userContent(messages), "r3") {
			return "garbled", nil
		}
		return `{"ok": true}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	res, err := proc.Run(context.Background(), makeRecords(4), passthroughConfig(llm, 4, true))
	require.NoError(t, err)

	assert.Len(t, res.Records, 3)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "r3", res.Errors[0].RecordID)
}

func TestStageProcessorCancelledContext(t *testing.T) {
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return `{"ok": true}`, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(ctx, makeRecords(3), passthroughConfig(llm, 1, false))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStageProcessorEmptyInput(t *testing.T) {
	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(context.Background(), nil, passthroughConfig(&mockLLM{}, 1, false))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStageProcessorPrecheckBlocksRun(t *testing.T) {
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return `{"ok": true}`, nil
	}}
	cfg := passthroughConfig(llm, 1, false)
	cfg.Precheck = func(input []domain.Record) error {
		return fmt.Errorf("%w: input not coded", domain.ErrStageOrder)
	}

	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(context.Background(), makeRecords(2), cfg)
	assert.ErrorIs(t, err, domain.ErrStageOrder)
	assert.Equal(t, 0, llm.callCount())
}

func TestStageProcessorProgressNotifications(t *testing.T) {
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		if strings.Contains(userContent(messages), "ids=r1") {
			return "garbled", nil
		}
		return `{"ok": true}`, nil
	}}

	var done, errored int
	proc := NewStageProcessor(1, func(d, e int) {
		done += d
		errored += e
	})
	_, err := proc.Run(context.Background(), makeRecords(3), passthroughConfig(llm, 1, false))
	require.NoError(t, err)

	assert.Equal(t, 2, done)
	assert.Equal(t, 1, errored)
}

func TestSplitBatches(t *testing.T) {
	recs := makeRecords(5)

	tests := []struct {
		name string
		size int
		want []int
	}{
		{"corpus batch", 0, []int{5}},
		{"per record", 1, []int{1, 1, 1, 1, 1}},
		{"uneven chunks", 2, []int{2, 2, 1}},
		{"size exceeds input", 10, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := splitBatches(recs, tt.size)
			require.Len(t, batches, len(tt.want))
			for i, n := range tt.want {
				assert.Len(t, batches[i], n)
			}
		})
	}
}

func TestStageProcessorRetryableErrorBecomesRecordError(t *testing.T) {
	// The retry decorator has given up by the time the processor sees the
	// error; it must become a record error, not a stage failure.
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		if strings.Contains(userContent(messages), "ids=r1") {
			return "", fmt.Errorf("%w: 429 from provider", domain.ErrRateLimited)
		}
		return `{"ok": true}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	res, err := proc.Run(context.Background(), makeRecords(2), passthroughConfig(llm, 1, false))
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "r1", res.Errors[0].RecordID)
	assert.Contains(t, res.Errors[0].Message, "429")
}
