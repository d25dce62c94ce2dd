// Package file persists stage results to the output directory: a
// canonical JSON artifact per stage, used for resume detection, plus
// human-facing side files (CSV tables, storyline text, raw model dumps).
package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// Ensure ArtifactStore implements the interface.
var _ driven.ArtifactStore = (*ArtifactStore)(nil)

// ArtifactStore writes stage artifacts under a single output root.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates an artifact store rooted at dir. If dir is
// empty, defaults to "outputs" in the working directory.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if dir == "" {
		dir = "outputs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &ArtifactStore{root: dir}, nil
}

// Root returns the output directory.
func (s *ArtifactStore) Root() string {
	return s.root
}

// stagePath returns the canonical JSON artifact path for a stage.
func (s *ArtifactStore) stagePath(stage domain.Stage) string {
	switch stage {
	case domain.StageOpenCoding:
		return filepath.Join(s.root, "open_coding.json")
	case domain.StageFiltering:
		return filepath.Join(s.root, "filtering", "filtering.json")
	case domain.StageAxialCoding:
		return filepath.Join(s.root, "axial", "axial_coding.json")
	case domain.StageSelectiveCoding:
		return filepath.Join(s.root, "selective", "selective_coding.json")
	case domain.StageStoryline:
		return filepath.Join(s.root, "storyline", "storyline.json")
	default:
		return filepath.Join(s.root, string(stage)+".json")
	}
}

// SaveStageResult writes the canonical artifact and the stage's side files.
func (s *ArtifactStore) SaveStageResult(_ context.Context, result *domain.StageResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}

	path := s.stagePath(result.Meta.Stage)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating stage directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling stage result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing stage artifact: %w", err)
	}

	if err := s.writeSideFiles(result); err != nil {
		return fmt.Errorf("writing side files: %w", err)
	}
	return nil
}

// LoadStageResult reads a previously persisted stage result.
func (s *ArtifactStore) LoadStageResult(_ context.Context, stage domain.Stage) (*domain.StageResult, error) {
	data, err := os.ReadFile(s.stagePath(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading stage artifact: %w", err)
	}

	var result domain.StageResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling stage artifact: %w", err)
	}
	return &result, nil
}

// HasStage reports whether a stage artifact exists.
func (s *ArtifactStore) HasStage(_ context.Context, stage domain.Stage) (bool, error) {
	_, err := os.Stat(s.stagePath(stage))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking stage artifact: %w", err)
	}
	return true, nil
}

// writeSideFiles renders the human-facing views of a stage result.
func (s *ArtifactStore) writeSideFiles(result *domain.StageResult) error {
	dir := filepath.Dir(s.stagePath(result.Meta.Stage))

	switch result.Meta.Stage {
	case domain.StageOpenCoding:
		return s.writeOpenCodingCSV(filepath.Join(dir, "open_coding.csv"), result)
	case domain.StageFiltering:
		return s.writeFilteringCSVs(dir, result)
	case domain.StageAxialCoding:
		return s.writeAxialCSVs(dir, result)
	case domain.StageSelectiveCoding:
		if err := s.writeConceptsCSV(filepath.Join(dir, "concepts.csv"), result); err != nil {
			return err
		}
		return writeRawDump(filepath.Join(dir, "raw.txt"), result.RawResponses)
	case domain.StageStoryline:
		if err := writeStorylineText(filepath.Join(dir, "storyline.txt"), result); err != nil {
			return err
		}
		return writeRawDump(filepath.Join(dir, "raw.txt"), result.RawResponses)
	default:
		return nil
	}
}

func (s *ArtifactStore) writeOpenCodingCSV(path string, result *domain.StageResult) error {
	rows := make([][]string, 0, len(result.Records))
	for _, rec := range result.Records {
		labels, spans := codeColumns(rec.CodeIDs, result.Codes)
		rows = append(rows, []string{
			rec.ID,
			strconv.Itoa(rec.Index),
			rec.Question,
			rec.Text,
			labels,
			spans,
		})
	}
	return writeCSV(path, []string{"record_id", "index", "question", "answer", "codes", "spans"}, rows)
}

func (s *ArtifactStore) writeFilteringCSVs(dir string, result *domain.StageResult) error {
	all := make([]domain.Record, 0, len(result.Records)+len(result.Excluded))
	all = append(all, result.Records...)
	all = append(all, result.Excluded...)

	rowLevel := make([][]string, 0, len(all))
	for _, rec := range all {
		labels, _ := codeColumns(rec.CodeIDs, result.Codes)
		rowLevel = append(rowLevel, []string{
			rec.ID,
			strconv.Itoa(rec.Index),
			strconv.FormatBool(rec.IsRetained()),
			rec.ExcludeReason,
			labels,
		})
	}
	if err := writeCSV(filepath.Join(dir, "row_level.csv"),
		[]string{"record_id", "index", "retained", "exclude_reason", "codes"}, rowLevel); err != nil {
		return err
	}

	retained := make([][]string, 0, len(result.Records))
	for _, rec := range result.Records {
		labels, _ := codeColumns(rec.CodeIDs, result.Codes)
		retained = append(retained, []string{
			rec.ID, strconv.Itoa(rec.Index), rec.Question, rec.Text, labels,
		})
	}
	if err := writeCSV(filepath.Join(dir, "retained.csv"),
		[]string{"record_id", "index", "question", "answer", "codes"}, retained); err != nil {
		return err
	}

	excluded := make([][]string, 0, len(result.Excluded))
	for _, rec := range result.Excluded {
		excluded = append(excluded, []string{
			rec.ID, strconv.Itoa(rec.Index), rec.Question, rec.Text, rec.ExcludeReason,
		})
	}
	return writeCSV(filepath.Join(dir, "excluded.csv"),
		[]string{"record_id", "index", "question", "answer", "exclude_reason"}, excluded)
}

func (s *ArtifactStore) writeAxialCSVs(dir string, result *domain.StageResult) error {
	categories := make([][]string, 0, len(result.Categories))
	summary := make([][]string, 0, len(result.Categories))
	for _, cat := range result.Categories {
		members := cat.MemberLabels(result.Codes)
		categories = append(categories, []string{
			cat.Label,
			strings.Join(members, "; "),
			strings.Join(cat.RecordIDs, "; "),
		})
		summary = append(summary, []string{
			cat.Label,
			strconv.Itoa(len(cat.MemberCodeIDs)),
			strconv.Itoa(len(cat.RecordIDs)),
		})
	}
	if err := writeCSV(filepath.Join(dir, "categories.csv"),
		[]string{"category", "member_codes", "record_ids"}, categories); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, "summary.csv"),
		[]string{"category", "code_count", "record_count"}, summary)
}

func (s *ArtifactStore) writeConceptsCSV(path string, result *domain.StageResult) error {
	rows := make([][]string, 0, len(result.Concepts))
	for _, concept := range result.Concepts {
		rows = append(rows, []string{
			concept.Label,
			concept.Definition,
			strings.Join(concept.CoveredCategories, "; "),
			strconv.Itoa(len(concept.RecordIDs)),
		})
	}
	return writeCSV(path, []string{"concept", "definition", "covered_categories", "record_count"}, rows)
}

// writeStorylineText renders the narrative with its evidence appendix.
func writeStorylineText(path string, result *domain.StageResult) error {
	if result.Storyline == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Core category: %s\n\n", result.Storyline.CoreCategory)
	b.WriteString(strings.TrimSpace(result.Storyline.Narrative))
	b.WriteString("\n\nEvidence anchors:\n")
	for _, a := range result.Storyline.Anchors {
		fmt.Fprintf(&b, "- %s (%s): records %s\n",
			a.Concept, strings.Join(a.Categories, ", "), strings.Join(a.RecordIDs, ", "))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing storyline text: %w", err)
	}
	return nil
}

// writeRawDump preserves the unprocessed model output for manual review.
func writeRawDump(path string, responses []string) error {
	if len(responses) == 0 {
		return nil
	}
	content := strings.Join(responses, "\n\n----\n\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing raw dump: %w", err)
	}
	return nil
}

// codeColumns resolves a record's code IDs to joined label and span columns.
func codeColumns(codeIDs []int, codes []domain.Code) (labels, spans string) {
	byID := make(map[int]domain.Code, len(codes))
	for _, c := range codes {
		byID[c.ID] = c
	}
	var ls, ss []string
	for _, id := range codeIDs {
		c, ok := byID[id]
		if !ok {
			continue
		}
		ls = append(ls, c.Label)
		if c.Span != "" {
			ss = append(ss, c.Span)
		}
	}
	return strings.Join(ls, "; "), strings.Join(ss, "; ")
}

// writeCSV writes one header row plus data rows.
func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return f.Close()
}
