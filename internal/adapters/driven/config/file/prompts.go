package file

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads stage system prompts from user-editable files on
// disk, with fallback to embedded defaults. Researchers tune the coding
// instructions by editing the files; no rebuild needed.
//
// The store uses lazy initialisation - files are only created when first
// accessed, not in the constructor. This makes testing easier and avoids
// unexpected I/O.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultVersion marks a prompt served from the embedded defaults.
const defaultVersion = "default"

// defaultPrompts contains the embedded stage prompts.
// These are used when user files don't exist and as the initial content
// for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptOpenCoding: `You are a qualitative researcher performing open coding in a grounded-theory analysis of interview transcripts.

You will be given one question/answer segment. The question is context only; derive codes exclusively from the answer text.

Assign one or more short, descriptive open codes capturing the distinct meanings expressed in the answer. For each code include a short supporting quote (span) copied verbatim from the answer.

Respond with JSON only, in exactly this shape:
{"codes": [{"code": "<short code label>", "span": "<verbatim supporting quote>"}]}`,

	driven.PromptFiltering: `You are a qualitative researcher screening coded interview segments for relevance to the research question.

You will be given a JSON list of items. Each item has an id, the open codes assigned to it, and an excerpt of the underlying answer.

For every item decide whether it should be retained for further analysis. Exclude small talk, off-topic digressions and segments whose codes carry no analytic substance. Return a verdict for every id you were given, and a brief exclude_reason whenever retain is false.

Respond with JSON only, in exactly this shape:
{"filtering": [{"id": <item id>, "retain": <true|false>, "exclude_reason": "<why excluded, empty if retained>"}]}`,

	driven.PromptAxialCoding: `You are a qualitative researcher performing axial coding in a grounded-theory analysis.

You will be given the full list of retained open codes as JSON, each with a numeric id and its text.

Group related open codes into axial categories: broader themes that connect codes around shared conditions, actions or consequences. Give each category a concise label. Every member_id must be an id from the provided list; assign each code to the category it fits best.

Respond with JSON only, in exactly this shape:
{"axial_coding": [{"axial_code": "<category label>", "member_ids": [<open code ids>]}]}`,

	driven.PromptSelectiveCoding: `You are a qualitative researcher performing selective coding in a grounded-theory analysis.

You will be given the axial categories as JSON, each with an excerpt of its member open codes.

First select the single core category: the central phenomenon that the other categories relate to. Then group every axial category into aggregate concepts, each with a one-line definition. Each axial category must appear under exactly one concept. Use the category labels exactly as given.

Respond with JSON only, in exactly this shape:
{"core_category": "<core category label>", "aggregate_concepts": [{"concept": "<concept label>", "definition": "<one-line definition>", "covered_axial_codes": ["<category labels>"]}]}`,

	driven.PromptStoryline: `You are a qualitative researcher writing the storyline of a grounded-theory analysis.

You will be given the selective-coding result as JSON: the core category, the aggregate concepts and the axial themes with example open codes.

Write a coherent analytic narrative organised around the core category, weaving the aggregate concepts together and grounding every claim in the given themes. Then list anchors: for each passage of the narrative, the concept it draws on and the axial codes that support it. Use concept and category labels exactly as given.

Respond with JSON only, in exactly this shape:
{"storyline": "<the narrative>", "anchors": [{"concept": "<concept label>", "axial_codes": ["<category labels>"]}]}`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.strata/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".strata", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt text for the given name.
// On first call, initialises the prompt directory and creates default files.
// Returns cached value if available, otherwise loads from file.
// Falls back to the embedded default if the file doesn't exist.
func (s *PromptStore) Load(name string) (string, error) {
	// Ensure directory and defaults exist (lazy init)
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		// Fall back to embedded defaults if init failed
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	// Check cache first (read lock)
	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	// Load from file (no lock held during I/O)
	prompt, err := s.loadFromFile(name)
	if err != nil {
		// Fall back to embedded default
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Cache the result (write lock)
	// Use double-check pattern to avoid overwriting concurrent loads
	s.mu.Lock()
	if _, ok := s.cache[name]; !ok {
		s.cache[name] = prompt
	} else {
		// Another goroutine loaded it first, use their value
		prompt = s.cache[name]
	}
	s.mu.Unlock()

	return prompt, nil
}

// Version identifies the prompt revision in use: "default" for the
// embedded prompt, or a content hash when the user has customised the
// file. Recorded in stage metadata so artifacts state what produced them.
func (s *PromptStore) Version(name string) string {
	prompt, err := s.Load(name)
	if err != nil {
		return defaultVersion
	}
	if def, ok := defaultPrompts[name]; ok && strings.TrimSpace(def) == prompt {
		return defaultVersion
	}
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:4])
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
// Called once via sync.Once on first Load().
func (s *PromptStore) initialise() {
	// Create directory
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	// Create README
	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# Strata Prompts

This directory contains the system prompts Strata sends for each coding
stage. Edit a file to tune how that stage codes your data; changes take
effect on the next run.

## Files

- ` + "`open_coding.txt`" + ` - Assigns open codes to each answer segment
- ` + "`filtering.txt`" + ` - Screens coded segments for relevance
- ` + "`axial_coding.txt`" + ` - Groups open codes into categories
- ` + "`selective_coding.txt`" + ` - Picks the core category and aggregate concepts
- ` + "`storyline.txt`" + ` - Writes the anchored narrative synthesis

## Caution

Each prompt ends by dictating the exact JSON shape of the model's reply.
Keep that section intact: responses are validated against a schema and
replies in another shape are rejected.
`
	return os.WriteFile(path, []byte(content), 0600)
}
