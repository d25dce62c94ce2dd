package interview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicTranscript(t *testing.T) {
	text := `Q: How did the change affect you?
A: I stopped trusting the team.

Q: What did you do next?
A: I kept to myself.`

	records := Parse(text)
	require.Len(t, records, 2)

	assert.Equal(t, 1, records[0].Index)
	assert.Equal(t, "How did the change affect you?", records[0].Question)
	assert.Equal(t, "I stopped trusting the team.", records[0].Text)

	assert.Equal(t, 2, records[1].Index)
	assert.Equal(t, "What did you do next?", records[1].Question)
	assert.Equal(t, "I kept to myself.", records[1].Text)

	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestParseFullWidthMarkers(t *testing.T) {
	text := "Q：最初はどう感じましたか？\nA：とても不安でした。"

	records := Parse(text)
	require.Len(t, records, 1)
	assert.Equal(t, "最初はどう感じましたか？", records[0].Question)
	assert.Equal(t, "とても不安でした。", records[0].Text)
}

func TestParseContinuationLines(t *testing.T) {
	text := `Q: How did the reorganisation
and the new reporting lines affect you?
A: At first I was confused.
Then I realised nobody knew
who was in charge.`

	records := Parse(text)
	require.Len(t, records, 1)
	assert.Equal(t, "How did the reorganisation and the new reporting lines affect you?", records[0].Question)
	assert.Equal(t, "At first I was confused.\nThen I realised nobody knew\nwho was in charge.", records[0].Text)
}

func TestParseMultilineAnswerMarkers(t *testing.T) {
	// Repeated A: lines all belong to the same answer.
	text := `Q: What happened?
A: First this.
A: Then that.`

	records := Parse(text)
	require.Len(t, records, 1)
	assert.Equal(t, "First this.\nThen that.", records[0].Text)
}

func TestParseDropsQuestionWithoutAnswer(t *testing.T) {
	text := `Q: This one was never answered.
Q: This one was.
A: Yes.`

	records := Parse(text)
	require.Len(t, records, 1)
	assert.Equal(t, "This one was.", records[0].Question)
	assert.Equal(t, 1, records[0].Index)
}

func TestParseIgnoresEmptyAnswerMarker(t *testing.T) {
	text := `Q: Anything else?
A:`

	records := Parse(text)
	assert.Empty(t, records)
}

func TestParsePreambleIsIgnored(t *testing.T) {
	// Text before the first Q: marker belongs to no block.
	text := `Interview transcript, session 3.

Q: How are things?
A: Fine.`

	records := Parse(text)
	require.Len(t, records, 1)
	assert.Equal(t, "How are things?", records[0].Question)
}

func TestParseEmptyInput(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("\n\n  \n"))
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.txt")
	require.NoError(t, os.WriteFile(path, []byte("Q: ok?\nA: yes"), 0600))

	records, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "yes", records[0].Text)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
