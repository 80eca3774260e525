package domain

import "testing"

func TestParsingStatusTransitions(t *testing.T) {
	cases := []struct {
		from ParsingStatus
		to   ParsingStatus
		want bool
	}{
		{ParsingPending, ParsingRunning, true},
		{ParsingPending, ParsingCompleted, true},
		{ParsingRunning, ParsingCompleted, true},
		{ParsingRunning, ParsingError, true},
		{ParsingCompleted, ParsingError, false},
		{ParsingCompleted, ParsingRunning, false},
		{ParsingError, ParsingCompleted, false},
		{ParsingRunning, ParsingPending, false},
		{ParsingStatus("bogus"), ParsingRunning, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestClassificationStatusTransitions(t *testing.T) {
	cases := []struct {
		from ClassificationStatus
		to   ClassificationStatus
		want bool
	}{
		{ClassificationPending, ClassificationQuickProcessing, true},
		{ClassificationPending, ClassificationCompleted, true},
		{ClassificationQuickDone, ClassificationAIProcessing, true},
		{ClassificationAIProcessing, ClassificationCompleted, true},
		{ClassificationAIProcessing, ClassificationError, true},
		{ClassificationAIProcessing, ClassificationQuickDone, false},
		{ClassificationCompleted, ClassificationError, false},
		{ClassificationError, ClassificationCompleted, false},
		{ClassificationQuickDone, ClassificationQuickProcessing, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestFileExtension(t *testing.T) {
	cases := []struct {
		uri  string
		want string
	}{
		{"报告.DOCX", ".docx"},
		{"archive/2024/notes.md", ".md"},
		{"noext", ""},
		{"trailingdot.", ""},
		{"dir.v2/plain", ""},
		{"", ""},
	}
	for _, tc := range cases {
		content := Content{SourceURI: tc.uri}
		if got := content.FileExtension(); got != tc.want {
			t.Errorf("FileExtension(%q) = %q, want %q", tc.uri, got, tc.want)
		}
	}
}

func TestParseModalityDefaultsToText(t *testing.T) {
	if got := ParseModality("hologram"); got != ModalityText {
		t.Fatalf("unknown modality must default to text, got %s", got)
	}
	if got := ParseModality("image"); got != ModalityImage {
		t.Fatalf("got %s", got)
	}
}
