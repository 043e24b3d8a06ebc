package signature

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSeverity_Confidence(t *testing.T) {
	tests := []struct {
		severity Severity
		want     float64
	}{
		{SeverityCritical, 0.95},
		{SeverityHigh, 0.85},
		{SeverityMedium, 0.70},
		{SeverityLow, 0.50},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			if got := tt.severity.Confidence(); got != tt.want {
				t.Errorf("Confidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeverity_Blocks(t *testing.T) {
	if !SeverityCritical.Blocks() {
		t.Error("critical should block")
	}
	if !SeverityHigh.Blocks() {
		t.Error("high should block")
	}
	if SeverityMedium.Blocks() {
		t.Error("medium should not block")
	}
	if SeverityLow.Blocks() {
		t.Error("low should not block")
	}
}

func TestNewSet_Defaults(t *testing.T) {
	set := NewSet()
	if set.Len() == 0 {
		t.Fatal("default set is empty")
	}
	for i, sig := range set.Signatures() {
		if sig.regex == nil {
			t.Errorf("signature %d (%s) not compiled", i, sig.Pattern)
		}
		if !sig.Severity.IsValid() {
			t.Errorf("signature %d (%s) has invalid severity %q", i, sig.Pattern, sig.Severity)
		}
	}
}

func TestNewSetFromSignatures_Errors(t *testing.T) {
	t.Run("invalid severity", func(t *testing.T) {
		_, err := NewSetFromSignatures([]Signature{
			{Pattern: "x", Category: CategoryJailbreak, Severity: "urgent"},
		})
		if err == nil {
			t.Fatal("expected error for invalid severity")
		}
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := NewSetFromSignatures([]Signature{
			{Pattern: "(unclosed", Category: CategoryJailbreak, Severity: SeverityHigh},
		})
		if err == nil {
			t.Fatal("expected error for invalid expression")
		}
	})
}

func TestLoadSetFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signatures.yaml")

	content := `signatures:
  - pattern: "forget everything"
    category: prompt_injection
    severity: high
  - pattern: "leak the prompt"
    category: data_exfiltration
    severity: critical
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	set, err := LoadSetFromFile(path)
	if err != nil {
		t.Fatalf("LoadSetFromFile: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}

	engine := NewEngine(WithSet(set))
	got := engine.Evaluate("please FORGET EVERYTHING now")
	if !got.Matched || got.Severity != SeverityHigh {
		t.Errorf("loaded signature did not match: %+v", got)
	}
}

func TestLoadSetFromFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadSetFromFile("/nonexistent/signatures.yaml"); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("empty table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		if err := os.WriteFile(path, []byte("signatures: []\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadSetFromFile(path); err == nil {
			t.Fatal("expected error for empty signature table")
		}
	})
}

func TestPreview(t *testing.T) {
	t.Run("truncates long content", func(t *testing.T) {
		long := make([]byte, 300)
		for i := range long {
			long[i] = 'a'
		}
		got := Preview(string(long), 200)
		if len(got) != 203 { // 200 chars + "..."
			t.Errorf("len = %d, want 203", len(got))
		}
	})

	t.Run("truncates on a rune boundary", func(t *testing.T) {
		// Each rune is three bytes; a cut at 4 would split the second one.
		got := Preview("日本語テスト", 4)
		if !utf8.ValidString(got) {
			t.Errorf("Preview returned invalid UTF-8: %q", got)
		}
		if got != "日..." {
			t.Errorf("got %q, want %q", got, "日...")
		}
	})

	t.Run("flattens newlines", func(t *testing.T) {
		got := Preview("line one\nline two", 200)
		if got != "line one line two" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("masks credentials", func(t *testing.T) {
		tests := []struct {
			input string
			want  string
		}{
			{"my password=hunter2 ok", "[REDACTED_PASSWORD]"},
			{"api_key: sk-12345", "[REDACTED_KEY]"},
			{"bearer: abc.def.ghi", "[REDACTED_TOKEN]"},
		}
		for _, tt := range tests {
			got := Preview(tt.input, 200)
			if !strings.Contains(got, tt.want) {
				t.Errorf("Preview(%q) = %q, want substring %q", tt.input, got, tt.want)
			}
		}
	})
}
