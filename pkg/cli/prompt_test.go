package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Prompter{
		In:  strings.NewReader(input),
		Out: out,
	}, out
}

func TestAsk_WithInput(t *testing.T) {
	p, _ := newTestPrompter("hello\n")
	got := p.Ask("Name", "default")
	if got != "hello" {
		t.Errorf("Ask() = %q, want %q", got, "hello")
	}
}

func TestAsk_EmptyUsesDefault(t *testing.T) {
	p, _ := newTestPrompter("   \n")
	got := p.Ask("Name", "fallback")
	if got != "fallback" {
		t.Errorf("Ask() = %q, want %q", got, "fallback")
	}
}

func TestAsk_ShowsDefault(t *testing.T) {
	p, out := newTestPrompter("\n")
	p.Ask("Listen address", ":3000")
	if !strings.Contains(out.String(), "Listen address [:3000]: ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestAskValidated_Retries(t *testing.T) {
	p, out := newTestPrompter("abc\n20601234567\n")
	validate := func(s string) error {
		if len(s) != 11 {
			return errors.New("RUC must have 11 digits")
		}
		return nil
	}
	got, err := p.AskValidated("RUC", "", validate)
	if err != nil {
		t.Fatalf("AskValidated: %v", err)
	}
	if got != "20601234567" {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(out.String(), "RUC must have 11 digits") {
		t.Error("expected validation message")
	}
}

func TestAskValidated_StopsAtEOF(t *testing.T) {
	p, _ := newTestPrompter("bad\n")
	_, err := p.AskValidated("Value", "", func(string) error { return errors.New("never valid") })
	if err == nil {
		t.Fatal("expected error once input is exhausted")
	}
}

func TestAskPassword_Fallback(t *testing.T) {
	// Not a real terminal, so it falls back to plain read.
	p, _ := newTestPrompter("secret123\n")
	got := p.AskPassword("Password")
	if got != "secret123" {
		t.Errorf("AskPassword() = %q, want %q", got, "secret123")
	}
}

func TestChoose(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2\n", "sqlite"},
		{"\n", "file"},
		{"9\n3\n", "postgres"},
		{"x\n", "file"}, // invalid then EOF falls back to default
	}
	for _, tt := range tests {
		p, _ := newTestPrompter(tt.input)
		got := p.Choose("Driver", []string{"file", "sqlite", "postgres"}, 0)
		if got != tt.want {
			t.Errorf("Choose(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"si\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
	}
	for _, tt := range tests {
		p, _ := newTestPrompter(tt.input)
		if got := p.Confirm("Continue?", tt.defaultYes); got != tt.want {
			t.Errorf("Confirm(%q, %v) = %v, want %v", tt.input, tt.defaultYes, got, tt.want)
		}
	}
}
