package persona

import (
	"path/filepath"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	data := []byte("name: Clara\ninstruction: |\n  You are Clara, a clinic assistant.\ngreeting: Hello!\n")
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Name != "Clara" {
		t.Errorf("expected Clara, got %s", p.Name)
	}
	if p.Instruction != "You are Clara, a clinic assistant." {
		t.Errorf("unexpected instruction: %q", p.Instruction)
	}
	if p.Greeting != "Hello!" {
		t.Errorf("unexpected greeting: %q", p.Greeting)
	}
}

func TestParse_EmptyInstruction(t *testing.T) {
	if _, err := Parse([]byte("name: Clara\ninstruction: \"  \"\n")); err == nil {
		t.Fatal("expected error for empty instruction")
	}
}

func TestParse_DefaultName(t *testing.T) {
	p, err := Parse([]byte("instruction: be helpful\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "assistant" {
		t.Errorf("expected default name, got %s", p.Name)
	}
}

func TestLoadFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	original := &Persona{Name: "Clara", Instruction: "be kind"}
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Instruction != "be kind" {
		t.Errorf("unexpected instruction: %q", p.Instruction)
	}
}

func TestResolve_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := Save(path, &Persona{Name: "Clara", Instruction: "from file"}); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve(path, "inline text", "builtin")
	if err != nil {
		t.Fatal(err)
	}
	if got != "from file" {
		t.Errorf("file should win, got %q", got)
	}

	got, err = Resolve(filepath.Join(t.TempDir(), "missing.yaml"), "inline text", "builtin")
	if err != nil {
		t.Fatal(err)
	}
	if got != "inline text" {
		t.Errorf("inline should win over builtin, got %q", got)
	}

	got, err = Resolve("", "", "builtin")
	if err != nil {
		t.Fatal(err)
	}
	if got != "builtin" {
		t.Errorf("expected builtin fallback, got %q", got)
	}
}
