package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDefinition = `name: signature
description: Closing line for generated prompts
arguments:
  - name: tone
values:
  formal: "Kind regards, {{scope:user}}"
value: |
  Cheers, {{scope:user}}
priority: 5
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "signature" || def.Priority != 5 || def.Values["formal"] == "" {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if len(def.Arguments) != 1 || def.Arguments[0].Name != "tone" {
		t.Fatalf("unexpected arguments: %+v", def.Arguments)
	}
}

func TestParseDefinitionYAMLErrors(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("")); err == nil {
		t.Fatalf("expected empty payload to fail validation")
	}
	if _, err := ParseDefinitionYAML([]byte("name: [")); err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
}

func TestLoadDefinitionDir(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "signature.yaml")
	if err := os.WriteFile(path, []byte(sampleDefinition), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("not a definition"), 0644); err != nil {
		t.Fatalf("write readme: %v", err)
	}
	defs, err := LoadDefinitionDir(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Path != path {
		t.Fatalf("expected path %s, got %s", path, defs[0].Path)
	}
	if defs[0].Definition.Name != "signature" || defs[0].Func != nil {
		t.Fatalf("unexpected definition: %+v", defs[0])
	}
}

func TestLoadDefinitionFileRejectsFunc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fn.yaml")
	if err := os.WriteFile(path, []byte("name: fn\nfunc: Compute\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadDefinitionFile(path); err == nil || !strings.Contains(err.Error(), "only supported in Go") {
		t.Fatalf("expected func rejection, got %v", err)
	}
}

func TestLoadDefinitionDirMissing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if defs != nil {
		t.Fatalf("expected nil slice for missing dir, got %v", defs)
	}
}
