package graph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `
name: review
entry: draft
state:
  topic: replace
  notes: append
nodes:
  - id: draft
    task: draft
  - id: publish
    task: publish
edges:
  - from: draft
    to: publish
  - from: publish
    to: __end__
interrupt_before: [publish]
defaults:
  topic: default-topic
`

func sampleRegistry() *Registry {
	reg := NewRegistry()
	reg.MustRegisterTask("draft", noopTask)
	reg.MustRegisterTask("publish", noopTask)
	return reg
}

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "review" || def.Entry != "draft" {
		t.Fatalf("unexpected header: %+v", def)
	}
	if def.State["notes"] != "append" {
		t.Fatalf("unexpected state policies: %+v", def.State)
	}
	if def.Defaults.String("topic") != "default-topic" {
		t.Fatalf("unexpected defaults: %+v", def.Defaults)
	}
	g, err := def.CompileWith(sampleRegistry())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !g.Interrupt("publish") {
		t.Fatalf("expected publish to be interrupt-before")
	}
}

func TestParseDefinitionYAMLRejectsEmptyPayload(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("  \n")); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
}

func TestBindReportsUnknownNames(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	reg := NewRegistry()
	reg.MustRegisterTask("draft", noopTask)
	if _, err := def.Bind(reg); err == nil || !strings.Contains(err.Error(), "unknown task publish") {
		t.Fatalf("expected unknown task error, got %v", err)
	}
}

func TestLoadDefinitionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "review.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	def, err := LoadDefinitionFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Name != "review" {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if _, err := LoadDefinitionFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
