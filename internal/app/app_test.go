package app

import (
	"strings"
	"testing"

	"github.com/foxzi/mailmerge/internal/dataset"
	"github.com/foxzi/mailmerge/internal/pipeline"
)

func TestAnalyzeMappedVariables(t *testing.T) {
	csv := "email,Firma,name\n" +
		"a@example.com,,Anna\n" +
		"b@example.com,Acme,Bert\n"
	ds, err := dataset.Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	spec := &pipeline.MessageSpec{
		Subject:     "Hello {name}",
		Body:        "Greetings from {company}",
		Mapping:     map[string]string{"company": "Firma"},
		EmailColumn: "email",
	}

	analysis := (&App{}).Analyze(ds, spec)

	if analysis.Complete != 1 || analysis.HasEmpty != 1 {
		t.Errorf("Analyze() complete = %d, hasEmpty = %d, want 1 and 1",
			analysis.Complete, analysis.HasEmpty)
	}
	if len(analysis.EmptyDetails) != 1 {
		t.Fatalf("EmptyDetails count = %d, want 1", len(analysis.EmptyDetails))
	}

	detail := analysis.EmptyDetails[0]
	if detail.RowNumber != 2 || detail.Email != "a@example.com" {
		t.Errorf("detail = row %d email %s, want row 2 a@example.com",
			detail.RowNumber, detail.Email)
	}
	if len(detail.EmptyVars) != 1 || detail.EmptyVars[0] != "company" {
		t.Errorf("EmptyVars = %v, want [company]", detail.EmptyVars)
	}
}

func TestAnalyzeUnmappedVariables(t *testing.T) {
	csv := "email,name\na@example.com,\n"
	ds, err := dataset.Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	spec := &pipeline.MessageSpec{
		Subject:     "Hello {name}",
		Body:        "Body",
		EmailColumn: "email",
	}

	analysis := (&App{}).Analyze(ds, spec)
	if analysis.HasEmpty != 1 {
		t.Errorf("Analyze() hasEmpty = %d, want 1", analysis.HasEmpty)
	}
}
