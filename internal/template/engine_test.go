package template

import (
	"reflect"
	"testing"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single variable",
			text: "Hello {name}",
			want: []string{"name"},
		},
		{
			name: "duplicates collapse in first-occurrence order",
			text: "{x}{x}{y}",
			want: []string{"x", "y"},
		},
		{
			name: "whitespace trimmed",
			text: "Hi { name }, welcome to {company}",
			want: []string{"name", "company"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
		{
			name: "no variables",
			text: "plain text without placeholders",
			want: nil,
		},
		{
			name: "empty braces ignored",
			text: "before {} after {real}",
			want: []string{"real"},
		},
		{
			name: "whitespace-only name ignored",
			text: "{  } and {ok}",
			want: []string{"ok"},
		},
		{
			name: "unclosed brace yields nothing",
			text: "broken {name",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractVariables(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractVariables(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		tmpl     string
		data     map[string]string
		defaults map[string]string
		want     string
	}{
		{
			name: "basic substitution",
			tmpl: "Hi {n}",
			data: map[string]string{"n": "Ann"},
			want: "Hi Ann",
		},
		{
			name:     "empty value falls back to default",
			tmpl:     "Hi {n}",
			data:     map[string]string{"n": ""},
			defaults: map[string]string{"n": "Friend"},
			want:     "Hi Friend",
		},
		{
			name: "missing everywhere renders empty",
			tmpl: "Hi {n}",
			data: map[string]string{},
			want: "Hi ",
		},
		{
			name: "empty template",
			tmpl: "",
			data: map[string]string{"n": "Ann"},
			want: "",
		},
		{
			name:     "default is not re-expanded",
			tmpl:     "{a}",
			data:     map[string]string{"a": "", "b": "boom"},
			defaults: map[string]string{"a": "{b}"},
			want:     "{b}",
		},
		{
			name: "multiple occurrences all replaced",
			tmpl: "{n} and {n} again",
			data: map[string]string{"n": "Bo"},
			want: "Bo and Bo again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.tmpl, tt.data, tt.defaults)
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderIsPure(t *testing.T) {
	data := map[string]string{"n": "Ann"}
	defaults := map[string]string{"c": "Acme"}

	first := Render("Hi {n} from {c}", data, defaults)
	second := Render("Hi {n} from {c}", data, defaults)
	if first != second {
		t.Errorf("Render not idempotent: %q vs %q", first, second)
	}
}

func TestRenderEmail(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		body        string
		data        map[string]string
		defaults    map[string]string
		altSubject  string
		altBody     string
		wantSubject string
		wantBody    string
		wantAlt     bool
	}{
		{
			name:        "complete row uses primary",
			subject:     "Hi {n}",
			body:        "Dear {n}, hello.",
			data:        map[string]string{"n": "Ann"},
			altSubject:  "Hi there",
			altBody:     "Hello.",
			wantSubject: "Hi Ann",
			wantBody:    "Dear Ann, hello.",
		},
		{
			name:        "empty value switches to alternate wholesale",
			subject:     "Hi {n}",
			body:        "Dear {n}",
			data:        map[string]string{"n": ""},
			altSubject:  "Hi there",
			altBody:     "Hello friend",
			wantSubject: "Hi there",
			wantBody:    "Hello friend",
			wantAlt:     true,
		},
		{
			name:        "no alternate falls back to default substitution",
			subject:     "Hi {n}",
			body:        "Dear {n}",
			data:        map[string]string{"n": ""},
			defaults:    map[string]string{"n": "Friend"},
			wantSubject: "Hi Friend",
			wantBody:    "Dear Friend",
		},
		{
			name:        "variable unknown to row and defaults does not trigger alternate",
			subject:     "{company} deal",
			body:        "About {company}",
			data:        map[string]string{"other": "x"},
			altSubject:  "alt",
			altBody:     "alt",
			wantSubject: " deal",
			wantBody:    "About ",
		},
		{
			name:        "alternate requires both parts",
			subject:     "Hi {n}",
			body:        "Dear {n}",
			data:        map[string]string{"n": ""},
			altSubject:  "Hi there",
			altBody:     "",
			wantSubject: "Hi ",
			wantBody:    "Dear ",
		},
		{
			name:        "alternate resolves variables against same data",
			subject:     "Hi {n}",
			body:        "Dear {n}",
			data:        map[string]string{"n": "", "company": "Acme"},
			altSubject:  "About {company}",
			altBody:     "News from {company}",
			wantSubject: "About Acme",
			wantBody:    "News from Acme",
			wantAlt:     true,
		},
		{
			name:        "default-only variable with empty row value triggers alternate",
			subject:     "Hi {n}",
			body:        "Dear {n}",
			data:        map[string]string{},
			defaults:    map[string]string{"n": "Friend"},
			altSubject:  "Hi there",
			altBody:     "Hello.",
			wantSubject: "Hi there",
			wantBody:    "Hello.",
			wantAlt:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderEmail(tt.subject, tt.body, tt.data, tt.defaults, tt.altSubject, tt.altBody)
			if got.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", got.Subject, tt.wantSubject)
			}
			if got.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", got.Body, tt.wantBody)
			}
			if got.UsedAlternate != tt.wantAlt {
				t.Errorf("UsedAlternate = %v, want %v", got.UsedAlternate, tt.wantAlt)
			}
		})
	}
}

func TestEmptyVariables(t *testing.T) {
	data := map[string]string{"a": "1", "b": "", "c": "3"}
	got := EmptyVariables(data, []string{"a", "b", "c", "d"})
	want := []string{"b", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EmptyVariables() = %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "valid", text: "Hi {name}, welcome"},
		{name: "empty", text: ""},
		{name: "no placeholders", text: "plain"},
		{name: "unclosed", text: "Hi {name", wantErr: true},
		{name: "unmatched close", text: "Hi name}", wantErr: true},
		{name: "nested", text: "Hi {a{b}}", wantErr: true},
		{name: "empty name", text: "Hi {}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
		})
	}
}
