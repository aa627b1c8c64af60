package config

import (
	"reflect"
	"testing"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "   ", want: nil},
		{in: "python -m http.server 8000", want: []string{"python", "-m", "http.server", "8000"}},
		{in: "sh -c 'echo $HOME; exit 1'", want: []string{"sh", "-c", "echo $HOME; exit 1"}},
		{in: `app --name "a \"quoted\" word"`, want: []string{"app", "--name", `a "quoted" word`}},
		{in: `app "" end`, want: []string{"app", "", "end"}},
		{in: `C:\\tools\\app.exe`, want: []string{`C:\tools\app.exe`}},
		{in: "a\tb\nc", want: []string{"a", "b", "c"}},
		{in: `pre"fix"post`, want: []string{"prefixpost"}},
		{in: `'it\s literal'`, want: []string{`it\s literal`}},
	}

	for _, tt := range tests {
		got, err := SplitCommand(tt.in)
		if err != nil {
			t.Fatalf("SplitCommand(%q) error: %v", tt.in, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("SplitCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitCommandErrors(t *testing.T) {
	for _, in := range []string{`echo "open`, `echo 'open`, `echo \`} {
		if _, err := SplitCommand(in); err == nil {
			t.Fatalf("SplitCommand(%q) expected error", in)
		}
	}
}

func TestExpandEnvFunc(t *testing.T) {
	lookup := func(name string) string {
		return map[string]string{"ENV_PORT": "8080", "HOME": "/home/svc"}[name]
	}
	tests := []struct {
		in   string
		want string
	}{
		{in: "serve --port %(ENV_PORT)s", want: "serve --port 8080"},
		{in: "%(HOME)s/logs", want: "/home/svc/logs"},
		{in: "%(MISSING)s-x", want: "-x"},
		{in: "no placeholders $HOME", want: "no placeholders $HOME"},
		{in: "%(ENV_PORT)d", want: "%(ENV_PORT)d"},
	}
	for _, tt := range tests {
		if got := ExpandEnvFunc(tt.in, lookup); got != tt.want {
			t.Fatalf("ExpandEnvFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := EnvOverride("PORT"); got != "ENV_PORT" {
		t.Fatalf("unexpected override name %q", got)
	}
}
