package llm_test

import (
	"errors"
	"testing"

	"github.com/nv-mldev/emr/pkg/provider/llm"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{name: "bare", reply: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", reply: "```json\n{\"a\":{\"b\":2}}\n```", want: `{"a":{"b":2}}`},
		{name: "preamble", reply: "Here is the record:\n{\"x\":\"y\"} Thanks.", want: `{"x":"y"}`},
		{name: "brace in string", reply: `{"note":"BP {high}","n":"}"}`, want: `{"note":"BP {high}","n":"}"}`},
		{name: "escaped quote", reply: `{"q":"say \"}\" now"}`, want: `{"q":"say \"}\" now"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := llm.ExtractJSON(tt.reply)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	t.Parallel()

	for _, reply := range []string{"", "no json here", `{"open": true`} {
		if _, err := llm.ExtractJSON(reply); !errors.Is(err, llm.ErrNoJSON) {
			t.Errorf("ExtractJSON(%q) err = %v, want ErrNoJSON", reply, err)
		}
	}
}
