package pipeline

import (
	"errors"
	"testing"
)

func TestParseDirective(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		kind    directiveKind
		arg     string
		wantErr bool
	}{
		{name: "set collection", text: "SET_COLLECTION:all_summaries", kind: directiveSetCollection, arg: "all_summaries"},
		{name: "set collection padded", text: "SET_COLLECTION:  docs \n", kind: directiveSetCollection, arg: "docs"},
		{name: "set collection empty", text: "SET_COLLECTION:", kind: directiveSetCollection, arg: ""},
		{name: "collection with colon", text: "SET_COLLECTION:team:docs", kind: directiveSetCollection, arg: "team:docs"},
		{name: "ask", text: "ASK: what is X?", kind: directiveAsk, arg: "what is X?"},
		{name: "lowercase prefix", text: "ask: what", wantErr: true},
		{name: "plain text", text: "hello", wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := parseDirective(tc.text)
			if tc.wantErr {
				if !errors.Is(err, ErrProtocol) {
					t.Fatalf("expected ErrProtocol, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDirective err: %v", err)
			}
			if d.kind != tc.kind || d.arg != tc.arg {
				t.Fatalf("got %+v, want kind=%d arg=%q", d, tc.kind, tc.arg)
			}
		})
	}
}
