package tradebook

import (
	"encoding/json"
	"testing"
)

func TestJsonObjectWriter(t *testing.T) {
	testCases := []struct {
		name  string
		write func(w *jsonObjectWriter)
		want  string
	}{
		{
			name:  "empty object",
			write: func(w *jsonObjectWriter) {},
			want:  `{}`,
		},
		{
			name: "keeps insertion order",
			write: func(w *jsonObjectWriter) {
				w.Append("b", 1)
				w.Append("a", "hello")
			},
			want: `{"b":1,"a":"hello"}`,
		},
		{
			name: "embed object",
			write: func(w *jsonObjectWriter) {
				w.Append("a", 1)
				w.Embed(json.RawMessage(`{"c":3,"d":4}`))
				w.Append("b", 2)
			},
			want: `{"a":1,"c":3,"d":4,"b":2}`,
		},
		{
			name: "embed empty object",
			write: func(w *jsonObjectWriter) {
				w.Append("a", 1)
				w.Embed(json.RawMessage(`{}`))
			},
			want: `{"a":1}`,
		},
		{
			name: "optional fields",
			write: func(w *jsonObjectWriter) {
				w.Append("a", 0)
				w.Optional("b", "")
				w.Optional("c", 0)
				w.Optional("d", map[string]int{})
				w.Optional("e", "hello")
			},
			want: `{"a":0,"e":"hello"}`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var w jsonObjectWriter
			tc.write(&w)
			got, err := w.MarshalJSON()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestJsonObjectWriterError(t *testing.T) {
	var w jsonObjectWriter
	w.Append("f", func() {})
	w.Append("a", 1)
	if _, err := w.MarshalJSON(); err == nil {
		t.Errorf("expected an error for a value that cannot be marshalled")
	}
}
