package textutil

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "blank lines are dropped",
			in:   "  Build APIs.\n\nShip often.  ",
			want: "Build APIs.\nShip often.",
		},
		{
			name: "markup is flattened",
			in:   "<p>Build <b>APIs</b></p><ul><li>Go</li><li>SQL</li></ul><script>track()</script>",
			want: "Build APIs\n- Go\n- SQL",
		},
		{
			name: "line breaks become new lines",
			in:   "Remote<br/>Full   time",
			want: "Remote\nFull time",
		},
		{
			name: "entities are decoded",
			in:   "<p>R&amp;D &lt;platform&gt;</p>",
			want: "R&D <platform>",
		},
		{
			name: "empty",
			in:   "   ",
			want: "",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlainText(tc.in); got != tc.want {
				t.Fatalf("PlainText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
