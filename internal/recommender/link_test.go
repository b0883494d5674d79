package recommender

import "testing"

func TestCleanJobLink(t *testing.T) {
	cases := []struct{ raw, want string }{
		{"", ""},
		{"   ", ""},
		{"jobs@acme.io", "mailto:jobs@acme.io"},
		{" https://acme.io/apply ", "https://acme.io/apply"},
		{"https: acme.io/apply", "https://acme.io/apply"},
		{"http: acme.io/apply", "http://acme.io/apply"},
		{"Apply at https://acme.io/a?b=1", "https://acme.io/a?b=1"},
		{"https://acme.io/contact@acme", "https://acme.io/contact@acme"},
		{"acme careers page", "acmecareerspage"},
	}
	for _, c := range cases {
		if got := CleanJobLink(c.raw); got != c.want {
			t.Errorf("CleanJobLink(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}
