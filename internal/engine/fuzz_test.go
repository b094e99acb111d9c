package engine

import (
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
)

func FuzzAction(f *testing.F) {
	// Seed corpus
	f.Add("pointer\n=\nvalue")
	f.Add("!pointer")
	f.Add("colors\n+\na\nb\nc")
	f.Add("colors\n-\nb")
	f.Add("dict\n--set\n{\"a\":\"1\"}")
	f.Add("--context\ndict\na")
	f.Add("--strict\nmissing\nkey")
	f.Add("@\nvalue")
	f.Add("--edit")
	f.Add("x\n--pop")

	f.Fuzz(func(t *testing.T, payload string) {
		e, err := New(Options{
			Filesystem: memfs.New(),
			Path:       "fuzz.db.json",
			Stateless:  true,
		})
		if err != nil {
			t.Fatal(err)
		}
		defer e.Close()

		var args []string
		for _, tok := range strings.Split(payload, "\n") {
			if tok != "" {
				args = append(args, tok)
			}
		}
		if len(args) > 50 {
			args = args[:50]
		}

		// Garbage queries may fail, but must never panic, and a
		// successful reply must end in a newline.
		out, err := e.Action(args)
		if err == nil && out != "" && !strings.HasSuffix(out, "\n") {
			t.Fatalf("reply missing trailing newline: %q", out)
		}
	})
}
