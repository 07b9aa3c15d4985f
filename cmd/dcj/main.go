package main

import (
	"os"
	"strings"

	"dcj-cli/internal/cli"
)

// quickAdd reports whether s is a "+text" token and returns the text.
func quickAdd(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "+") {
		return "", false
	}
	text := strings.TrimSpace(strings.TrimPrefix(s, "+"))
	return text, text != ""
}

func rewriteQuickAddArgs(argv []string) []string {
	// Convenience: `dcj +buy milk` works like `dcj warehouse add "buy milk"`.
	//
	// Cobra treats the first non-flag token as a subcommand, so we rewrite argv before parsing.
	// Persistent flags may come first (`dcj --api-url ... +idea`), so we look for the first
	// positional token, not just argv[1].
	if len(argv) < 2 {
		return argv
	}

	valueFlags := map[string]bool{
		"--api-url":   true,
		"--token":     true,
		"--timeout":   true,
		"--data-dir":  true,
		"--log-level": true,
		"--format":    true,
	}

	rewrite := func(i int) []string {
		text, _ := quickAdd(argv[i])
		rest := argv[i+1:]
		if len(rest) > 0 {
			text = text + " " + strings.Join(rest, " ")
		}
		out := make([]string, 0, i+3)
		out = append(out, argv[:i]...)
		return append(out, "warehouse", "add", text)
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) {
				if _, ok := quickAdd(argv[i+1]); ok {
					return rewrite(i + 1)
				}
			}
			return argv
		}
		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "=") {
				continue
			}
			if valueFlags[a] {
				i++ // skip value if present
			}
			continue
		}

		// First positional token.
		if _, ok := quickAdd(a); ok {
			return rewrite(i)
		}
		return argv
	}

	return argv
}

func main() {
	os.Args = rewriteQuickAddArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
