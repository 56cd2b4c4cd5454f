// Package lang guesses a programming language from a file name.
package lang

import "strings"

// extensions maps a lower-case file suffix to the language label the
// TimeForged daemon reports.
var extensions = map[string]string{
	"rs":      "Rust",
	"py":      "Python",
	"pyi":     "Python",
	"js":      "JavaScript",
	"mjs":     "JavaScript",
	"cjs":     "JavaScript",
	"jsx":     "JavaScript",
	"ts":      "TypeScript",
	"mts":     "TypeScript",
	"tsx":     "TypeScript",
	"go":      "Go",
	"java":    "Java",
	"kt":      "Kotlin",
	"kts":     "Kotlin",
	"scala":   "Scala",
	"c":       "C",
	"h":       "C",
	"cpp":     "C++",
	"cc":      "C++",
	"cxx":     "C++",
	"hpp":     "C++",
	"cs":      "C#",
	"fs":      "F#",
	"rb":      "Ruby",
	"php":     "PHP",
	"swift":   "Swift",
	"m":       "Objective-C",
	"dart":    "Dart",
	"lua":     "Lua",
	"zig":     "Zig",
	"nim":     "Nim",
	"ex":      "Elixir",
	"exs":     "Elixir",
	"erl":     "Erlang",
	"hs":      "Haskell",
	"ml":      "OCaml",
	"clj":     "Clojure",
	"r":       "R",
	"jl":      "Julia",
	"pl":      "Perl",
	"sh":      "Shell",
	"bash":    "Shell",
	"zsh":     "Shell",
	"fish":    "Shell",
	"ps1":     "PowerShell",
	"sql":     "SQL",
	"html":    "HTML",
	"htm":     "HTML",
	"css":     "CSS",
	"scss":    "SCSS",
	"sass":    "Sass",
	"less":    "Less",
	"vue":     "Vue",
	"svelte":  "Svelte",
	"json":    "JSON",
	"yaml":    "YAML",
	"yml":     "YAML",
	"toml":    "TOML",
	"xml":     "XML",
	"md":      "Markdown",
	"mdx":     "Markdown",
	"tf":      "HCL",
	"hcl":     "HCL",
	"proto":   "Protobuf",
	"graphql": "GraphQL",
	"nix":     "Nix",
	"vim":     "Vim Script",
	"el":      "Emacs Lisp",
	"tex":     "TeX",
}

// Infer returns the language for the suffix after the last "." in entity,
// compared case-insensitively. ok is false when there is no dot or the
// suffix is unknown.
func Infer(entity string) (language string, ok bool) {
	i := strings.LastIndexByte(entity, '.')
	if i < 0 {
		return "", false
	}
	language, ok = extensions[strings.ToLower(entity[i+1:])]
	return language, ok
}
