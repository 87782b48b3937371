package markdown

import (
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// PlainTextLanguage is the remote's language for unhighlighted code
const PlainTextLanguage = "plain text"

// codeLanguages is the set of code block languages the remote accepts
var codeLanguages = map[string]bool{
	"abap": true, "arduino": true, "bash": true, "basic": true, "c": true,
	"clojure": true, "coffeescript": true, "c++": true, "c#": true, "css": true,
	"dart": true, "diff": true, "docker": true, "elixir": true, "elm": true,
	"erlang": true, "flow": true, "fortran": true, "f#": true, "gherkin": true,
	"glsl": true, "go": true, "graphql": true, "groovy": true, "haskell": true,
	"html": true, "java": true, "javascript": true, "json": true, "julia": true,
	"kotlin": true, "latex": true, "less": true, "lisp": true, "livescript": true,
	"lua": true, "makefile": true, "markdown": true, "markup": true, "matlab": true,
	"mermaid": true, "nix": true, "objective-c": true, "ocaml": true, "pascal": true,
	"perl": true, "php": true, "plain text": true, "powershell": true, "prolog": true,
	"protobuf": true, "python": true, "r": true, "reason": true, "ruby": true,
	"rust": true, "sass": true, "scala": true, "scheme": true, "scss": true,
	"shell": true, "sql": true, "swift": true, "typescript": true, "vb.net": true,
	"verilog": true, "vhdl": true, "visual basic": true, "webassembly": true,
	"xml": true, "yaml": true, "java/c/c++/c#": true,
}

// languageAliases maps fence info strings and detector names to remote languages
var languageAliases = map[string]string{
	"js":         "javascript",
	"jsx":        "javascript",
	"mjs":        "javascript",
	"ts":         "typescript",
	"tsx":        "typescript",
	"py":         "python",
	"python3":    "python",
	"rb":         "ruby",
	"rs":         "rust",
	"golang":     "go",
	"sh":         "shell",
	"zsh":        "shell",
	"console":    "shell",
	"ps1":        "powershell",
	"pwsh":       "powershell",
	"yml":        "yaml",
	"md":         "markdown",
	"cpp":        "c++",
	"cxx":        "c++",
	"cs":         "c#",
	"csharp":     "c#",
	"fs":         "f#",
	"fsharp":     "f#",
	"kt":         "kotlin",
	"hs":         "haskell",
	"ex":         "elixir",
	"exs":        "elixir",
	"dockerfile": "docker",
	"make":       "makefile",
	"tex":        "latex",
	"objc":       "objective-c",
	"proto":      "protobuf",
	"wasm":       "webassembly",
	"vb":         "visual basic",
	"text":       PlainTextLanguage,
	"txt":        PlainTextLanguage,
	"plain":      PlainTextLanguage,
	"plaintext":  PlainTextLanguage,

	// go-enry names
	"protocol buffer": "protobuf",
	"emacs lisp":      "lisp",
	"common lisp":     "lisp",
}

// detectCandidates limits content classification to common languages
var detectCandidates = []string{
	"Go", "Python", "JavaScript", "TypeScript", "Shell", "Rust", "Java", "C",
	"C++", "C#", "Ruby", "PHP", "SQL", "JSON", "YAML", "HTML", "CSS", "Kotlin",
	"Swift", "Lua",
}

// CodeLanguage maps a fence info string to a remote language. When the fence
// names no language the code is classified with go-enry; anything unknown
// becomes plain text.
func CodeLanguage(info, code string) string {
	if lang := normalizeLanguage(info); lang != "" {
		return lang
	}
	if strings.TrimSpace(info) != "" {
		return PlainTextLanguage
	}
	return detectLanguage(code)
}

func normalizeLanguage(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}

	candidates := []string{strings.Join(fields, " "), fields[0]}
	for _, candidate := range candidates {
		if alias, ok := languageAliases[candidate]; ok {
			return alias
		}
		if codeLanguages[candidate] {
			return candidate
		}
	}
	return ""
}

func detectLanguage(code string) string {
	if strings.TrimSpace(code) == "" {
		return PlainTextLanguage
	}
	content := []byte(code)

	if lang, safe := enry.GetLanguageByShebang(content); safe {
		if normalized := normalizeLanguage(lang); normalized != "" {
			return normalized
		}
	}

	if lang, _ := enry.GetLanguageByClassifier(content, detectCandidates); lang != "" {
		if normalized := normalizeLanguage(lang); normalized != "" {
			return normalized
		}
	}

	return PlainTextLanguage
}

// fenceLanguage is the info string written for a remote language
func fenceLanguage(lang string) string {
	switch lang {
	case "", PlainTextLanguage:
		return "text"
	case "java/c/c++/c#":
		return "java"
	case "visual basic":
		return "vb"
	}
	return lang
}
