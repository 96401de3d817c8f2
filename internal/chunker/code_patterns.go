package chunker

import (
	"regexp"
	"strings"
)

// languagePattern pairs the two block-opener families for one language.
// Group names: unnamed groups hold candidate block names, tried in order;
// "lead" holds a leading word that must not be a keyword.
type languagePattern struct {
	syntax     *syntax
	typeOpener *regexp.Regexp
	callable   *regexp.Regexp
}

// keywords can never name a block; they show up when a callable pattern
// matches a control statement such as "else if (x) {".
var keywords = map[string]bool{
	"if": true, "else": true, "for": true, "foreach": true, "while": true, "do": true,
	"switch": true, "case": true, "catch": true, "try": true, "finally": true,
	"using": true, "lock": true, "fixed": true, "return": true, "new": true,
	"throw": true, "await": true, "typeof": true, "sizeof": true, "nameof": true,
	"function": true, "synchronized": true, "when": true, "yield": true,
	"delete": true, "in": true, "of": true, "import": true, "export": true,
	"goto": true, "default": true, "elif": true, "with": true,
}

var (
	csharpPattern = &languagePattern{
		syntax: &csSyntax,
		typeOpener: regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|internal|static|sealed|abstract|partial|readonly|file|unsafe|ref)\s+)*` +
			`(?:class|struct|interface|enum|record(?:\s+(?:class|struct))?)\s+(\w+)`),
		callable: regexp.MustCompile(`(?m)^[ \t]*(?:\[[^\]\n]*\]\s*)*(?:(?:public|private|protected|internal|static|virtual|override|abstract|async|sealed|extern|unsafe|new|partial|readonly)\s+)*` +
			`(?P<lead>[\w.]+(?:<[^>\n]*>)?(?:\[\])?\??)\s+(\w+)\s*(?:<[^>\n]*>)?\s*\(`),
	}

	javaPattern = &languagePattern{
		syntax: &cSyntax,
		typeOpener: regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|static|final|abstract|sealed|non-sealed|strictfp)\s+)*` +
			`(?:class|interface|enum|record|@interface)\s+(\w+)`),
		callable: regexp.MustCompile(`(?m)^[ \t]*(?:@\w+(?:\([^)\n]*\))?\s+)*(?:(?:public|private|protected|static|final|abstract|native|synchronized|default|strictfp)\s+)*` +
			`(?:<[^>\n]*>\s+)?(?P<lead>[\w.]+(?:<[^>\n]*>)?(?:\[\])*)\s+(\w+)\s*\(`),
	}

	pythonPattern = &languagePattern{
		syntax:     &pythonSyntax,
		typeOpener: regexp.MustCompile(`(?m)^[ \t]*class\s+(\w+)`),
		callable:   regexp.MustCompile(`(?m)^[ \t]*(?:async\s+)?def\s+(\w+)`),
	}

	javascriptPattern = &languagePattern{
		syntax:     &jsSyntax,
		typeOpener: regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:default\s+)?class\s+(\w+)`),
		callable: regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:default\s+)?(?:async\s+)?` +
			`(?:function\s*\*?\s*(\w+)` +
			`|(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:function\b|\([^)\n]*\)\s*=>|\w+\s*=>)` +
			`|(?:static\s+)?(?:async\s+)?(?:get\s+|set\s+)?(\w+)\s*\([^)\n]*\)\s*\{)`),
	}

	typescriptPattern = &languagePattern{
		syntax:     &jsSyntax,
		typeOpener: regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?(?:class|interface|enum)\s+(\w+)`),
		callable: regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:default\s+)?(?:declare\s+)?(?:async\s+)?` +
			`(?:function\s*\*?\s*(\w+)` +
			`|(?:const|let|var)\s+(\w+)\s*(?::[^=\n]+)?=\s*(?:async\s+)?(?:function\b|\([^)\n]*\)(?:\s*:\s*[^=\n]+)?\s*=>|\w+\s*=>)` +
			`|(?:(?:public|private|protected|static|readonly|abstract|override|async)\s+)*(?:get\s+|set\s+)?(\w+)\s*(?:<[^>\n]*>)?\s*\([^)\n]*\)(?:\s*:\s*[^{;\n]+)?\s*\{)`),
	}

	goPattern = &languagePattern{
		syntax:     &goSyntax,
		typeOpener: regexp.MustCompile(`(?m)^type\s+(\w+)(?:\[[^\]\n]*\])?\s+(?:struct|interface)\b`),
		callable:   regexp.MustCompile(`(?m)^func\s+(?:\([^)\n]*\)\s*)?(\w+)`),
	}

	rustPattern = &languagePattern{
		syntax: &cSyntax,
		typeOpener: regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([\w:\s]+\))?\s+)?(?:unsafe\s+)?` +
			`(?:struct|enum|trait|union|impl(?:<[^>\n]*>)?)\s+(\w+)`),
		callable: regexp.MustCompile(`(?m)^[ \t]*(?:pub(?:\([\w:\s]+\))?\s+)?(?:default\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?` +
			`(?:extern\s+"[^"\n]*"\s+)?fn\s+(\w+)`),
	}

	cPattern = &languagePattern{
		syntax: &cSyntax,
		typeOpener: regexp.MustCompile(`(?m)^[ \t]*(?:typedef\s+)?(?:template\s*<[^>\n]*>\s*)?` +
			`(?:class|struct|union|enum(?:\s+class)?|namespace)\s+(\w+)`),
		callable: regexp.MustCompile(`(?m)^[ \t]*(?:template\s*<[^>\n]*>\s*)?(?:(?:static|inline|extern|virtual|constexpr|explicit|friend|unsigned|signed|const|volatile)\s+)*` +
			`(?P<lead>[\w:<>,~]+)[\s*&]+(~?[\w:]+)\s*\(`),
	}

	kotlinPattern = &languagePattern{
		syntax: &cSyntax,
		typeOpener: regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|internal|data|sealed|abstract|open|inner|enum|annotation|value)\s+)*` +
			`(?:class|interface|object)\s+(\w+)`),
		callable: regexp.MustCompile(`(?m)^[ \t]*(?:(?:public|private|protected|internal|override|open|abstract|suspend|inline|operator|infix|tailrec)\s+)*` +
			`fun\s+(?:<[^>\n]*>\s*)?(?:[\w.]+\.)?(\w+)`),
	}
)

// languagePatterns maps a lower-case extension to its pattern pair. It is
// built once at package init and never modified.
var languagePatterns = map[string]*languagePattern{
	".cs":   csharpPattern,
	".java": javaPattern,
	".py":   pythonPattern,
	".pyi":  pythonPattern,
	".js":   javascriptPattern,
	".jsx":  javascriptPattern,
	".mjs":  javascriptPattern,
	".cjs":  javascriptPattern,
	".ts":   typescriptPattern,
	".tsx":  typescriptPattern,
	".go":   goPattern,
	".rs":   rustPattern,
	".c":    cPattern,
	".h":    cPattern,
	".cc":   cPattern,
	".cpp":  cPattern,
	".cxx":  cPattern,
	".hpp":  cPattern,
	".hh":   cPattern,
	".kt":   kotlinPattern,
	".kts":  kotlinPattern,
}

// patternFor returns the pattern pair for a file extension, or nil.
func patternFor(ext string) *languagePattern {
	return languagePatterns[strings.ToLower(ext)]
}

// blockName resolves the name captured by a match: the first unnamed group
// that matched. ok is false when any captured word is a keyword, meaning
// the match is a control statement rather than a declaration.
func blockName(re *regexp.Regexp, src string, loc []int) (name string, ok bool) {
	for i, group := range re.SubexpNames() {
		if i == 0 {
			continue
		}
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			continue
		}
		word := src[start:end]
		if keywords[word] {
			return "", false
		}
		if group == "" && name == "" {
			name = word
		}
	}
	return name, true
}
