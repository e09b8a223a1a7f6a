package manifest

import (
	"fmt"
	"strings"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// setupKeywordQuery captures every keyword argument of every call; calls
// that are not setup() are filtered out afterwards
const setupKeywordQuery = `
(call
  function: (_) @fn
  arguments: (argument_list
    (keyword_argument
      name: (identifier) @kw
      value: (_) @value)))
`

// assignmentQuery captures module-level `NAME = value` statements so that
// install_requires=REQUIREMENTS can be resolved
const assignmentQuery = `
(module
  (expression_statement
    (assignment
      left: (identifier) @name
      right: (_) @value)))
`

var (
	pythonOnce sync.Once
	pythonLang *sitter.Language
	pythonErr  error
)

// loadPython loads the Python grammar once per process
func loadPython() (*sitter.Language, error) {
	pythonOnce.Do(func() {
		ptr := tree_sitter_python.Language()
		if ptr == nil {
			pythonErr = fmt.Errorf("failed to load Python language grammar")
			return
		}
		pythonLang = sitter.NewLanguage(ptr)
	})
	return pythonLang, pythonErr
}

// capture is one query match flattened to capture name -> node
type capture map[string]*sitter.Node

func runQuery(lang *sitter.Language, root *sitter.Node, content []byte, src string) ([]capture, error) {
	query, qerr := sitter.NewQuery(lang, strings.TrimSpace(src))
	if qerr != nil {
		return nil, fmt.Errorf("failed to compile query: %v", qerr)
	}
	defer query.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()

	names := query.CaptureNames()
	var out []capture
	matches := cursor.Matches(query, root, content)
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		c := make(capture, len(match.Captures))
		for _, qc := range match.Captures {
			if int(qc.Index) < len(names) {
				node := qc.Node
				c[names[qc.Index]] = &node
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// setupPyEntries extracts the string literals of install_requires (and of
// every extras_require list) from the setup() call. Values given as a
// module-level name are resolved through its assignment.
func setupPyEntries(content []byte) ([]string, error) {
	lang, err := loadPython()
	if err != nil {
		return nil, err
	}

	// Parsers are not safe for concurrent use: one per file
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("failed to set Python language: %w", err)
	}
	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse setup.py")
	}
	defer tree.Close()
	root := tree.RootNode()

	assignments, err := runQuery(lang, root, content, assignmentQuery)
	if err != nil {
		return nil, err
	}
	globals := make(map[string]*sitter.Node, len(assignments))
	for _, a := range assignments {
		// Later assignments win, like at runtime
		globals[a["name"].Utf8Text(content)] = a["value"]
	}

	keywords, err := runQuery(lang, root, content, setupKeywordQuery)
	if err != nil {
		return nil, err
	}
	var entries []string
	var extras []string
	for _, k := range keywords {
		if !isSetupCall(k["fn"].Utf8Text(content)) {
			continue
		}
		value := resolve(k["value"], globals, content)
		switch k["kw"].Utf8Text(content) {
		case "install_requires":
			entries = append(entries, stringList(value, content)...)
		case "extras_require":
			extras = append(extras, extrasLists(value, globals, content)...)
		}
	}
	return append(entries, extras...), nil
}

func isSetupCall(fn string) bool {
	return fn == "setup" || strings.HasSuffix(fn, ".setup")
}

// resolve follows a bare identifier to its module-level value
func resolve(node *sitter.Node, globals map[string]*sitter.Node, content []byte) *sitter.Node {
	if node != nil && node.Kind() == "identifier" {
		if value, ok := globals[node.Utf8Text(content)]; ok {
			return value
		}
	}
	return node
}

// stringList returns the string elements of a list or tuple literal
func stringList(node *sitter.Node, content []byte) []string {
	if node == nil {
		return nil
	}
	if node.Kind() != "list" && node.Kind() != "tuple" {
		return nil
	}
	var out []string
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if s, ok := stringValue(node.NamedChild(i), content); ok {
			out = append(out, s)
		}
	}
	return out
}

// extrasLists flattens the list values of an extras_require dict literal
func extrasLists(node *sitter.Node, globals map[string]*sitter.Node, content []byte) []string {
	if node == nil || node.Kind() != "dictionary" {
		return nil
	}
	var out []string
	for i := uint(0); i < node.NamedChildCount(); i++ {
		pair := node.NamedChild(i)
		if pair == nil || pair.Kind() != "pair" {
			continue
		}
		value := resolve(pair.ChildByFieldName("value"), globals, content)
		out = append(out, stringList(value, content)...)
	}
	return out
}

// stringValue returns the literal text of a plain or implicitly
// concatenated string. f-strings with interpolations are not literals.
func stringValue(node *sitter.Node, content []byte) (string, bool) {
	if node == nil {
		return "", false
	}
	switch node.Kind() {
	case "string":
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if child := node.NamedChild(i); child != nil && child.Kind() == "interpolation" {
				return "", false
			}
		}
		return unquote(node.Utf8Text(content)), true
	case "concatenated_string":
		var b strings.Builder
		for i := uint(0); i < node.NamedChildCount(); i++ {
			part, ok := stringValue(node.NamedChild(i), content)
			if !ok {
				return "", false
			}
			b.WriteString(part)
		}
		return b.String(), true
	default:
		return "", false
	}
}

// unquote strips a string prefix (r, b, u, f in any case and order) and the
// surrounding quotes, triple or single
func unquote(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
