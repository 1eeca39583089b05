package format

import (
	"encoding/json"
	"sort"
	"strings"
)

// importBinding is one local name bound by a static import.
type importBinding struct {
	Local    string
	Imported string // "*" for namespace imports
}

type importDecl struct {
	Specifier string
	Bindings  []importBinding
}

// reExport forwards Imported of Specifier as Exported. Imported "*" forwards
// the whole namespace.
type reExport struct {
	Exported  string
	Imported  string
	Specifier string
}

// esmSource is the result of scanning declarative-export source.
type esmSource struct {
	Requests  []string
	Imports   []importDecl
	Locals    map[string]string // exported name -> local binding
	Order     []string          // exported local names in source order
	ReExports []reExport
	Stars     []string
	Live      map[string]string // imported local -> namespace read
	Code      string
}

type edit struct {
	start, end int
	text       string
}

const defaultBinding = "__default"

// esmScanner recognizes module declarations at the top level of a token
// stream and records the edits that turn the source into a function body.
type esmScanner struct {
	lx      *lexer
	toks    []token
	i       int
	out     *esmSource
	edits   []edit
	seen    map[string]bool
	removed [][2]int
}

// hasModuleSyntax reports whether src contains a top-level import or export
// declaration, or an import.meta reference.
func hasModuleSyntax(src string) bool {
	lx := lex(src)
	for i, t := range lx.tokens {
		if t.kind != tokIdent || (t.text != "import" && t.text != "export") {
			continue
		}
		if i > 0 && lx.tokens[i-1].is(tokPunct, ".") {
			continue
		}
		next := tokenAt(lx.tokens, i+1)
		if t.text == "import" {
			if next.is(tokPunct, ".") && tokenAt(lx.tokens, i+2).is(tokIdent, "meta") {
				return true
			}
			if t.depth == 0 && !next.is(tokPunct, "(") && !next.is(tokPunct, ".") {
				return true
			}
			continue
		}
		if t.depth == 0 {
			return true
		}
	}
	return false
}

func tokenAt(toks []token, i int) token {
	if i < 0 || i >= len(toks) {
		return token{kind: tokPunct, start: -1, end: -1, text: ""}
	}
	return toks[i]
}

// scanESM parses the module declarations of src and rewrites it into the body
// of an async function: declarations are blanked, import() becomes __import(,
// import.meta becomes __meta and imported names read through their namespace.
func scanESM(src string) (*esmSource, error) {
	lx := lex(src)
	s := &esmScanner{
		lx:   lx,
		toks: lx.tokens,
		out:  &esmSource{Locals: make(map[string]string)},
		seen: make(map[string]bool),
	}
	for _, c := range lx.comments {
		if c[0] == 0 && strings.HasPrefix(src, "#!") {
			s.edits = append(s.edits, edit{c[0], c[1], ""})
		}
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	s.liveImports()
	s.out.Code = applyEdits(src, s.edits)
	return s.out, nil
}

func (s *esmScanner) peek(n int) token { return tokenAt(s.toks, s.i+n) }

func (s *esmScanner) request(spec string) {
	if !s.seen[spec] {
		s.seen[spec] = true
		s.out.Requests = append(s.out.Requests, spec)
	}
}

func (s *esmScanner) export(name, local string) error {
	if _, dup := s.out.Locals[name]; dup {
		return syntaxError("duplicate export " + name)
	}
	for _, r := range s.out.ReExports {
		if r.Exported == name {
			return syntaxError("duplicate export " + name)
		}
	}
	s.out.Locals[name] = local
	s.out.Order = append(s.out.Order, name)
	return nil
}

func (s *esmScanner) scan() error {
	for s.i < len(s.toks) {
		t := s.toks[s.i]
		if t.kind != tokIdent || s.peek(-1).is(tokPunct, ".") {
			s.i++
			continue
		}
		switch t.text {
		case "import":
			next := s.peek(1)
			if next.is(tokPunct, "(") {
				s.edits = append(s.edits, edit{t.start, t.end, "__import"})
				s.i++
				continue
			}
			if next.is(tokPunct, ".") && s.peek(2).is(tokIdent, "meta") {
				s.edits = append(s.edits, edit{t.start, s.peek(2).end, "__meta"})
				s.i += 3
				continue
			}
			if t.depth == 0 {
				if err := s.importDecl(); err != nil {
					return err
				}
				continue
			}
		case "export":
			if t.depth == 0 {
				if err := s.exportDecl(); err != nil {
					return err
				}
				continue
			}
		}
		s.i++
	}
	return nil
}

// blank removes tokens [from, s.i) from the output, keeping line breaks.
func (s *esmScanner) blank(from int) {
	start := s.toks[from].start
	end := s.toks[s.i-1].end
	s.edits = append(s.edits, edit{start, end, keepNewlines(s.lx.src[start:end])})
	s.removed = append(s.removed, [2]int{from, s.i})
}

func keepNewlines(text string) string {
	return strings.Repeat("\n", strings.Count(text, "\n"))
}

// finish consumes an optional import attributes clause and semicolon.
func (s *esmScanner) finish() {
	if t := s.peek(0); (t.is(tokIdent, "with") || t.is(tokIdent, "assert")) && !t.nl && s.peek(1).is(tokPunct, "{") {
		s.i++
		s.skipBalanced()
	}
	if s.peek(0).is(tokPunct, ";") {
		s.i++
	}
}

// skipBalanced consumes an opening bracket and everything up to its match.
func (s *esmScanner) skipBalanced() {
	open := s.toks[s.i]
	s.i++
	for s.i < len(s.toks) {
		t := s.toks[s.i]
		s.i++
		if t.kind == tokPunct && t.depth == open.depth && (t.text == "}" || t.text == ")" || t.text == "]") {
			return
		}
	}
}

func (s *esmScanner) expectString() (string, error) {
	t := s.peek(0)
	if t.kind != tokString {
		return "", syntaxError("expected module specifier at offset " + itoa(t.start))
	}
	s.i++
	return unquote(t.text), nil
}

func (s *esmScanner) expectFrom() (string, error) {
	if !s.peek(0).is(tokIdent, "from") {
		return "", syntaxError("expected 'from' at offset " + itoa(s.peek(0).start))
	}
	s.i++
	return s.expectString()
}

// moduleName reads an identifier or string literal used as an export name.
func (s *esmScanner) moduleName() (string, error) {
	t := s.peek(0)
	switch t.kind {
	case tokIdent:
		s.i++
		return t.text, nil
	case tokString:
		s.i++
		return unquote(t.text), nil
	}
	return "", syntaxError("expected name at offset " + itoa(t.start))
}

// namedList parses "{ a, b as c, "d" as e }" into (name, alias) pairs.
func (s *esmScanner) namedList() ([][2]string, error) {
	s.i++ // {
	var out [][2]string
	for {
		t := s.peek(0)
		if t.is(tokPunct, "}") {
			s.i++
			return out, nil
		}
		if t.start < 0 {
			return nil, syntaxError("unterminated specifier list")
		}
		name, err := s.moduleName()
		if err != nil {
			return nil, err
		}
		alias := name
		if s.peek(0).is(tokIdent, "as") {
			s.i++
			if alias, err = s.moduleName(); err != nil {
				return nil, err
			}
		}
		out = append(out, [2]string{name, alias})
		if s.peek(0).is(tokPunct, ",") {
			s.i++
		}
	}
}

func (s *esmScanner) importDecl() error {
	from := s.i
	s.i++ // import

	if s.peek(0).kind == tokString {
		spec, _ := s.expectString()
		s.finish()
		s.request(spec)
		s.out.Imports = append(s.out.Imports, importDecl{Specifier: spec})
		s.blank(from)
		return nil
	}

	var bindings []importBinding
	if t := s.peek(0); t.kind == tokIdent && t.text != "from" || t.is(tokIdent, "from") && s.peek(1).is(tokIdent, "from") {
		bindings = append(bindings, importBinding{Local: t.text, Imported: "default"})
		s.i++
		if s.peek(0).is(tokPunct, ",") {
			s.i++
		}
	}

	switch t := s.peek(0); {
	case t.is(tokPunct, "*"):
		s.i++
		if !s.peek(0).is(tokIdent, "as") || s.peek(1).kind != tokIdent {
			return syntaxError("expected 'as' after '*' at offset " + itoa(t.start))
		}
		bindings = append(bindings, importBinding{Local: s.peek(1).text, Imported: "*"})
		s.i += 2
	case t.is(tokPunct, "{"):
		names, err := s.namedList()
		if err != nil {
			return err
		}
		for _, n := range names {
			bindings = append(bindings, importBinding{Local: n[1], Imported: n[0]})
		}
	}

	spec, err := s.expectFrom()
	if err != nil {
		return err
	}
	s.finish()
	s.request(spec)
	s.out.Imports = append(s.out.Imports, importDecl{Specifier: spec, Bindings: bindings})
	s.blank(from)
	return nil
}

func (s *esmScanner) exportDecl() error {
	from := s.i
	s.i++ // export
	t := s.peek(0)

	switch {
	case t.is(tokIdent, "default"):
		s.i++
		if name := s.declarationName(); name != "" {
			s.edits = append(s.edits, edit{s.toks[from].start, t.end, ""})
			return s.export("default", name)
		}
		s.edits = append(s.edits, edit{s.toks[from].start, t.end, "const " + defaultBinding + " ="})
		return s.export("default", defaultBinding)

	case t.is(tokPunct, "*"):
		s.i++
		exported := ""
		if s.peek(0).is(tokIdent, "as") {
			s.i++
			name, err := s.moduleName()
			if err != nil {
				return err
			}
			exported = name
		}
		spec, err := s.expectFrom()
		if err != nil {
			return err
		}
		s.finish()
		s.request(spec)
		if exported == "" {
			s.out.Stars = append(s.out.Stars, spec)
		} else {
			s.out.ReExports = append(s.out.ReExports, reExport{Exported: exported, Imported: "*", Specifier: spec})
		}
		s.blank(from)
		return nil

	case t.is(tokPunct, "{"):
		names, err := s.namedList()
		if err != nil {
			return err
		}
		if s.peek(0).is(tokIdent, "from") {
			spec, err := s.expectFrom()
			if err != nil {
				return err
			}
			s.finish()
			s.request(spec)
			for _, n := range names {
				if _, dup := s.out.Locals[n[1]]; dup {
					return syntaxError("duplicate export " + n[1])
				}
				s.out.ReExports = append(s.out.ReExports, reExport{Exported: n[1], Imported: n[0], Specifier: spec})
			}
		} else {
			s.finish()
			for _, n := range names {
				if err := s.export(n[1], n[0]); err != nil {
					return err
				}
			}
		}
		s.blank(from)
		return nil

	case t.is(tokIdent, "var") || t.is(tokIdent, "let") || t.is(tokIdent, "const"):
		s.edits = append(s.edits, edit{s.toks[from].start, s.toks[from].end, ""})
		s.i++
		for _, name := range s.declarators() {
			if err := s.export(name, name); err != nil {
				return err
			}
		}
		return nil

	default:
		name := s.declarationName()
		if name == "" {
			return syntaxError("unsupported export form at offset " + itoa(t.start))
		}
		s.edits = append(s.edits, edit{s.toks[from].start, s.toks[from].end, ""})
		return s.export(name, name)
	}
}

// declarationName returns the name of a function or class declaration
// starting at the current token, or "" for anything else. The tokens are
// not consumed.
func (s *esmScanner) declarationName() string {
	j := s.i
	if tokenAt(s.toks, j).is(tokIdent, "async") && tokenAt(s.toks, j+1).is(tokIdent, "function") {
		j++
	}
	switch {
	case tokenAt(s.toks, j).is(tokIdent, "function"):
		j++
		if tokenAt(s.toks, j).is(tokPunct, "*") {
			j++
		}
	case tokenAt(s.toks, j).is(tokIdent, "class"):
		j++
	default:
		return ""
	}
	name := tokenAt(s.toks, j)
	if name.kind != tokIdent || name.text == "extends" {
		return ""
	}
	return name.text
}

// declarators collects the names bound by a variable declaration list and
// stops at the end of the statement.
func (s *esmScanner) declarators() []string {
	var names []string
	for s.i < len(s.toks) {
		t := s.peek(0)
		switch {
		case t.is(tokPunct, "{") || t.is(tokPunct, "["):
			names = append(names, s.patternNames()...)
		case t.kind == tokIdent:
			names = append(names, t.text)
			s.i++
		default:
			return names
		}
		if s.peek(0).is(tokPunct, "=") {
			s.i++
			s.skipExpression()
		}
		if !s.peek(0).is(tokPunct, ",") {
			if s.peek(0).is(tokPunct, ";") {
				s.i++
			}
			return names
		}
		s.i++
	}
	return names
}

// patternNames collects the identifiers bound by a destructuring pattern.
func (s *esmScanner) patternNames() []string {
	open := s.peek(0)
	s.i++
	var names []string
	for s.i < len(s.toks) {
		t := s.peek(0)
		if t.kind == tokPunct && t.depth == open.depth && (t.text == "}" || t.text == "]") {
			s.i++
			return names
		}
		switch {
		case t.is(tokPunct, "{") || t.is(tokPunct, "["):
			names = append(names, s.patternNames()...)
			continue
		case t.is(tokPunct, "="):
			s.i++
			s.skipUntilPatternSeparator(open.depth + 1)
			continue
		case t.kind == tokIdent:
			next := s.peek(1)
			if next.is(tokPunct, ":") {
				s.i += 2
				continue
			}
			if next.is(tokPunct, ",") || next.is(tokPunct, "=") || next.is(tokPunct, "}") || next.is(tokPunct, "]") {
				names = append(names, t.text)
			}
		}
		s.i++
	}
	return names
}

func (s *esmScanner) skipUntilPatternSeparator(depth int) {
	for s.i < len(s.toks) {
		t := s.peek(0)
		if t.kind == tokPunct && (t.depth < depth || t.depth == depth && t.text == ",") {
			return
		}
		s.i++
	}
}

// skipExpression consumes an initializer up to a top-level ",", ";" or a
// line break that cannot continue the expression.
func (s *esmScanner) skipExpression() {
	base := s.peek(0).depth
	first := true
	for s.i < len(s.toks) {
		t := s.peek(0)
		if t.depth < base {
			return
		}
		if t.depth == base && t.kind == tokPunct && (t.text == "," || t.text == ";") {
			return
		}
		if !first && t.depth == base && t.nl && !continues(s.peek(-1), t) {
			return
		}
		first = false
		s.i++
	}
}

var continuationPuncts = map[string]bool{
	".": true, "?.": true, "(": true, "[": true, "?": true, ":": true, "=>": true,
	"+": true, "-": true, "*": true, "/": true, "%": true, "**": true,
	"&&": true, "||": true, "??": true, "&": true, "|": true, "^": true,
	"==": true, "===": true, "!=": true, "!==": true, "<": true, ">": true,
	"<=": true, ">=": true, "<<": true, ">>": true, ">>>": true, "=": true,
}

// continues reports whether next, starting a new line, continues the
// expression that prev ended.
func continues(prev, next token) bool {
	if prev.kind == tokPunct && (continuationPuncts[prev.text] || prev.text == "," || prev.text == "{") {
		return true
	}
	if next.kind == tokPunct && continuationPuncts[next.text] && next.text != "(" && next.text != "[" {
		return true
	}
	if next.kind == tokTemplate && strings.HasPrefix(next.text, "}") {
		return true
	}
	return prev.is(tokIdent, "new") || prev.is(tokIdent, "await") || prev.is(tokIdent, "typeof")
}

func applyEdits(src string, edits []edit) string {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	pos := 0
	for _, e := range edits {
		if e.start < pos {
			continue
		}
		b.WriteString(src[pos:e.start])
		b.WriteString(e.text)
		pos = e.end
	}
	b.WriteString(src[pos:])
	return b.String()
}

// prologue renders the statements placed before the rewritten body: export
// registration followed by the dependency namespaces. Named imports have no
// declaration of their own; the body reads them through the namespace.
func (m *esmSource) prologue() string {
	var b strings.Builder
	if len(m.Order) > 0 {
		b.WriteString("__export({")
		for i, name := range m.Order {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quote(name))
			b.WriteString(": () => ")
			b.WriteString(m.binding(m.Locals[name]))
		}
		b.WriteString("});")
	}
	for i, imp := range m.Imports {
		if len(imp.Bindings) == 0 {
			continue
		}
		ns := "__m" + itoa(i)
		b.WriteString("const " + ns + " = __dep(" + quote(imp.Specifier) + ");")
		for _, bind := range imp.Bindings {
			if bind.Imported == "*" {
				b.WriteString("const " + bind.Local + " = " + ns + ";")
			}
		}
	}
	return b.String()
}

func (m *esmSource) binding(local string) string {
	if expr, ok := m.Live[local]; ok {
		return expr
	}
	return local
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
