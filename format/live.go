package format

import "strings"

// bracketTree pairs brackets in a token stream and records the innermost
// bracket enclosing every token. Template substitutions count as brackets.
type bracketTree struct {
	toks    []token
	parent  []int
	match   []int
	classes map[int]bool
}

func newBracketTree(toks []token) *bracketTree {
	bt := &bracketTree{
		toks:    toks,
		parent:  make([]int, len(toks)),
		match:   make([]int, len(toks)),
		classes: make(map[int]bool),
	}
	var stack []int
	top := func() int {
		if len(stack) == 0 {
			return -1
		}
		return stack[len(stack)-1]
	}
	pop := func(i int) {
		if len(stack) == 0 {
			return
		}
		open := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		bt.match[open] = i
		bt.match[i] = open
	}
	for i, t := range toks {
		bt.match[i] = -1
		switch {
		case t.kind == tokPunct && (t.text == "(" || t.text == "[" || t.text == "{"):
			bt.parent[i] = top()
			stack = append(stack, i)
		case t.kind == tokPunct && (t.text == ")" || t.text == "]" || t.text == "}"):
			pop(i)
			bt.parent[i] = top()
		case t.kind == tokTemplate:
			if strings.HasPrefix(t.text, "}") {
				pop(i)
			}
			bt.parent[i] = top()
			if strings.HasSuffix(t.text, "${") {
				stack = append(stack, i)
			}
		default:
			bt.parent[i] = top()
		}
	}

	for i, t := range toks {
		if !t.is(tokIdent, "class") || tokenAt(toks, i-1).is(tokPunct, ".") {
			continue
		}
		for j := i + 1; j < len(toks) && toks[j].depth >= t.depth; j++ {
			if toks[j].depth == t.depth && toks[j].is(tokPunct, "{") {
				bt.classes[j] = true
				break
			}
		}
	}
	return bt
}

// end returns the index of the bracket closing open, or the last token when
// it is unbalanced.
func (bt *bracketTree) end(open int) int {
	if open < 0 || open >= len(bt.toks) || bt.match[open] < open {
		return len(bt.toks) - 1
	}
	return bt.match[open]
}

var (
	expressionKeywords = map[string]bool{
		"return": true, "yield": true, "await": true, "typeof": true, "void": true,
		"delete": true, "in": true, "of": true, "instanceof": true, "new": true,
		"case": true, "throw": true,
	}
	declarationKeywords = map[string]bool{
		"break": true, "continue": true, "function": true, "class": true,
		"let": true, "const": true, "var": true,
	}
	memberModifiers = map[string]bool{
		"static": true, "get": true, "set": true, "async": true, "accessor": true,
	}
)

type braceKind int

const (
	blockBrace braceKind = iota
	objectBrace
	classBrace
)

func (bt *bracketTree) brace(open int) braceKind {
	if bt.classes[open] {
		return classBrace
	}
	prev := tokenAt(bt.toks, open-1)
	switch prev.kind {
	case tokPunct:
		switch prev.text {
		case "", ";", "{", "}", ")", "=>":
			return blockBrace
		}
		return objectBrace
	case tokIdent:
		if expressionKeywords[prev.text] {
			return objectBrace
		}
	case tokTemplate:
		return objectBrace
	}
	return blockBrace
}

// head reports whether the "(" at open belongs to a statement head rather
// than a parameter list or call.
func (bt *bracketTree) head(open int) bool {
	prev := tokenAt(bt.toks, open-1)
	if prev.kind != tokIdent || tokenAt(bt.toks, open-2).is(tokPunct, ".") {
		return false
	}
	return headKeywords[prev.text] || prev.text == "switch" || prev.text == "catch"
}

func (bt *bracketTree) functionBody(open int) bool {
	prev := tokenAt(bt.toks, open-1)
	if prev.is(tokPunct, "=>") {
		return true
	}
	return prev.is(tokPunct, ")") && bt.match[open-1] >= 0 && !bt.head(bt.match[open-1])
}

// lexicalScope is the token range a let, const, class or function
// declaration at i is visible in.
func (bt *bracketTree) lexicalScope(i int) (int, int) {
	p := bt.parent[i]
	if p < 0 {
		return 0, len(bt.toks) - 1
	}
	if bt.toks[p].is(tokPunct, "(") {
		closing := bt.end(p)
		if tokenAt(bt.toks, closing+1).is(tokPunct, "{") {
			return p, bt.end(closing + 1)
		}
		_, to := bt.lexicalScope(p)
		return p, to
	}
	return p, bt.end(p)
}

func (bt *bracketTree) functionScope(i int) (int, int) {
	for p := bt.parent[i]; p >= 0; p = bt.parent[p] {
		if bt.toks[p].is(tokPunct, "{") && bt.functionBody(p) {
			return p, bt.end(p)
		}
	}
	return 0, len(bt.toks) - 1
}

// inExpression reports whether the function or class keyword at i starts an
// expression rather than a declaration.
func (bt *bracketTree) inExpression(i int) bool {
	if tokenAt(bt.toks, i-1).is(tokIdent, "async") {
		i--
	}
	prev := tokenAt(bt.toks, i-1)
	switch prev.kind {
	case tokPunct:
		switch prev.text {
		case "", ";", "{", "}", ")":
			return false
		}
		return true
	case tokIdent:
		return expressionKeywords[prev.text]
	case tokTemplate:
		return true
	}
	return false
}

// bodyEnd returns the end of the first brace block following i at the same
// depth.
func (bt *bracketTree) bodyEnd(i int) int {
	depth := bt.toks[i].depth
	for j := i + 1; j < len(bt.toks) && bt.toks[j].depth >= depth; j++ {
		if bt.toks[j].depth == depth && bt.toks[j].is(tokPunct, "{") {
			return bt.end(j)
		}
	}
	return len(bt.toks) - 1
}

func (bt *bracketTree) arrowEnd(arrow int) int {
	body := arrow + 1
	if tokenAt(bt.toks, body).is(tokPunct, "{") {
		return bt.end(body)
	}
	base := tokenAt(bt.toks, body).depth
	j := body
	for ; j < len(bt.toks); j++ {
		t := bt.toks[j]
		if t.depth < base || t.depth == base && t.kind == tokPunct && (t.text == "," || t.text == ";") {
			break
		}
		if j > body && t.depth == base && t.nl && !continues(bt.toks[j-1], t) {
			break
		}
	}
	return j - 1
}

// bindings collects the names bound by the parameter list or destructuring
// pattern opened at open. Keys and default values are skipped.
func (bt *bracketTree) bindings(open int) []string {
	end := bt.end(open)
	depth := bt.toks[open].depth + 1
	var names []string
	for j := open + 1; j < end; j++ {
		t := bt.toks[j]
		switch {
		case t.is(tokPunct, "{") || t.is(tokPunct, "["):
			names = append(names, bt.bindings(j)...)
			j = bt.end(j)
		case t.is(tokPunct, "="):
			for j+1 < end && !(bt.toks[j+1].depth == depth && bt.toks[j+1].is(tokPunct, ",")) {
				j++
			}
		case t.kind == tokIdent && !tokenAt(bt.toks, j+1).is(tokPunct, ":"):
			names = append(names, t.text)
		}
	}
	return names
}

type shadow struct {
	name     string
	from, to int
}

// shadows finds the local declarations of names and the token ranges they
// hide the outer binding in.
func (bt *bracketTree) shadows(names map[string]string) []shadow {
	var out []shadow
	add := func(name string, from, to int) {
		if _, ok := names[name]; ok {
			out = append(out, shadow{name: name, from: from, to: to})
		}
	}
	for i, t := range bt.toks {
		if tokenAt(bt.toks, i-1).is(tokPunct, ".") {
			continue
		}
		switch {
		case t.is(tokIdent, "let") || t.is(tokIdent, "const") || t.is(tokIdent, "var"):
			from, to := bt.lexicalScope(i)
			if t.text == "var" {
				from, to = bt.functionScope(i)
			}
			decl := &esmScanner{toks: bt.toks, i: i + 1}
			for _, name := range decl.declarators() {
				add(name, from, to)
			}

		case t.is(tokIdent, "function") || t.is(tokIdent, "class"):
			j := i + 1
			if tokenAt(bt.toks, j).is(tokPunct, "*") {
				j++
			}
			name := tokenAt(bt.toks, j)
			if name.kind != tokIdent || name.text == "extends" {
				continue
			}
			if bt.inExpression(i) {
				add(name.text, i, bt.bodyEnd(j))
			} else {
				from, to := bt.lexicalScope(i)
				add(name.text, from, to)
			}

		case t.is(tokIdent, "catch") && tokenAt(bt.toks, i+1).is(tokPunct, "("):
			open := i + 1
			to := bt.end(open)
			if tokenAt(bt.toks, to+1).is(tokPunct, "{") {
				to = bt.end(to + 1)
			}
			for _, name := range bt.bindings(open) {
				add(name, open, to)
			}

		case t.is(tokPunct, "=>"):
			from := i - 1
			var params []string
			switch p := tokenAt(bt.toks, i-1); {
			case p.kind == tokIdent:
				params = []string{p.text}
			case p.is(tokPunct, ")") && bt.match[i-1] >= 0:
				from = bt.match[i-1]
				params = bt.bindings(from)
			}
			to := bt.arrowEnd(i)
			for _, name := range params {
				add(name, from, to)
			}

		case t.is(tokPunct, "(") && !bt.head(i) && tokenAt(bt.toks, bt.end(i)+1).is(tokPunct, "{"):
			to := bt.end(bt.end(i) + 1)
			for _, name := range bt.bindings(i) {
				add(name, i, to)
			}
		}
	}
	return out
}

func shadowed(shadows []shadow, name string, i int) bool {
	for _, s := range shadows {
		if s.name == name && s.from <= i && i <= s.to {
			return true
		}
	}
	return false
}

// reference returns the replacement for the imported name at i, or false
// when the token names a property, member, label or declaration instead.
func (bt *bracketTree) reference(i int, expr string) (string, bool) {
	t := bt.toks[i]
	prev, next := tokenAt(bt.toks, i-1), tokenAt(bt.toks, i+1)
	if prev.kind == tokPunct && (prev.text == "." || prev.text == "?." || prev.text == "#") {
		return "", false
	}
	if prev.kind == tokIdent && declarationKeywords[prev.text] {
		return "", false
	}
	listStart := prev.kind == tokPunct && (prev.text == "" || prev.text == "{" || prev.text == "," || prev.text == ";" || prev.text == "}")
	if next.is(tokPunct, ":") && listStart {
		return "", false
	}
	method := next.is(tokPunct, "(") && tokenAt(bt.toks, bt.end(i+1)+1).is(tokPunct, "{")

	if p := bt.parent[i]; p >= 0 && bt.toks[p].is(tokPunct, "{") {
		switch bt.brace(p) {
		case classBrace:
			if listStart || method || t.nl && !continues(prev, t) || prev.is(tokPunct, "*") || prev.kind == tokIdent && memberModifiers[prev.text] {
				return "", false
			}
		case objectBrace:
			if method {
				return "", false
			}
			if (prev.is(tokPunct, "{") || prev.is(tokPunct, ",")) && (next.is(tokPunct, ",") || next.is(tokPunct, "}")) {
				return t.text + ": " + expr, true
			}
		}
	}
	if next.is(tokPunct, "(") || next.kind == tokTemplate && strings.HasPrefix(next.text, "`") {
		return "(0, " + expr + ")", true
	}
	return expr, true
}

// liveImports rewrites every reference to a default or named import into a
// read of the dependency namespace, so the importer sees the exporter's
// current value.
func (s *esmScanner) liveImports() {
	live := make(map[string]string)
	for i, imp := range s.out.Imports {
		ns := "__m" + itoa(i)
		for _, b := range imp.Bindings {
			if b.Imported != "*" {
				live[b.Local] = member(ns, b.Imported)
			}
		}
	}
	if len(live) == 0 {
		return
	}
	s.out.Live = live

	bt := newBracketTree(s.toks)
	shadows := bt.shadows(live)
	for i, t := range s.toks {
		expr, ok := live[t.text]
		if !ok || t.kind != tokIdent || s.declaration(i) || shadowed(shadows, t.text, i) {
			continue
		}
		if text, ok := bt.reference(i, expr); ok {
			s.edits = append(s.edits, edit{t.start, t.end, text})
		}
	}
}

// declaration reports whether token i lies inside a removed import or
// export declaration.
func (s *esmScanner) declaration(i int) bool {
	for _, r := range s.removed {
		if r[0] <= i && i < r[1] {
			return true
		}
	}
	return false
}

func member(ns, name string) string {
	if isIdentifier(name) {
		return ns + "." + name
	}
	return ns + "[" + quote(name) + "]"
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
