package format

import "strings"

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokPunct
	tokString
	tokTemplate
	tokNumber
	tokRegex
)

// token is one significant lexeme. Depth counts the (), [] and {} enclosing
// the token; closing punctuation carries the depth outside it.
type token struct {
	kind  tokenKind
	start int
	end   int
	depth int
	nl    bool
	text  string
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// lexer splits script source into tokens, skipping comments and whitespace.
// It understands enough of the grammar (strings, template literals with
// substitutions, regular expression literals) to keep nesting depth right.
type lexer struct {
	src       string
	pos       int
	depth     int
	nl        bool
	templates []int
	comments  [][2]int
	tokens    []token

	// heads marks each open "(" that starts an if, while, for or with head.
	// closedHead is set when the last ")" closed one of them.
	heads      []bool
	closedHead bool
}

var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

func lex(src string) *lexer {
	l := &lexer{src: src}
	if strings.HasPrefix(src, "#!") {
		end := strings.IndexByte(src, '\n')
		if end < 0 {
			end = len(src)
		}
		l.comments = append(l.comments, [2]int{0, end})
		l.pos = end
	}
	l.run()
	return l
}

func (l *lexer) emit(kind tokenKind, start int) {
	l.tokens = append(l.tokens, token{
		kind:  kind,
		start: start,
		end:   l.pos,
		depth: l.depth,
		nl:    l.nl,
		text:  l.src[start:l.pos],
	})
	l.nl = false
}

func (l *lexer) run() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.nl = true
			l.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
		case c == '/' && l.peek(1) == '/':
			start := l.pos
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			l.comments = append(l.comments, [2]int{start, l.pos})
		case c == '/' && l.peek(1) == '*':
			start := l.pos
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				l.pos = len(l.src)
			} else {
				l.pos += end + 4
			}
			if strings.Contains(l.src[start:l.pos], "\n") {
				l.nl = true
			}
			l.comments = append(l.comments, [2]int{start, l.pos})
		case c == '\'' || c == '"':
			start := l.pos
			l.skipString(c)
			l.emit(tokString, start)
		case c == '`':
			start := l.pos
			l.pos++
			l.template(start)
		case c == '/' && l.regexAllowed():
			start := l.pos
			l.skipRegex()
			l.emit(tokRegex, start)
		case isIdentStart(c):
			start := l.pos
			for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
				l.pos++
			}
			l.emit(tokIdent, start)
		case c >= '0' && c <= '9' || c == '.' && isDigit(l.peek(1)):
			start := l.pos
			for l.pos < len(l.src) && (isIdentPart(l.src[l.pos]) || l.src[l.pos] == '.') {
				l.pos++
			}
			l.emit(tokNumber, start)
		default:
			l.punct()
		}
	}
}

func (l *lexer) peek(n int) byte {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

func (l *lexer) skipString(quote byte) {
	l.pos++
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
			continue
		case quote:
			l.pos++
			return
		case '\n':
			return
		}
		l.pos++
	}
}

// template scans template characters up to the closing backtick or the next
// substitution. A substitution pushes the current depth so the matching "}"
// resumes the template.
func (l *lexer) template(start int) {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
			continue
		case '`':
			l.pos++
			l.emit(tokTemplate, start)
			return
		case '$':
			if l.peek(1) == '{' {
				l.pos += 2
				l.emit(tokTemplate, start)
				l.templates = append(l.templates, l.depth)
				l.depth++
				return
			}
		}
		l.pos++
	}
	l.emit(tokTemplate, start)
}

func (l *lexer) skipRegex() {
	l.pos++
	inClass := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\':
			l.pos += 2
			continue
		case c == '\n':
			return
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			l.pos++
			for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
				l.pos++
			}
			return
		}
		l.pos++
	}
}

func (l *lexer) regexAllowed() bool {
	if len(l.tokens) == 0 {
		return true
	}
	prev := l.tokens[len(l.tokens)-1]
	switch prev.kind {
	case tokIdent:
		return regexKeywords[prev.text]
	case tokPunct:
		switch prev.text {
		case ")":
			return l.closedHead
		case "]":
			return false
		}
		return true
	}
	return false
}

var puncts = []string{
	">>>=", "...", "===", "!==", "**=", "<<=", ">>=", ">>>", "&&=", "||=", "??=",
	"=>", "==", "!=", "<=", ">=", "&&", "||", "??", "?.", "++", "--", "+=", "-=",
	"*=", "/=", "%=", "&=", "|=", "^=", "<<", ">>", "**",
}

func (l *lexer) punct() {
	start := l.pos
	c := l.src[l.pos]
	switch c {
	case '(', '[', '{':
		if c == '(' {
			head := false
			if n := len(l.tokens); n > 0 && l.tokens[n-1].kind == tokIdent {
				head = headKeywords[l.tokens[n-1].text] && !tokenAt(l.tokens, n-2).is(tokPunct, ".")
			}
			l.heads = append(l.heads, head)
		}
		l.pos++
		l.emit(tokPunct, start)
		l.depth++
		return
	case ')', ']', '}':
		if c == '}' && len(l.templates) > 0 && l.templates[len(l.templates)-1] == l.depth-1 {
			l.templates = l.templates[:len(l.templates)-1]
			l.depth--
			l.pos++
			l.template(start)
			return
		}
		if l.depth > 0 {
			l.depth--
		}
		if c == ')' {
			l.closedHead = false
			if n := len(l.heads); n > 0 {
				l.closedHead = l.heads[n-1]
				l.heads = l.heads[:n-1]
			}
		}
		l.pos++
		l.emit(tokPunct, start)
		return
	}
	for _, p := range puncts {
		if strings.HasPrefix(l.src[l.pos:], p) {
			l.pos += len(p)
			l.emit(tokPunct, start)
			return
		}
	}
	l.pos++
	l.emit(tokPunct, start)
}

// stripComments returns src with every comment replaced by spaces, keeping
// newlines so offsets and line numbers stay valid.
func (l *lexer) stripComments() string {
	if len(l.comments) == 0 {
		return l.src
	}
	b := []byte(l.src)
	for _, c := range l.comments {
		for i := c[0]; i < c[1]; i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// unquote decodes a string literal token. Only the escapes that occur in
// module specifiers are handled.
func unquote(lit string) string {
	if len(lit) < 2 {
		return ""
	}
	body := lit[1 : len(lit)-1]
	if !strings.Contains(body, "\\") {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(body[i])
			}
			continue
		}
		b.WriteByte(body[i])
	}
	return b.String()
}
