package discovery

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"regexp"
	"strconv"
	"strings"
)

// GoASTProvider is the default ASTProvider: it parses plain Go source
// files and recognizes tile/sequence declarations through structured
// doc-comment directives, since Go has no native attribute syntax.
// A directive looks like:
//
//	// tile(kind=recur, max_memory=65536, description="doubles x")
//	func Double(x uint64) (bool, uint64) { ... }
//
//	// sequence(description="entry point")
//	func Main(name string) string { ... }
//
// This mirrors the go:generate / +kubebuilder: directive-in-doc-
// comment idiom already established in the Go ecosystem for
// expressing metadata the language itself has no syntax for.
type GoASTProvider struct{}

var directiveRe = regexp.MustCompile(`^(tile|sequence)(?:\(([^)]*)\))?\s*$`)

func (GoASTProvider) FunctionsInFile(path string) ([]FunctionInfo, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var out []FunctionInfo
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue // only plain top-level functions are tile/sequence candidates
		}
		attrs, err := parseDirectives(fn.Doc)
		if err != nil {
			return nil, fmt.Errorf("%s: function %s: %w", path, fn.Name.Name, err)
		}
		info := FunctionInfo{
			Name:    fn.Name.Name,
			Attrs:   attrs,
			Inputs:  flattenParams(fn.Type.Params),
			Outputs: countFields(fn.Type.Results),
		}
		if _, isSeq := attrs["sequence"]; isSeq {
			info.CallSites = extractCallSites(fn.Body)
		}
		out = append(out, info)
	}
	return out, nil
}

// parseDirectives reads a function's doc comment looking for
// `tile(...)` / `sequence(...)` lines. Unknown keys inside the
// parenthesized argument list are kept, not dropped, so the caller can
// decide whether to ignore or reject them: unknown keys are ignored,
// while invalid values for known keys fail loudly in the discovery
// layer, not here.
func parseDirectives(doc *ast.CommentGroup) (map[string]map[string]string, error) {
	attrs := make(map[string]map[string]string)
	if doc == nil {
		return attrs, nil
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		m := directiveRe.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name, argList := m[1], m[2]
		kv, err := parseKeyValues(argList)
		if err != nil {
			return nil, fmt.Errorf("%s(...) directive: %w", name, err)
		}
		attrs[name] = kv
	}
	return attrs, nil
}

// parseKeyValues parses a comma-separated `key=value` list where value
// is either a bare token or a double-quoted string.
func parseKeyValues(s string) (map[string]string, error) {
	out := make(map[string]string)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, part := range splitTopLevelCommas(s) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed attribute %q: expected key=value", part)
		}
		key := strings.TrimSpace(part[:eq])
		val := strings.TrimSpace(part[eq+1:])
		if strings.HasPrefix(val, `"`) {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("malformed string value for %q: %w", key, err)
			}
			val = unquoted
		}
		out[key] = val
	}
	return out, nil
}

// splitTopLevelCommas splits on commas outside of double-quoted
// strings, so a description value may itself contain a comma.
func splitTopLevelCommas(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == ',' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func flattenParams(fields *ast.FieldList) []Param {
	if fields == nil {
		return nil
	}
	var out []Param
	for _, f := range fields.List {
		typeStr := types.ExprString(f.Type)
		if len(f.Names) == 0 {
			out = append(out, Param{Name: "", Type: typeStr})
			continue
		}
		for _, n := range f.Names {
			out = append(out, Param{Name: n.Name, Type: typeStr})
		}
	}
	return out
}

func countFields(fields *ast.FieldList) int {
	if fields == nil {
		return 0
	}
	n := 0
	for _, f := range fields.List {
		if len(f.Names) == 0 {
			n++
			continue
		}
		n += len(f.Names)
	}
	return n
}

// extractCallSites walks a sequence body's top-level statement list
// and extracts plain-identifier call expressions, optionally captured
// by a single identifier. Anything else (method calls, path-qualified
// calls, macro-like invocations, destructuring binds) is skipped.
func extractCallSites(body *ast.BlockStmt) []CallSite {
	if body == nil {
		return nil
	}
	var out []CallSite
	for _, stmt := range body.List {
		switch s := stmt.(type) {
		case *ast.ExprStmt:
			if cs, ok := callSiteFromExpr(s.X, nil); ok {
				out = append(out, cs)
			}
		case *ast.AssignStmt:
			if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
				continue // destructuring bind: not captured
			}
			ident, ok := s.Lhs[0].(*ast.Ident)
			if !ok {
				continue
			}
			name := ident.Name
			if cs, ok := callSiteFromExpr(s.Rhs[0], &name); ok {
				out = append(out, cs)
			}
		case *ast.ReturnStmt:
			for _, r := range s.Results {
				if cs, ok := callSiteFromExpr(r, nil); ok {
					out = append(out, cs)
				}
			}
		}
	}
	return out
}

func callSiteFromExpr(e ast.Expr, resultBinding *string) (CallSite, bool) {
	call, ok := e.(*ast.CallExpr)
	if !ok {
		return CallSite{}, false
	}
	fnIdent, ok := call.Fun.(*ast.Ident)
	if !ok {
		return CallSite{}, false // method call or path-qualified call
	}
	args := make([]string, len(call.Args))
	for i, a := range call.Args {
		args[i] = types.ExprString(a)
	}
	return CallSite{
		Callee:        fnIdent.Name,
		Arguments:     args,
		ResultBinding: resultBinding,
	}, true
}
