package permission

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// parseFirstToken extracts the leading command name from a shell
// command string using a real bash-dialect parser rather than naive
// whitespace splitting (grounded on the teacher's
// internal/permission/bash_parser.go). This correctly resolves the
// leading command when the string starts with an env assignment
// (`FOO=bar git status`) or is wrapped in quotes, which the `Shell(<cmd>:*)`
// fingerprint grammar (spec §3) assumes is just "the first token".
//
// Falls back to whitespace splitting if the command does not parse as
// valid shell syntax (e.g. it's a template fragment from the LLM).
func parseFirstToken(command string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return firstTokenFallback(command)
	}

	var name string
	syntax.Walk(file, func(node syntax.Node) bool {
		if name != "" {
			return false
		}
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		name = wordLiteral(call.Args[0])
		return false
	})

	if name == "" {
		return firstTokenFallback(command)
	}
	return name
}

func wordLiteral(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String()
}

func firstTokenFallback(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
