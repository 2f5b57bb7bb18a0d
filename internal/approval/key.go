package approval

import (
	"fmt"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// KeyKind discriminates the canonical key union.
type KeyKind string

const (
	KindExec  KeyKind = "exec"
	KindPatch KeyKind = "patch"
	KindOther KeyKind = "other"
)

// Key identifies one operation for approval caching. Only
// operation-identifying fields participate: the command token sequence plus
// working directory for exec, the path set for patch. Titles and free-text
// descriptions are excluded so that requests differing only in prose still
// hit the same cache entry.
type Key struct {
	Kind    KeyKind
	Command []string
	Workdir string
	Paths   []string

	// UI-facing fields, populated only for KindOther keys. Canonical exec
	// and patch keys never carry them.
	OpKind string
	Title  string
}

// sep separates fields inside a serialized key. It cannot appear in shell
// tokens or file paths produced by the agent.
const sep = "\x1f"

// ExecKey builds the canonical key for a command execution.
func ExecKey(command []string, workdir string) Key {
	return Key{Kind: KindExec, Command: command, Workdir: workdir}
}

// PatchKey builds the canonical key for a file-change set. Paths are sorted
// so that key equality is independent of input order.
func PatchKey(paths []string) Key {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	return Key{Kind: KindPatch, Paths: sorted}
}

// PatchKeys builds one canonical key per path. Multi-file decisions are
// cached per file so a later subset request can still auto-resolve.
func PatchKeys(paths []string) []Key {
	keys := make([]Key, 0, len(paths))
	for _, p := range paths {
		keys = append(keys, PatchKey([]string{p}))
	}
	return keys
}

// OtherKey derives the broader, presentation-facing key used for
// backward-compatible auto-approval of kinds that are neither exec nor
// patch. Unlike canonical keys it includes the kind and title.
func OtherKey(opKind, title string) Key {
	return Key{Kind: KindOther, OpKind: opKind, Title: title}
}

// Canonical serializes the key into the cache's map key.
func (k Key) Canonical() string {
	switch k.Kind {
	case KindExec:
		return fmt.Sprintf("exec%s%s%s%s", sep, k.Workdir, sep, strings.Join(k.Command, sep))
	case KindPatch:
		return fmt.Sprintf("patch%s%s", sep, strings.Join(k.Paths, sep))
	case KindOther:
		return fmt.Sprintf("other%s%s%s%s", sep, k.OpKind, sep, k.Title)
	default:
		return string(k.Kind)
	}
}

// CommandTokens splits a raw shell command string into the token sequence
// used for exec keys. Parsing follows bash word rules so quoting differences
// do not fragment the cache. An unparseable command falls back to
// whitespace fields.
func CommandTokens(raw string) []string {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(raw), "")
	if err != nil {
		return strings.Fields(raw)
	}

	var tokens []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		for _, arg := range call.Args {
			tokens = append(tokens, wordText(arg))
		}
		return true
	})

	if len(tokens) == 0 {
		return strings.Fields(raw)
	}
	return tokens
}

// wordText returns the effective text of a shell word with quoting removed,
// so that differently quoted spellings of the same argument produce the same
// token. Expansions keep their source form.
func wordText(w *syntax.Word) string {
	var sb strings.Builder
	printer := syntax.NewPrinter()
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				} else {
					_ = printer.Print(&sb, inner)
				}
			}
		default:
			_ = printer.Print(&sb, part)
		}
	}
	return sb.String()
}
