package gitdir

import "regexp"

// indirectionPattern matches the "gitdir: <path>" line git writes into a
// .git file, for example "gitdir: ../.git/modules/lib" for a submodule or
// "gitdir: /src/app/.git/worktrees/feature" for a linked worktree.
var indirectionPattern = regexp.MustCompile(`(?im)^gitdir:[ \t]*(\S.*?)[ \t\r]*$`)

// ParseIndirection extracts the target path from the content of a .git file.
// The first line with a non-empty target wins. It reports false when no line
// carries one, which callers treat the same as a missing metadata directory.
func ParseIndirection(content []byte) (string, bool) {
	m := indirectionPattern.FindSubmatch(content)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}
