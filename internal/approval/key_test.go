package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecKey_Equality(t *testing.T) {
	a := ExecKey([]string{"git", "commit", "-m", "fix"}, "/repo")
	b := ExecKey([]string{"git", "commit", "-m", "fix"}, "/repo")
	assert.Equal(t, a.Canonical(), b.Canonical())

	differentCwd := ExecKey([]string{"git", "commit", "-m", "fix"}, "/other")
	assert.NotEqual(t, a.Canonical(), differentCwd.Canonical())

	differentTokens := ExecKey([]string{"git", "commit"}, "/repo")
	assert.NotEqual(t, a.Canonical(), differentTokens.Canonical())
}

func TestExecKey_TokenOrderMatters(t *testing.T) {
	a := ExecKey([]string{"cp", "src", "dst"}, "")
	b := ExecKey([]string{"cp", "dst", "src"}, "")
	assert.NotEqual(t, a.Canonical(), b.Canonical())
}

func TestPatchKey_OrderIndependent(t *testing.T) {
	a := PatchKey([]string{"a.txt", "b.txt"})
	b := PatchKey([]string{"b.txt", "a.txt"})
	assert.Equal(t, a.Canonical(), b.Canonical())
}

func TestPatchKey_DoesNotMutateInput(t *testing.T) {
	paths := []string{"z.txt", "a.txt"}
	PatchKey(paths)
	assert.Equal(t, []string{"z.txt", "a.txt"}, paths)
}

func TestPatchKey_DistinctFromExec(t *testing.T) {
	patch := PatchKey([]string{"run.sh"})
	exec := ExecKey([]string{"run.sh"}, "")
	assert.NotEqual(t, patch.Canonical(), exec.Canonical())
}

func TestCanonical_ExcludesTitle(t *testing.T) {
	// Keys are built from operation-identifying fields only; there is no slot
	// for a title, so two requests differing only in prose collapse to one
	// entry.
	store := NewStore()
	store.Put(ExecKey([]string{"make", "test"}, "/repo"), ApprovedForSession)

	got, ok := store.Get(ExecKey([]string{"make", "test"}, "/repo"))
	assert.True(t, ok)
	assert.Equal(t, ApprovedForSession, got)
}

func TestOtherKey_IncludesKindAndTitle(t *testing.T) {
	a := OtherKey("webfetch", "Fetch docs")
	b := OtherKey("webfetch", "Fetch changelog")
	assert.NotEqual(t, a.Canonical(), b.Canonical())
	assert.Equal(t, a.Canonical(), OtherKey("webfetch", "Fetch docs").Canonical())
}

func TestCommandTokens(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{
			name:     "simple command",
			raw:      "git status",
			expected: []string{"git", "status"},
		},
		{
			name:     "flags and args",
			raw:      "rm -rf tmp",
			expected: []string{"rm", "-rf", "tmp"},
		},
		{
			name:     "quoted argument stays one token",
			raw:      `git commit -m 'fix the bug'`,
			expected: []string{"git", "commit", "-m", "fix the bug"},
		},
		{
			name:     "double quotes removed",
			raw:      `grep -r "needle" src`,
			expected: []string{"grep", "-r", "needle", "src"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CommandTokens(tt.raw))
		})
	}
}

func TestCommandTokens_UnparseableFallsBack(t *testing.T) {
	tokens := CommandTokens("echo 'unterminated")
	assert.NotEmpty(t, tokens)
	assert.Equal(t, "echo", tokens[0])
}

func TestFromOption(t *testing.T) {
	tests := []struct {
		option   string
		expected Decision
	}{
		{option: OptionAllowOnce, expected: Approved},
		{option: OptionAllowAlways, expected: ApprovedForSession},
		{option: OptionRejectOnce, expected: Denied},
		{option: OptionRejectAlways, expected: Abort},
		{option: "bogus", expected: Denied},
		{option: "", expected: Denied},
	}

	for _, tt := range tests {
		t.Run("option "+tt.option, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromOption(tt.option))
		})
	}
}

func TestDecision_Cacheable(t *testing.T) {
	assert.True(t, ApprovedForSession.Cacheable())
	assert.True(t, Abort.Cacheable())
	assert.False(t, Approved.Cacheable())
	assert.False(t, Denied.Cacheable())
}
