package skills

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceLocal(t *testing.T) {
	source, err := ParseSource("./some/skill")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, source.Kind)
	assert.True(t, filepath.IsAbs(source.Path))
	assert.Nil(t, source.Remote)
	assert.False(t, source.IsRemote())
}

func TestParseSourceRemote(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		provider string
		owner    string
		repo     string
		ref      string
		subpath  string
	}{
		{
			name:     "github tree url",
			url:      "https://github.com/acme/skills/tree/main/skills/code-review",
			provider: ProviderGitHub,
			owner:    "acme",
			repo:     "skills",
			ref:      "main",
			subpath:  "skills/code-review",
		},
		{
			name:     "gitlab tree url",
			url:      "https://gitlab.com/acme/skills/tree/v1.2.0/review",
			provider: ProviderGitLab,
			owner:    "acme",
			repo:     "skills",
			ref:      "v1.2.0",
			subpath:  "review",
		},
		{
			name:     "www prefix",
			url:      "https://www.github.com/acme/skills/tree/main/review",
			provider: ProviderGitHub,
			owner:    "acme",
			repo:     "skills",
			ref:      "main",
			subpath:  "review",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, err := ParseSource(tt.url)
			require.NoError(t, err)
			assert.Equal(t, SourceRemote, source.Kind)
			require.NotNil(t, source.Remote)
			assert.Equal(t, tt.provider, source.Remote.Provider)
			assert.Equal(t, tt.owner, source.Remote.Owner)
			assert.Equal(t, tt.repo, source.Remote.Repo)
			assert.Equal(t, tt.ref, source.Remote.Ref)
			assert.Equal(t, tt.subpath, source.Remote.Subpath)
			assert.NoError(t, source.Validate())
		})
	}
}

func TestParseRemoteURLErrors(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"unsupported host", "https://bitbucket.org/acme/skills/tree/main/review"},
		{"missing tree segment", "https://github.com/acme/skills/blob/main/review"},
		{"missing subpath", "https://github.com/acme/skills/tree/main"},
		{"escaping subpath", "https://github.com/acme/skills/tree/main/../secrets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRemoteURL(tt.url)
			assert.Error(t, err)
		})
	}
}

func TestSourceValidate(t *testing.T) {
	local, err := LocalSource("/tmp/skill")
	require.NoError(t, err)
	assert.NoError(t, local.Validate())

	bothVariants := local
	bothVariants.Remote = &RemoteSource{Provider: ProviderGitHub, Owner: "a", Repo: "b", Ref: "main", Subpath: "s"}
	assert.Error(t, bothVariants.Validate())

	assert.Error(t, Source{Kind: SourceRemote}.Validate())
	assert.Error(t, Source{Kind: "weird"}.Validate())

	incomplete := Source{Kind: SourceRemote, Remote: &RemoteSource{Provider: ProviderGitHub, Owner: "a"}}
	assert.Error(t, incomplete.Validate())
}

func TestSourceString(t *testing.T) {
	local, err := LocalSource("/tmp/skill")
	require.NoError(t, err)
	assert.Equal(t, local.Path, local.String())

	raw := "https://github.com/acme/skills/tree/main/skills/code-review"
	source, err := ParseSource(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, source.String())
}

func TestIsKebabCase(t *testing.T) {
	valid := []string{"skill", "code-review", "a1-b2-c3", "x"}
	for _, name := range valid {
		assert.True(t, IsKebabCase(name), name)
	}

	invalid := []string{"", "Code-Review", "code_review", "-review", "review-", "code--review", "has space"}
	for _, name := range invalid {
		assert.False(t, IsKebabCase(name), name)
	}
}
