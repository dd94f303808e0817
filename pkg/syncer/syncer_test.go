package syncer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asrlabs/asr/pkg/fetch"
	"github.com/asrlabs/asr/pkg/manifest"
	"github.com/asrlabs/asr/pkg/registry"
	"github.com/asrlabs/asr/pkg/skills"
)

type testEnv struct {
	reg     *registry.Registry
	tracker *manifest.Tracker
	syncer  *Syncer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	reg, err := registry.Open(home)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	tracker := manifest.NewTracker(home)
	fetcher := fetch.New()
	t.Cleanup(fetcher.Cleanup)

	return &testEnv{
		reg:     reg,
		tracker: tracker,
		syncer:  New(reg, tracker, fetcher),
	}
}

func (e *testEnv) register(t *testing.T, name, dir string) skills.Source {
	t.Helper()
	source, err := skills.LocalSource(dir)
	require.NoError(t, err)
	_, err = e.reg.Put(name, source)
	require.NoError(t, err)
	return source
}

func writeSkill(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "---\nname: " + name + "\ndescription: a test skill\n---\n\n# " + name + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
	return dir
}

func TestRunSnapshotsUntracked(t *testing.T) {
	env := newTestEnv(t)
	dir := writeSkill(t, t.TempDir(), "code-review")
	env.register(t, "code-review", dir)

	report, err := env.syncer.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)

	item := report.Items[0]
	assert.Equal(t, "code-review", item.Name)
	assert.Equal(t, manifest.StatusUntracked, item.Status)
	assert.Equal(t, ActionSnapshotted, item.Action)

	m, err := env.tracker.Load("code-review")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.NotEmpty(t, m.ContentDigest)
}

func TestRunSnapshotsModified(t *testing.T) {
	env := newTestEnv(t)
	dir := writeSkill(t, t.TempDir(), "code-review")
	source := env.register(t, "code-review", dir)

	_, err := env.tracker.Snapshot("code-review", source, dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("drifted"), 0o644))

	report, err := env.syncer.Run(context.Background(), Options{})
	require.NoError(t, err)
	item := report.Items[0]
	assert.Equal(t, manifest.StatusModified, item.Status)
	assert.Equal(t, ActionSnapshotted, item.Action)
	assert.Equal(t, []string{"SKILL.md"}, item.Changed)

	c, err := env.tracker.Classify("code-review", dir)
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusValid, c.Status)
}

func TestRunMissingSource(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	dir := writeSkill(t, root, "code-review")
	source := env.register(t, "code-review", dir)

	_, err := env.tracker.Snapshot("code-review", source, dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	report, err := env.syncer.Run(context.Background(), Options{})
	require.NoError(t, err)
	item := report.Items[0]
	assert.Equal(t, manifest.StatusMissing, item.Status)
	assert.Equal(t, ActionNone, item.Action)
	assert.Equal(t, 1, env.reg.Len())

	report, err = env.syncer.Run(context.Background(), Options{Prune: true})
	require.NoError(t, err)
	item = report.Items[0]
	assert.Equal(t, ActionPruned, item.Action)
	assert.Equal(t, 0, env.reg.Len())

	m, err := env.tracker.Load("code-review")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRunRefreshesStaleClones(t *testing.T) {
	env := newTestEnv(t)
	dir := writeSkill(t, t.TempDir(), "code-review")
	source := env.register(t, "code-review", dir)

	_, err := env.tracker.Snapshot("code-review", source, dir)
	require.NoError(t, err)

	project := t.TempDir()
	clonePath := filepath.Join(project, "code-review")
	require.NoError(t, os.MkdirAll(clonePath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(clonePath, "SKILL.md"), []byte("stale"), 0o644))
	require.NoError(t, env.tracker.RecordClone("code-review", clonePath, "sha256:stale"))

	report, err := env.syncer.Run(context.Background(), Options{})
	require.NoError(t, err)
	item := report.Items[0]
	assert.Equal(t, manifest.StatusValid, item.Status)
	assert.Equal(t, ActionCloneRefreshed, item.Action)
	assert.Equal(t, 1, item.Clones)

	content, err := os.ReadFile(filepath.Join(clonePath, "SKILL.md"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "code-review")

	// A second run finds the clone digest current and leaves it alone.
	report, err = env.syncer.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, ActionNone, report.Items[0].Action)
	assert.Equal(t, 0, report.Items[0].Clones)
}

func TestRunDropsOrphanedCloneRecords(t *testing.T) {
	env := newTestEnv(t)
	dir := writeSkill(t, t.TempDir(), "code-review")
	source := env.register(t, "code-review", dir)

	_, err := env.tracker.Snapshot("code-review", source, dir)
	require.NoError(t, err)

	project := t.TempDir()
	clonePath := filepath.Join(project, "code-review")
	require.NoError(t, env.tracker.RecordClone("code-review", clonePath, "sha256:stale"))
	require.NoError(t, os.RemoveAll(project))

	_, err = env.syncer.Run(context.Background(), Options{})
	require.NoError(t, err)

	clones, err := env.tracker.Clones("code-review")
	require.NoError(t, err)
	assert.Empty(t, clones)
}

func TestRunRegistryOnlySkipsClones(t *testing.T) {
	env := newTestEnv(t)
	dir := writeSkill(t, t.TempDir(), "code-review")
	env.register(t, "code-review", dir)

	project := t.TempDir()
	clonePath := filepath.Join(project, "code-review")
	require.NoError(t, env.tracker.RecordClone("code-review", clonePath, "sha256:stale"))

	report, err := env.syncer.Run(context.Background(), Options{RegistryOnly: true})
	require.NoError(t, err)
	assert.Equal(t, ActionSnapshotted, report.Items[0].Action)
	assert.Equal(t, 0, report.Items[0].Clones)

	_, err = os.Stat(clonePath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunSelectsNamedSkills(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	env.register(t, "alpha", writeSkill(t, root, "alpha"))
	env.register(t, "zulu", writeSkill(t, root, "zulu"))

	report, err := env.syncer.Run(context.Background(), Options{Names: []string{"zulu"}})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, "zulu", report.Items[0].Name)
}

func TestRunContinuesPastUnknownNames(t *testing.T) {
	env := newTestEnv(t)
	dir := writeSkill(t, t.TempDir(), "code-review")
	env.register(t, "code-review", dir)

	report, err := env.syncer.Run(context.Background(), Options{
		Names: []string{"no-such-skill", "code-review"},
	})
	require.Error(t, err)
	require.NotNil(t, report)
	require.Len(t, report.Items, 2)

	byName := make(map[string]ItemReport)
	for _, item := range report.Items {
		byName[item.Name] = item
	}

	// The registered sibling is still synced.
	assert.Equal(t, ActionSnapshotted, byName["code-review"].Action)
	assert.Empty(t, byName["code-review"].Err)

	assert.Equal(t, "not registered", byName["no-such-skill"].Err)
	assert.Contains(t, err.Error(), "no-such-skill")
}

func TestRunResolvesRemoteSourcesInBatch(t *testing.T) {
	skillFiles := map[string]string{
		"skills/good-one/SKILL.md": "---\nname: good-one\ndescription: first\n---\n",
		"skills/good-two/SKILL.md": "---\nname: good-two\ndescription: second\n---\n",
	}

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/raw/") {
			content, ok := skillFiles[strings.TrimPrefix(r.URL.Path, "/raw/")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, content)
			return
		}

		dir := strings.TrimPrefix(r.URL.Path, "/repos/acme/skills/contents/")
		path := dir + "/SKILL.md"
		if _, ok := skillFiles[path]; !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `[{"name":"SKILL.md","path":"%s","type":"file","download_url":"%s/raw/%s"}]`,
			path, server.URL, path)
	}))
	defer server.Close()

	home := t.TempDir()
	reg, err := registry.Open(home)
	require.NoError(t, err)
	defer reg.Close()
	tracker := manifest.NewTracker(home)
	fetcher := fetch.New(
		fetch.WithAPIBase(skills.ProviderGitHub, server.URL),
		fetch.WithRetries(1),
	)
	defer fetcher.Cleanup()

	for _, name := range []string{"good-one", "good-two", "gone-skill"} {
		source := skills.Source{
			Kind: skills.SourceRemote,
			Remote: &skills.RemoteSource{
				Provider: skills.ProviderGitHub,
				Owner:    "acme", Repo: "skills", Ref: "main",
				Subpath: "skills/" + name,
			},
		}
		_, err := reg.Put(name, source)
		require.NoError(t, err)
	}

	report, err := New(reg, tracker, fetcher).Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, report.Items, 3)

	byName := make(map[string]ItemReport)
	for _, item := range report.Items {
		byName[item.Name] = item
	}

	assert.Equal(t, ActionSnapshotted, byName["good-one"].Action)
	assert.Equal(t, ActionSnapshotted, byName["good-two"].Action)
	assert.Equal(t, manifest.StatusMissing, byName["gone-skill"].Status)
	assert.Equal(t, ActionNone, byName["gone-skill"].Action)
}

func TestReportCounts(t *testing.T) {
	report := &Report{Items: []ItemReport{
		{Name: "a", Action: ActionSnapshotted},
		{Name: "b", Action: ActionSnapshotted},
		{Name: "c", Action: ActionNone},
	}}
	counts := report.Counts()
	assert.Equal(t, 2, counts[ActionSnapshotted])
	assert.Equal(t, 1, counts[ActionNone])
}
