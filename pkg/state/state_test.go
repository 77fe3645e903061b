package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bcperrors "github.com/odvcencio/bcp/pkg/errors"
	"github.com/odvcencio/bcp/pkg/knob"
	"github.com/odvcencio/bcp/pkg/plan"
)

func testCatalog() knob.Catalog {
	return knob.Catalog{
		{Path: "profile.release.opt-level", EnvVar: "CARGO_PROFILE_RELEASE_OPT_LEVEL", Values: []string{"0", "1", "2", "3"}, Default: "3"},
		{Path: "profile.release.debug", EnvVar: "CARGO_PROFILE_RELEASE_DEBUG", Values: []string{}, Default: "false"},
	}
}

func TestNew(t *testing.T) {
	st := New(plan.Build(testCatalog()), Meta{Manifest: "Cargo.toml"})
	assert.NotEmpty(t, st.ID)
	assert.NotNil(t, st.Results)
	assert.Equal(t, 0, st.Next())
	assert.False(t, st.Complete())
	assert.NoError(t, st.Check())
}

func TestResultTotal(t *testing.T) {
	r := Result{Build: 2 * time.Second, Run: 3 * time.Second}
	assert.Equal(t, 5*time.Second, r.Total())
}

func TestAppend_Prefix(t *testing.T) {
	st := New(plan.Build(testCatalog()), Meta{})
	cases := len(st.Plan.Cases)

	for i := 0; i < cases; i++ {
		require.Equal(t, i, st.Next())
		require.NoError(t, st.Append(Result{Build: time.Duration(i) * time.Second}))
	}
	assert.True(t, st.Complete())

	err := st.Append(Result{})
	require.Error(t, err)
	assert.True(t, bcperrors.IsCode(err, bcperrors.ErrCodeInvariant))
	assert.Len(t, st.Results, cases)
}

func TestCheck(t *testing.T) {
	st := New(plan.Build(testCatalog()), Meta{})
	st.Results = make([]Result, len(st.Plan.Cases)+1)
	assert.True(t, bcperrors.IsCode(st.Check(), bcperrors.ErrCodeInvariant))

	st.Results = []Result{{Build: -1}}
	assert.True(t, bcperrors.IsCode(st.Check(), bcperrors.ErrCodeInvariant))
}

func TestAppend_RejectsBrokenState(t *testing.T) {
	st := New(plan.Build(testCatalog()), Meta{})
	st.Results = make([]Result, len(st.Plan.Cases)+2)
	err := st.Append(Result{})
	assert.True(t, bcperrors.IsCode(err, bcperrors.ErrCodeInvariant))
	assert.Len(t, st.Results, len(st.Plan.Cases)+2)
}

func TestStore_LoadMissingStartsFresh(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), FileName))

	st, found, err := store.Load(testCatalog(), Meta{Revision: "abc"})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, plan.Build(testCatalog()), st.Plan)
	assert.Equal(t, "abc", st.Meta.Revision)
	assert.Empty(t, st.Results)

	_, err = os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "loading must not create the file")
}

func TestStore_RoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), FileName))
	original := New(plan.Build(knob.DefaultCatalog()), Meta{Manifest: "Cargo.toml", Revision: "deadbeef"})
	require.NoError(t, original.Append(Result{Build: 1500 * time.Millisecond, Run: 42 * time.Nanosecond}))
	require.NoError(t, original.Append(Result{Build: time.Minute, Run: time.Hour}))

	require.NoError(t, store.Save(original))

	loaded, found, err := store.Load(knob.Catalog{}, Meta{})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, original, loaded)
}

func TestStore_RoundTripFresh(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), FileName))
	original := New(plan.Build(testCatalog()), Meta{})
	require.NoError(t, store.Save(original))

	loaded, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestStore_DurationsAreNanoseconds(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), FileName))
	st := New(plan.Build(testCatalog()), Meta{})
	require.NoError(t, st.Append(Result{Build: 2 * time.Second, Run: 7}))
	require.NoError(t, store.Save(st))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"build_ns": 2000000000`)
	assert.Contains(t, string(data), `"run_ns": 7`)
}

func TestStore_SaveOverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, FileName))
	st := New(plan.Build(testCatalog()), Meta{})

	require.NoError(t, store.Save(st))
	require.NoError(t, st.Append(Result{Build: time.Second}))
	require.NoError(t, store.Save(st))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())

	loaded, err := store.Read()
	require.NoError(t, err)
	assert.Len(t, loaded.Results, 1)
}

func TestStore_SaveFailure(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing-dir", FileName))
	err := store.Save(New(plan.Build(testCatalog()), Meta{}))
	require.Error(t, err)
	assert.True(t, bcperrors.IsCode(err, bcperrors.ErrCodeStateWrite))
}

func TestStore_SaveRejectsBrokenState(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, FileName))
	st := New(plan.Build(testCatalog()), Meta{})
	st.Results = make([]Result, len(st.Plan.Cases)+1)

	err := store.Save(st)
	assert.True(t, bcperrors.IsCode(err, bcperrors.ErrCodeInvariant))
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"plan": {"cases": [`), 0o644))

	_, _, err := NewStore(path).Load(testCatalog(), Meta{})
	require.Error(t, err)
	assert.True(t, bcperrors.IsCode(err, bcperrors.ErrCodeStateCorrupt))

	structured, ok := bcperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "the sweep state file is damaged and cannot be resumed", structured.UserMessage)
	require.Len(t, structured.Remediation, 1)
	assert.Contains(t, structured.Remediation[0], path)
}

func TestStore_LoadUnreadable(t *testing.T) {
	// A directory in place of the file is a read failure, not "missing".
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.Mkdir(path, 0o755))

	_, _, err := NewStore(path).Load(testCatalog(), Meta{})
	require.Error(t, err)
	assert.True(t, bcperrors.IsCode(err, bcperrors.ErrCodeStateRead))
}

func TestStore_LoadTooManyResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	doc := `{"id":"x","plan":{"baseline":[],"cases":[{"overrides":[]}]},"results":[{"build_ns":1,"run_ns":1},{"build_ns":1,"run_ns":1}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, _, err := NewStore(path).Load(testCatalog(), Meta{})
	require.Error(t, err)
	assert.True(t, bcperrors.IsCode(err, bcperrors.ErrCodeInvariant))
	assert.True(t, strings.Contains(err.Error(), path))
}
