package profiles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *testutil.TestDB) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	return NewService(tdb.Conn, testutil.NopLogger()), tdb
}

func TestFirstProfileBecomesDefault(t *testing.T) {
	s, tdb := newTestService(t)
	defer tdb.Close()
	ctx := context.Background()

	p, err := s.Create(ctx, Profile{Name: "Anime", SourceLanguage: "ja", TargetLanguages: []string{"en"}})
	require.NoError(t, err)
	assert.True(t, p.IsDefault)

	second, err := s.Create(ctx, Profile{Name: "Dubs", SourceLanguage: "ja", TargetLanguages: []string{"de"}})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	def, err := s.Default(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, p.ID, def.ID)
}

func TestCreateValidation(t *testing.T) {
	s, tdb := newTestService(t)
	defer tdb.Close()
	ctx := context.Background()

	_, err := s.Create(ctx, Profile{Name: "", SourceLanguage: "ja", TargetLanguages: []string{"en"}})
	assert.Error(t, err)

	_, err = s.Create(ctx, Profile{Name: "x", SourceLanguage: "zz-bogus", TargetLanguages: []string{"en"}})
	assert.Error(t, err)

	_, err = s.Create(ctx, Profile{Name: "x", SourceLanguage: "ja", TargetLanguages: nil})
	assert.Error(t, err)

	_, err = s.Create(ctx, Profile{
		Name: "x", SourceLanguage: "ja", TargetLanguages: []string{"en"},
		ForcedPreference: "sometimes",
	})
	assert.Error(t, err)
}

func TestForcedPreferenceDefaultsToDisabled(t *testing.T) {
	s, tdb := newTestService(t)
	defer tdb.Close()

	p, err := s.Create(context.Background(), Profile{
		Name: "Anime", SourceLanguage: "ja", TargetLanguages: []string{"en"},
	})
	require.NoError(t, err)
	assert.Equal(t, ForcedDisabled, p.ForcedPreference)
}

func TestUpdateSwitchesDefault(t *testing.T) {
	s, tdb := newTestService(t)
	defer tdb.Close()
	ctx := context.Background()

	first, err := s.Create(ctx, Profile{Name: "A", SourceLanguage: "ja", TargetLanguages: []string{"en"}})
	require.NoError(t, err)
	second, err := s.Create(ctx, Profile{Name: "B", SourceLanguage: "ja", TargetLanguages: []string{"en"}})
	require.NoError(t, err)

	second.IsDefault = true
	require.NoError(t, s.Update(ctx, *second))

	def, err := s.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)

	old, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsDefault)
}

func TestDeleteDefaultBlockedWhileOthersExist(t *testing.T) {
	s, tdb := newTestService(t)
	defer tdb.Close()
	ctx := context.Background()

	def, err := s.Create(ctx, Profile{Name: "A", SourceLanguage: "ja", TargetLanguages: []string{"en"}})
	require.NoError(t, err)
	other, err := s.Create(ctx, Profile{Name: "B", SourceLanguage: "ja", TargetLanguages: []string{"en"}})
	require.NoError(t, err)

	assert.Error(t, s.Delete(ctx, def.ID))
	require.NoError(t, s.Delete(ctx, other.ID))
	require.NoError(t, s.Delete(ctx, def.ID), "sole remaining profile can go")
}

func TestAssignAndResolve(t *testing.T) {
	s, tdb := newTestService(t)
	defer tdb.Close()
	ctx := context.Background()

	def, err := s.Create(ctx, Profile{Name: "Default", SourceLanguage: "ja", TargetLanguages: []string{"en"}})
	require.NoError(t, err)
	special, err := s.Create(ctx, Profile{Name: "German", SourceLanguage: "ja", TargetLanguages: []string{"de"}})
	require.NoError(t, err)

	// Unassigned media resolves to the default.
	p, err := s.ForMedia(ctx, "series", 42)
	require.NoError(t, err)
	assert.Equal(t, def.ID, p.ID)

	require.NoError(t, s.Assign(ctx, "series", 42, special.ID))
	p, err = s.ForMedia(ctx, "series", 42)
	require.NoError(t, err)
	assert.Equal(t, special.ID, p.ID)

	// Re-assign overwrites.
	require.NoError(t, s.Assign(ctx, "series", 42, def.ID))
	p, err = s.ForMedia(ctx, "series", 42)
	require.NoError(t, err)
	assert.Equal(t, def.ID, p.ID)

	require.NoError(t, s.Unassign(ctx, "series", 42))
	p, err = s.ForMedia(ctx, "series", 42)
	require.NoError(t, err)
	assert.Equal(t, def.ID, p.ID)
}

func TestAssignRejectsBadInput(t *testing.T) {
	s, tdb := newTestService(t)
	defer tdb.Close()
	ctx := context.Background()

	p, err := s.Create(ctx, Profile{Name: "A", SourceLanguage: "ja", TargetLanguages: []string{"en"}})
	require.NoError(t, err)

	assert.Error(t, s.Assign(ctx, "album", 1, p.ID))
	assert.Error(t, s.Assign(ctx, "series", 1, 9999))
}

func TestBackendChainRoundTrip(t *testing.T) {
	s, tdb := newTestService(t)
	defer tdb.Close()
	ctx := context.Background()

	p, err := s.Create(ctx, Profile{
		Name: "Chained", SourceLanguage: "ja", TargetLanguages: []string{"en", "de"},
		BackendChain: []string{"openai", "deepl"},
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "deepl"}, got.BackendChain)
	assert.Equal(t, []string{"en", "de"}, got.TargetLanguages)
}
