package harvest

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldNamesAreSortedAndUnique(t *testing.T) {
	t.Parallel()

	require.True(t, sort.StringsAreSorted(FieldNames))
	seen := map[string]struct{}{}
	for _, name := range FieldNames {
		_, dup := seen[name]
		require.False(t, dup, "duplicate schema name %q", name)
		seen[name] = struct{}{}
	}
}

func TestNormalize_PadsMissingFields(t *testing.T) {
	t.Parallel()

	rec, err := Normalize([]Field{
		{Name: "notes", Value: "a note"},
		{Name: "latitude", Value: 38.9},
	})
	require.NoError(t, err)
	require.Len(t, rec, len(FieldNames))

	for i, f := range rec {
		require.Equal(t, FieldNames[i], f.Name)
		switch f.Name {
		case "notes":
			require.Equal(t, "a note", f.Value)
		case "latitude":
			require.Equal(t, 38.9, f.Value)
		default:
			require.Nil(t, f.Value)
		}
	}
}

func TestNormalize_EmptyInputYieldsAllNil(t *testing.T) {
	t.Parallel()

	rec, err := Normalize(nil)
	require.NoError(t, err)
	require.Len(t, rec, len(FieldNames))
	for _, f := range rec {
		require.Nil(t, f.Value)
	}
}

func TestNormalize_RejectsUnknownField(t *testing.T) {
	t.Parallel()

	_, err := Normalize([]Field{{Name: "participant_shoe_size", Value: "12"}})
	require.Error(t, err)
	var ierr *IntegrityError
	require.ErrorAs(t, err, &ierr)
}

func TestNormalize_RejectsDuplicateField(t *testing.T) {
	t.Parallel()

	_, err := Normalize([]Field{
		{Name: "notes", Value: "one"},
		{Name: "notes", Value: "two"},
	})
	var ierr *IntegrityError
	require.ErrorAs(t, err, &ierr)
}

func TestStringifyList(t *testing.T) {
	t.Parallel()

	got, err := StringifyList([]string{"Shot - Wounded/Injured", "Drive-by"})
	require.NoError(t, err)
	require.Equal(t, "Shot - Wounded/Injured||Drive-by", got)

	got, err = StringifyList(nil)
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestStringifyList_SeparatorCollision(t *testing.T) {
	t.Parallel()

	_, err := StringifyList([]string{"bad||item"})
	var ierr *IntegrityError
	require.ErrorAs(t, err, &ierr)
}

func TestStringifyGroups(t *testing.T) {
	t.Parallel()

	got, err := StringifyGroups([]GroupValue{
		{Group: 0, Value: "Handgun"},
		{Group: 1, Value: "Handgun"},
	})
	require.NoError(t, err)
	require.Equal(t, "0::Handgun||1::Handgun", got)
}

func TestStringifyGroups_SeparatorCollision(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"a::b", "a||b"} {
		_, err := StringifyGroups([]GroupValue{{Group: 0, Value: value}})
		var ierr *IntegrityError
		require.ErrorAs(t, err, &ierr, "value %q", value)
	}
}
