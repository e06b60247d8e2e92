package domain_test

import (
	"testing"

	"wisefido-ward/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestIsEmptyPlaceholder(t *testing.T) {
	p := &domain.Patient{Name: "  ", DiagnosisSuspicion: "\t"}
	require.True(t, p.IsEmptyPlaceholder())

	p = &domain.Patient{Name: "Maria"}
	require.False(t, p.IsEmptyPlaceholder())

	p = &domain.Patient{DiagnosisSuspicion: "Pneumonia"}
	require.False(t, p.IsEmptyPlaceholder())
}

func TestSectorValid(t *testing.T) {
	require.True(t, domain.SectorRedRoom.Valid())
	require.True(t, domain.SectorOverflow.Valid())
	require.False(t, domain.Sector("UTI").Valid())
	require.False(t, domain.Sector("").Valid())
}

func TestSortBeds(t *testing.T) {
	beds := []domain.Bed{
		{ID: "c", Number: 2, Sector: domain.SectorRedRoom},
		{ID: "a", Number: 3, Sector: domain.SectorFemaleWard},
		{ID: "b", Number: 1, Sector: domain.SectorRedRoom},
	}
	domain.SortBeds(beds)

	require.Equal(t, "a", beds[0].ID)
	require.Equal(t, "b", beds[1].ID)
	require.Equal(t, "c", beds[2].ID)
}

func TestBuildSections_KeepsDisplayOrderAndEmptySections(t *testing.T) {
	beds := []domain.Bed{
		{ID: "ec-1", Number: 1, Sector: domain.SectorOverflow},
		{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom},
	}
	sections := domain.BuildSections(beds)

	require.Len(t, sections, 4)
	require.Equal(t, domain.SectorRedRoom, sections[0].Sector)
	require.Equal(t, domain.SectorFemaleWard, sections[1].Sector)
	require.Equal(t, domain.SectorMaleWard, sections[2].Sector)
	require.Equal(t, domain.SectorOverflow, sections[3].Sector)
	require.Len(t, sections[0].Beds, 1)
	require.Empty(t, sections[1].Beds)
	require.Empty(t, sections[2].Beds)
	require.Len(t, sections[3].Beds, 1)
}

func TestVisibleToRole(t *testing.T) {
	require.True(t, domain.VisibleToRole("", "Enfermeiro"))
	require.True(t, domain.VisibleToRole("General", "Médico"))
	require.True(t, domain.VisibleToRole("All", "qualquer"))
	require.True(t, domain.VisibleToRole("Enfermeiro", "enfermeiro"))
	require.False(t, domain.VisibleToRole("Enfermeiro", "Médico"))
}

func TestDefaultBeds_FixedIDsAndLayout(t *testing.T) {
	beds := domain.DefaultBeds()
	require.Len(t, beds, 12)

	perSector := map[domain.Sector]int{}
	ids := map[string]bool{}
	for _, b := range beds {
		perSector[b.Sector]++
		require.False(t, ids[b.ID], "duplicate bed id %s", b.ID)
		ids[b.ID] = true
		require.Nil(t, b.Patient)
	}
	require.Equal(t, 4, perSector[domain.SectorRedRoom])
	require.Equal(t, 3, perSector[domain.SectorFemaleWard])
	require.Equal(t, 3, perSector[domain.SectorMaleWard])
	require.Equal(t, 2, perSector[domain.SectorOverflow])
}

func TestDefaultKPIs(t *testing.T) {
	kpis := domain.DefaultKPIs()
	require.Len(t, kpis, 5)
	for _, k := range kpis {
		require.Zero(t, k.Value)
		require.NotEmpty(t, k.Name)
		require.NotEmpty(t, k.Title)
	}
}
