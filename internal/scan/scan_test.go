package scan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttsmith21/sheetmetal-engine/internal/geometry"
	"github.com/ttsmith21/sheetmetal-engine/internal/geometry/memory"
)

func primary(t *testing.T, s *memory.Solid) geometry.Body {
	t.Helper()
	body, err := geometry.PrimaryBody(memory.NewModel(s))
	require.NoError(t, err)
	return body
}

func TestPrepassPlate(t *testing.T) {
	m := Prepass(primary(t, memory.Plate(10, 5, 0.1)))

	assert.InDelta(t, 103.0, m.TotalArea, 1e-9)
	assert.InDelta(t, 1.0, m.DevelopableShare(), 1e-9)
	// Along X the top, bottom and Y walls are sides; the X walls are caps.
	assert.InDelta(t, 102.0, m.Axes[0].SideArea, 1e-9)
	assert.InDelta(t, 1.0, m.Axes[0].CapArea, 1e-9)
	assert.InDelta(t, 10.0, m.Spans[0], 1e-9)
	assert.InDelta(t, 5.0, m.Spans[1], 1e-9)
	assert.InDelta(t, 0.1, m.Spans[2], 1e-9)
	assert.Equal(t, 0, StickAxis(m))
}

func TestPrepassWithoutPrincipalAxes(t *testing.T) {
	model := memory.NewModel(memory.Plate(10, 5, 0.1))
	caps := model.Capabilities()
	caps.PrincipalAxes = false
	model.SetCapabilities(caps)
	body, err := geometry.PrimaryBody(model)
	require.NoError(t, err)

	m := Prepass(body)

	assert.Equal(t, IdentityAxes[2], m.Axes[2].Axis)
	assert.InDelta(t, 100.0, m.Axes[2].CapArea, 1e-9)
}

func TestCylindersTube(t *testing.T) {
	cm := Cylinders(primary(t, memory.Tube(40, 1, 0.1)).Faces())

	cyl := 2 * math.Pi * (1 + 0.9) * 40
	annulus := math.Pi * (1 - 0.81)
	assert.InDelta(t, cyl/(cyl+2*annulus), cm.Share, 1e-9)
	assert.InDelta(t, 2.0, cm.Diameter, 1e-9)
	assert.InDelta(t, 0.1, cm.WallThickness, 1e-9)
	assert.True(t, cm.ConsistentRadius)
}

func TestCylindersPlate(t *testing.T) {
	cm := Cylinders(primary(t, memory.Plate(10, 5, 0.1)).Faces())

	assert.Zero(t, cm.Share)
	assert.Zero(t, cm.Diameter)
	assert.InDelta(t, 0.1, cm.WallThickness, 1e-9)
	assert.False(t, cm.ConsistentRadius)
}
