package jersey

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/banshee-data/pitch.report/internal/match/detect"
)

func TestTorsoRect(t *testing.T) {
	t.Parallel()
	box := detect.BBox{X1: 100, Y1: 50, X2: 150, Y2: 150}
	assert.Equal(t, image.Rect(110, 70, 140, 110), TorsoRect(box, 640, 480))

	// Clipped at the image edge.
	assert.Equal(t, image.Rect(110, 70, 120, 110), TorsoRect(box, 120, 480))

	// Entirely off-image.
	assert.True(t, TorsoRect(detect.BBox{X1: 700, Y1: 0, X2: 750, Y2: 100}, 640, 480).Empty())
}

func TestSampleTorso(t *testing.T) {
	t.Parallel()
	box := detect.BBox{X1: 10, Y1: 10, X2: 60, Y2: 110}

	t.Run("solid red kit", func(t *testing.T) {
		img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 200, 0), 120, 80, gocv.MatTypeCV8UC3)
		defer img.Close()
		d, ok := SampleTorso(img, box)
		require.True(t, ok)
		assert.True(t, d.H < 1 || d.H > 179, "hue %v", d.H)
		assert.InDelta(t, 255, d.S, 1)
		assert.InDelta(t, 200, d.V, 1)
	})

	t.Run("solid blue kit", func(t *testing.T) {
		img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 0, 0, 0), 120, 80, gocv.MatTypeCV8UC3)
		defer img.Close()
		d, ok := SampleTorso(img, box)
		require.True(t, ok)
		assert.InDelta(t, 120, d.H, 1)
	})

	t.Run("shadow only", func(t *testing.T) {
		img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 10, 10, 0), 120, 80, gocv.MatTypeCV8UC3)
		defer img.Close()
		_, ok := SampleTorso(img, box)
		assert.False(t, ok)
	})

	t.Run("empty image", func(t *testing.T) {
		img := gocv.NewMat()
		defer img.Close()
		_, ok := SampleTorso(img, box)
		assert.False(t, ok)
	})
}
