package detect

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pitch.report/internal/geom"
)

func TestParseObjectClass(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label   string
		want    ObjectClass
		wantErr bool
	}{
		{"player", ClassPlayer, false},
		{"Person", ClassPlayer, false},
		{" sports ball ", ClassBall, false},
		{"sports_ball", ClassBall, false},
		{"REFEREE", ClassReferee, false},
		{"keeper", ClassGoalkeeper, false},
		{"dog", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseObjectClass(tt.label)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectClassCompatible(t *testing.T) {
	t.Parallel()
	assert.True(t, ClassPlayer.Compatible(ClassGoalkeeper))
	assert.True(t, ClassReferee.Compatible(ClassPlayer))
	assert.True(t, ClassBall.Compatible(ClassBall))
	assert.False(t, ClassBall.Compatible(ClassPlayer))
	assert.False(t, ClassGoalkeeper.Compatible(ClassBall))
	assert.False(t, ObjectClass("dog").Compatible(ClassPlayer))
	assert.False(t, ClassBall.IsPerson())
}

// ----

func TestBBox(t *testing.T) {
	t.Parallel()
	b := BBox{X1: 10, Y1: 20, X2: 30, Y2: 60}
	assert.Equal(t, 20.0, b.Width())
	assert.Equal(t, 40.0, b.Height())
	assert.Equal(t, 800.0, b.Area())
	assert.Equal(t, geom.Pt(20, 40), b.Center())
	assert.Equal(t, geom.Pt(20, 60), b.FootPoint())
	assert.Equal(t, BBox{X1: 15, Y1: 18, X2: 35, Y2: 58}, b.Translate(5, -2))
	assert.True(t, b.Valid())

	assert.False(t, BBox{X1: 10, Y1: 10, X2: 10, Y2: 20}.Valid(), "zero width")
	assert.False(t, BBox{X1: 0, Y1: 0, X2: math.NaN(), Y2: 1}.Valid())
	assert.False(t, BBox{X1: 0, Y1: 0, X2: 1, Y2: math.Inf(1)}.Valid())
	assert.Equal(t, 0.0, BBox{X1: 5, Y1: 5, X2: 1, Y2: 1}.Area())
}

func TestBBoxIoU(t *testing.T) {
	t.Parallel()
	a := BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	tests := []struct {
		name string
		b    BBox
		want float64
	}{
		{"identical", a, 1},
		{"half overlap", BBox{X1: 5, Y1: 0, X2: 15, Y2: 10}, 50.0 / 150.0},
		{"touching", BBox{X1: 10, Y1: 0, X2: 20, Y2: 10}, 0},
		{"disjoint", BBox{X1: 20, Y1: 20, X2: 30, Y2: 30}, 0},
		{"contained", BBox{X1: 0, Y1: 0, X2: 5, Y2: 5}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, a.IoU(tt.b), 1e-12)
			assert.InDelta(t, tt.want, tt.b.IoU(a), 1e-12, "IoU is symmetric")
		})
	}
}

// ----

func readAll(t *testing.T, src Source) ([]Frame, error) {
	t.Helper()
	var out []Frame
	for {
		f, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

func TestJSONLSource(t *testing.T) {
	t.Parallel()
	in := `{"frame_number":0,"timestamp":0,"detections":[{"bbox":{"x1":1,"y1":2,"x2":11,"y2":32},"confidence":0.9,"class":"person","jersey":{"h":10,"s":200,"v":180}}]}

{"frame_number":2,"timestamp":0.08,"detections":[{"bbox":{"x1":5,"y1":5,"x2":7,"y2":7},"confidence":0.6,"class":"sports ball"},{"bbox":{"x1":1,"y1":1,"x2":2,"y2":2},"confidence":0.9,"class":"dog"},{"bbox":{"x1":3,"y1":3,"x2":1,"y2":1},"confidence":0.9,"class":"player"},{"confidence":0.9,"class":"player"}]}
{"frame_number":3,"timestamp":0.12}
`
	src := NewJSONLSource(strings.NewReader(in))
	frames, err := readAll(t, src)
	require.NoError(t, err)

	want := []Frame{
		{FrameNumber: 0, Timestamp: 0, Detections: []Detection{{
			FrameNumber: 0,
			BBox:        BBox{X1: 1, Y1: 2, X2: 11, Y2: 32},
			Confidence:  0.9,
			Class:       ClassPlayer,
			Jersey:      &HSV{H: 10, S: 200, V: 180},
		}}},
		{FrameNumber: 2, Timestamp: 0.08, Detections: []Detection{{
			FrameNumber: 2,
			BBox:        BBox{X1: 5, Y1: 5, X2: 7, Y2: 7},
			Confidence:  0.6,
			Class:       ClassBall,
		}}},
		{FrameNumber: 3, Timestamp: 0.12},
	}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, src.Dropped, "unknown class, inverted box and missing box")
}

func TestJSONLSource_Corrupt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
	}{
		{"bad json", "{\"frame_number\":0}\n{not json}\n"},
		{"missing frame number", "{\"timestamp\":1}\n"},
		{"repeated frame", "{\"frame_number\":4}\n{\"frame_number\":4}\n"},
		{"frames out of order", "{\"frame_number\":4}\n{\"frame_number\":2}\n"},
		{"line too long", "{\"frame_number\":0,\"pad\":\"" + strings.Repeat("x", maxLineBytes) + "\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readAll(t, NewJSONLSource(strings.NewReader(tt.in)))
			assert.ErrorIs(t, err, ErrCorruptStream)
		})
	}
}

func TestJSONLSource_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewJSONLSource(strings.NewReader(`{"frame_number":0}`)).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSliceSource(t *testing.T) {
	t.Parallel()
	frames := []Frame{{FrameNumber: 0}, {FrameNumber: 1, Timestamp: 0.04}}
	got, err := readAll(t, NewSliceSource(frames))
	require.NoError(t, err)
	assert.Equal(t, frames, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSliceSource(frames).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogStreams(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(nil, &diag, nil)
	defer SetLogWriters(nil, nil, nil)

	_, err := readAll(t, NewJSONLSource(strings.NewReader(`{"frame_number":7,"detections":[{"bbox":{"x1":0,"y1":0,"x2":1,"y2":1},"class":"cone"}]}`)))
	require.NoError(t, err)
	assert.Contains(t, diag.String(), "[detect] ")
	assert.Contains(t, diag.String(), `unknown object class "cone"`)
}
