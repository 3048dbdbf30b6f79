package preset

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/paramtree/internal/param/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleDocument(name string) *Document {
	doc := NewDocument(name, time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC))
	doc.Set("mesh", "deflection", value.Float(0.1+0.2))
	doc.Set("mesh", "subdivision.levels", value.Int(math.MaxInt64))
	doc.Set("mesh", "inParallel", value.Bool(false))
	doc.Set("rendering", "display.mode", value.Text("Wire \"frame\"\n"))
	doc.Set("rendering", "material.diffuse", value.Vector(0.8, 1e-300, -0.25))
	doc.Set("lighting", "main.direction", value.Vector())
	doc.Set("geometry", "blob", value.Opaque([]byte{0, 1, 2, 255}))
	doc.Set("geometry", "position.x", value.Float(-0.0000001))
	return doc
}

func TestCodecs_RoundTrip(t *testing.T) {
	for _, codec := range []Codec{TOMLCodec{}, YAMLCodec{}, JSONCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			doc := sampleDocument("p1")

			data, err := codec.Encode(doc)
			require.NoError(t, err)

			got, err := codec.Decode(data)
			require.NoError(t, err, "%s", data)
			assert.Equal(t, "p1", got.Name)
			assert.True(t, doc.SavedAt.Equal(got.SavedAt), "saved_at %v != %v", doc.SavedAt, got.SavedAt)
			assert.True(t, doc.Equal(got), "documents differ:\n%s", data)
		})
	}
}

func TestCodecs_NonFinite(t *testing.T) {
	doc := NewDocument("nf", time.Now())
	doc.Set("mesh", "x", value.Float(math.Inf(1)))

	_, err := JSONCodec{}.Encode(doc)
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	for _, codec := range []Codec{TOMLCodec{}, YAMLCodec{}} {
		data, err := codec.Encode(doc)
		require.NoError(t, err, codec.Name())
		got, err := codec.Decode(data)
		require.NoError(t, err, codec.Name())
		assert.True(t, doc.Equal(got), codec.Name())
	}
}

func TestCodecs_DecodeErrors(t *testing.T) {
	_, err := JSONCodec{}.Decode([]byte(`{"systems":`))
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)

	_, err = TOMLCodec{}.Decode([]byte("name = \n"))
	assert.ErrorAs(t, err, &perr)

	_, err = JSONCodec{}.Decode([]byte(`{"systems":{"mesh":{"x":{"type":"float"}}}}`))
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = YAMLCodec{}.Decode([]byte("systems:\n  mesh:\n    x:\n      type: widget\n"))
	assert.Error(t, err)
}

func TestCodecFor(t *testing.T) {
	for format, want := range map[string]string{"toml": "toml", "yml": "yaml", "JSON": "json", "": "toml"} {
		c, err := CodecFor(format)
		require.NoError(t, err)
		assert.Equal(t, want, c.Name())
	}
	_, err := CodecFor("xml")
	assert.Error(t, err)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("studio-2_final"))
	for _, bad := range []string{"", "../etc", "a b", "x.toml"} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, bad)
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	doc := sampleDocument("p1")
	require.NoError(t, s.Save(ctx, doc))
	require.NoError(t, s.Save(ctx, sampleDocument("p0")))

	got, err := s.Load(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, doc.Equal(got))

	// overwrite replaces all values
	smaller := NewDocument("p1", time.Now())
	smaller.Set("mesh", "deflection", value.Float(2))
	require.NoError(t, s.Save(ctx, smaller))
	got, err = s.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	names, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1"}, names)

	require.NoError(t, s.Delete(ctx, "p1"))
	_, err = s.Load(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "p1"), ErrNotFound)
	assert.ErrorIs(t, s.Save(ctx, NewDocument("bad name", time.Now())), ErrInvalidName)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	for _, codec := range []Codec{TOMLCodec{}, YAMLCodec{}, JSONCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			s, err := NewFileStore(t.TempDir(), codec)
			require.NoError(t, err)
			exerciseStore(t, s)
		})
	}
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, TOMLCodec{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad name.toml"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.toml"), 0o755))

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, os.WriteFile(s.Path("broken"), []byte("name = = 1"), 0o644))
	_, err = s.Load(context.Background(), "broken")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, s.Path("broken"), perr.Path)
}

func TestSQLStore(t *testing.T) {
	s, err := OpenSQLStore(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLStore_NaNAndFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "presets.db")

	s, err := OpenSQLStore(ctx, path)
	require.NoError(t, err)
	doc := NewDocument("nan", time.Now())
	doc.Set("mesh", "x", value.Float(math.NaN()))
	doc.Set("mesh", "y", value.Float(math.Inf(-1)))
	require.NoError(t, s.Save(ctx, doc))
	require.NoError(t, s.Close())

	s, err = OpenSQLStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "nan")
	require.NoError(t, err)
	assert.True(t, doc.Equal(got))
}

func TestWatcher(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir(), YAMLCodec{})
	require.NoError(t, err)

	w, err := NewWatcher(s, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	// a burst of saves coalesces into one event
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, sampleDocument("live")))
	}
	ev := waitEvent(t, w, OpWrite)
	assert.Equal(t, "live", ev.Name)
	assert.Equal(t, s.Path("live"), ev.Path)

	require.NoError(t, s.Delete(ctx, "live"))
	ev = waitEvent(t, w, OpRemove)
	assert.Equal(t, "live", ev.Name)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	for range w.Events() {
	}
	_, open := <-w.Events()
	assert.False(t, open)
}

func waitEvent(t *testing.T, w *Watcher, op Op) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Op == op {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", op)
			return Event{}
		}
	}
}
