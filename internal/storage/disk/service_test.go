package disk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/dmitrijs2005/tusstore/internal/idfactory"
	"github.com/dmitrijs2005/tusstore/internal/logging"
	"github.com/dmitrijs2005/tusstore/internal/upload"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *idfactory.UUIDFactory) {
	t.Helper()
	ids, err := idfactory.New("/files/")
	require.NoError(t, err)
	s, err := NewService(t.TempDir(), ids, opts...)
	require.NoError(t, err)
	return s, ids
}

func dataSize(t *testing.T, s *Service, id string) int64 {
	t.Helper()
	st, err := os.Stat(filepath.Join(s.Root(), id, dataFile))
	require.NoError(t, err)
	return st.Size()
}

func storedInfo(t *testing.T, s *Service, id string) *upload.Info {
	t.Helper()
	info, err := s.load(id)
	require.NoError(t, err)
	return info
}

func TestNewService_RequiresIDFactory(t *testing.T) {
	_, err := NewService(t.TempDir(), nil)
	require.Error(t, err)
}

func TestNewService_CreatesUploadsDirectory(t *testing.T) {
	s, _ := newTestService(t)
	assert.Equal(t, uploadSubDirectory, filepath.Base(s.Root()))

	st, err := os.Stat(s.Root())
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestCreate_InitialisesUpload(t *testing.T) {
	s, ids := newTestService(t)
	ctx := context.Background()

	in := &upload.Info{
		Offset:   42,
		OwnerKey: "ignored",
		Length:   upload.Int64(1000),
		Checksum: "sha1 Kq5sNclPz7QV2+lfQIuc6R7oRu0=",
		Metadata: map[string]string{"filename": "world_domination_plan.pdf"},
	}

	info, err := s.Create(ctx, in, "owner-1")
	require.NoError(t, err)
	require.NotEmpty(t, info.ID)

	assert.Equal(t, int64(0), info.Offset)
	assert.Equal(t, "owner-1", info.OwnerKey)
	assert.Equal(t, upload.TypeRegular, info.UploadType)
	assert.False(t, info.CreatedAt.IsZero())
	assert.Equal(t, int64(0), dataSize(t, s, info.ID))

	got, err := s.GetUploadInfo(ctx, ids.URIFor(info.ID), "owner-1")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(info, got))
}

func TestCreate_NilInfo(t *testing.T) {
	s, _ := newTestService(t)

	info, err := s.Create(context.Background(), nil, "")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(0), info.Offset)
}

func TestAppend_Scenario(t *testing.T) {
	s, ids := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, &upload.Info{}, "")
	require.NoError(t, err)

	info, err = s.Append(ctx, info, bytes.NewReader(make([]byte, 100)))
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.Offset)

	info, err = s.Append(ctx, info, bytes.NewReader(make([]byte, 50)))
	require.NoError(t, err)
	assert.Equal(t, int64(150), info.Offset)

	stale := info.Clone()
	stale.Offset = 140
	got, err := s.Append(ctx, stale, strings.NewReader("0123456789"))
	require.ErrorIs(t, err, common.ErrorInvalidOffset)
	assert.Equal(t, int64(150), got.Offset, "caller learns the durable offset")

	assert.Equal(t, int64(150), dataSize(t, s, info.ID))
	stored, err := s.GetUploadInfo(ctx, ids.URIFor(info.ID), "")
	require.NoError(t, err)
	assert.Equal(t, int64(150), stored.Offset)
}

func TestAppend_OffsetAlwaysMatchesDataSize(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "")
	require.NoError(t, err)

	var want bytes.Buffer
	for i, chunk := range []string{"a", "", "bcdef", strings.Repeat("x", 4096), "z"} {
		info, err = s.Append(ctx, info, strings.NewReader(chunk))
		require.NoError(t, err, "chunk %d", i)
		want.WriteString(chunk)

		assert.Equal(t, int64(want.Len()), info.Offset)
		assert.Equal(t, info.Offset, dataSize(t, s, info.ID))
		assert.Equal(t, info.Offset, storedInfo(t, s, info.ID).Offset)
	}

	b, err := os.ReadFile(filepath.Join(s.Root(), info.ID, dataFile))
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), b)
}

func TestAppend_WrongOffsetWritesNothing(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
	}{
		{name: "behind", offset: 3},
		{name: "ahead", offset: 20},
		{name: "negative", offset: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(t)
			ctx := context.Background()

			info, err := s.Create(ctx, nil, "")
			require.NoError(t, err)
			info, err = s.Append(ctx, info, strings.NewReader("0123456789"))
			require.NoError(t, err)

			info.Offset = tt.offset
			_, err = s.Append(ctx, info, strings.NewReader("more"))
			require.ErrorIs(t, err, common.ErrorInvalidOffset)

			assert.Equal(t, int64(10), dataSize(t, s, info.ID))
			assert.Equal(t, int64(10), storedInfo(t, s, info.ID).Offset)
		})
	}
}

// failingReader yields data and then fails like a dropped connection.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestAppend_SourceFailureKeepsDurableOffset(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "")
	require.NoError(t, err)
	info, err = s.Append(ctx, info, strings.NewReader("head-"))
	require.NoError(t, err)

	src := &failingReader{data: []byte("partial-body"), err: io.ErrUnexpectedEOF}
	got, err := s.Append(ctx, info, src)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	want := int64(len("head-") + len("partial-body"))
	assert.Equal(t, want, got.Offset)
	assert.Equal(t, want, dataSize(t, s, info.ID))
	assert.Equal(t, want, storedInfo(t, s, info.ID).Offset)

	// the next attempt resumes from the recovered offset
	got, err = s.Append(ctx, got, strings.NewReader("!"))
	require.NoError(t, err)
	assert.Equal(t, want+1, got.Offset)
}

func TestAppend_RecoveryIsReported(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "")
	require.NoError(t, err)

	info.Offset = 3
	_, err = s.Append(ctx, info, strings.NewReader("x"))
	require.ErrorIs(t, err, common.ErrorInvalidOffset)

	var rec *upload.RecoveredError
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, int64(0), info.Offset)
}

func TestAppend_SaveFailureAfterWriteIsLogged(t *testing.T) {
	var logs bytes.Buffer
	s, _ := newTestService(t, WithLogger(logging.NewJSON(&logs, "warn")))
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "")
	require.NoError(t, err)

	// an info path that cannot be replaced by a regular file
	infoPath := filepath.Join(s.Root(), info.ID, infoFile)
	require.NoError(t, os.Remove(infoPath))
	require.NoError(t, os.MkdirAll(filepath.Join(infoPath, "blocker"), 0o750))

	got, err := s.Append(ctx, info, strings.NewReader("abcd"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)

	var rec *upload.RecoveredError
	assert.False(t, errors.As(err, &rec))
	assert.Equal(t, int64(4), got.Offset)
	assert.Equal(t, int64(4), dataSize(t, s, info.ID))
	assert.Contains(t, logs.String(), "appended bytes not reflected in stored record")
}

func TestAppend_CancelledContext(t *testing.T) {
	s, _ := newTestService(t)

	info, err := s.Create(context.Background(), nil, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := s.Append(ctx, info, strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), got.Offset)
	assert.Equal(t, int64(0), dataSize(t, s, info.ID))
}

func TestAppend_MaxUploadSize(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	s.SetMaxUploadSize(120)

	info, err := s.Create(ctx, nil, "")
	require.NoError(t, err)

	src := bytes.NewReader(make([]byte, 150))
	info, err = s.Append(ctx, info, src)
	require.NoError(t, err)
	assert.Equal(t, int64(120), info.Offset)
	assert.Equal(t, int64(120), dataSize(t, s, info.ID))
	assert.Equal(t, 30, src.Len(), "bytes past the cap stay unread")

	info, err = s.Append(ctx, info, strings.NewReader("overflow"))
	require.NoError(t, err)
	assert.Equal(t, int64(120), info.Offset)
	assert.Equal(t, int64(120), dataSize(t, s, info.ID))
}

func TestAppend_MaxUploadSizeAcrossCalls(t *testing.T) {
	s, _ := newTestService(t, WithMaxUploadSize(10))
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "")
	require.NoError(t, err)

	info, err = s.Append(ctx, info, strings.NewReader("123456"))
	require.NoError(t, err)
	info, err = s.Append(ctx, info, strings.NewReader("789abc"))
	require.NoError(t, err)

	assert.Equal(t, int64(10), info.Offset)
	b, err := os.ReadFile(filepath.Join(s.Root(), info.ID, dataFile))
	require.NoError(t, err)
	assert.Equal(t, "123456789a", string(b))
}

func TestMaxUploadSize_Normalised(t *testing.T) {
	s, _ := newTestService(t, WithMaxUploadSize(-5))
	assert.Equal(t, int64(0), s.MaxUploadSize())

	s.SetMaxUploadSize(64)
	assert.Equal(t, int64(64), s.MaxUploadSize())

	s.SetMaxUploadSize(0)
	assert.Equal(t, int64(0), s.MaxUploadSize())
}

func TestAppend_NilInfoIsNoop(t *testing.T) {
	s, _ := newTestService(t)

	got, err := s.Append(context.Background(), nil, strings.NewReader("x"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAppend_UnknownUpload(t *testing.T) {
	s, ids := newTestService(t)

	_, err := s.Append(context.Background(), &upload.Info{ID: ids.CreateID()}, strings.NewReader("x"))
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRemoveLastBytes(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "")
	require.NoError(t, err)
	info, err = s.Append(ctx, info, bytes.NewReader(make([]byte, 150)))
	require.NoError(t, err)

	require.NoError(t, s.RemoveLastBytes(ctx, info, 50))
	assert.Equal(t, int64(100), info.Offset)
	assert.Equal(t, int64(100), dataSize(t, s, info.ID))
	assert.Equal(t, int64(100), storedInfo(t, s, info.ID).Offset)

	require.NoError(t, s.RemoveLastBytes(ctx, info, 0))
	assert.Equal(t, int64(100), info.Offset)

	require.ErrorIs(t, s.RemoveLastBytes(ctx, info, 101), common.ErrorInvalidOffset)
	require.ErrorIs(t, s.RemoveLastBytes(ctx, info, -1), common.ErrorInvalidOffset)
	assert.Equal(t, int64(100), dataSize(t, s, info.ID))

	require.NoError(t, s.RemoveLastBytes(ctx, info, 100))
	assert.Equal(t, int64(0), info.Offset)

	require.NoError(t, s.RemoveLastBytes(ctx, nil, 10))
}

func TestTerminate(t *testing.T) {
	s, ids := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "owner")
	require.NoError(t, err)
	info, err = s.Append(ctx, info, strings.NewReader("bytes"))
	require.NoError(t, err)

	require.NoError(t, s.Terminate(ctx, info))

	_, err = os.Stat(filepath.Join(s.Root(), info.ID))
	assert.True(t, os.IsNotExist(err))

	_, err = s.GetUploadInfo(ctx, ids.URIFor(info.ID), "owner")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.GetUploadedBytes(ctx, ids.URIFor(info.ID), "owner")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.Append(ctx, info, strings.NewReader("late"))
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.ErrorIs(t, s.Update(ctx, info), common.ErrorNotFound)

	require.NoError(t, s.Terminate(ctx, info), "terminating twice is fine")
	require.NoError(t, s.Terminate(ctx, nil))
}

func TestGetUploadInfo_Idempotent(t *testing.T) {
	s, ids := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, &upload.Info{Metadata: map[string]string{"k": "v"}}, "o")
	require.NoError(t, err)

	a, err := s.GetUploadInfo(ctx, ids.URIFor(info.ID), "o")
	require.NoError(t, err)
	b, err := s.GetUploadInfo(ctx, ids.URIFor(info.ID), "o")
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(a, b))
}

func TestGetUploadInfo_OwnerMismatchAndBadURI(t *testing.T) {
	s, ids := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "alice")
	require.NoError(t, err)

	_, err = s.GetUploadInfo(ctx, ids.URIFor(info.ID), "bob")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.GetUploadInfo(ctx, ids.URIFor(info.ID), "")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.GetUploadInfo(ctx, "/files/not-a-uuid", "alice")
	assert.ErrorIs(t, err, common.ErrorInvalidURI)

	_, err = s.GetUploadInfo(ctx, ids.URIFor(ids.CreateID()), "alice")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetUploadedBytes(t *testing.T) {
	s, ids := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "o")
	require.NoError(t, err)
	_, err = s.Append(ctx, info, strings.NewReader("hello, world"))
	require.NoError(t, err)

	rc, err := s.GetUploadedBytes(ctx, ids.URIFor(info.ID), "o")
	require.NoError(t, err)
	defer rc.Close()

	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(b))

	_, err = s.GetUploadedBytes(ctx, "/elsewhere/x", "o")
	assert.ErrorIs(t, err, common.ErrorInvalidURI)
}

func TestUpdate_RewritesPassengers(t *testing.T) {
	s, ids := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "o")
	require.NoError(t, err)

	info.Length = upload.Int64(77)
	info.Metadata = map[string]string{"filename": "a.bin"}
	require.NoError(t, s.Update(ctx, info))
	require.NoError(t, s.Update(ctx, nil))

	got, err := s.GetUploadInfo(ctx, ids.URIFor(info.ID), "o")
	require.NoError(t, err)
	require.True(t, got.HasLength())
	assert.Equal(t, int64(77), *got.Length)
	assert.Equal(t, "a.bin", got.Metadata["filename"])
}

func TestGetUploadURI(t *testing.T) {
	s, _ := newTestService(t)
	assert.Equal(t, "/files/", s.GetUploadURI())
}

func TestCleanupExpiredUploads_Noop(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	info, err := s.Create(ctx, nil, "")
	require.NoError(t, err)

	require.NoError(t, s.CleanupExpiredUploads(ctx, nil))
	assert.Equal(t, int64(0), storedInfo(t, s, info.ID).Offset)
}

func TestList(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	a, err := s.Create(ctx, nil, "a")
	require.NoError(t, err)
	b, err := s.Create(ctx, nil, "b")
	require.NoError(t, err)
	broken, err := s.Create(ctx, nil, "c")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), broken.ID, infoFile), []byte("{"), 0o640))

	infos, err := s.List(ctx)
	require.NoError(t, err)

	got := map[string]string{}
	for _, i := range infos {
		got[i.ID] = i.OwnerKey
	}
	assert.Equal(t, map[string]string{a.ID: "a", b.ID: "b"}, got)
}
