package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cloudpico-probe/internal/probe"
	"cloudpico-probe/internal/status"
)

type put struct {
	key  string
	body string
}

type fakeStore struct {
	puts []put
	err  error
}

func (f *fakeStore) Put(_ context.Context, key string, body []byte) error {
	f.puts = append(f.puts, put{key: key, body: string(body)})
	return f.err
}

func (f *fakeStore) last(t *testing.T) put {
	t.Helper()
	if len(f.puts) == 0 {
		t.Fatal("no uploads recorded")
	}
	return f.puts[len(f.puts)-1]
}

type recordingArchival struct {
	got []status.Archival
}

func (r *recordingArchival) SetArchival(a status.Archival) { r.got = append(r.got, a) }

// clock advances one second per call starting at 2024-03-01T12:00:00Z.
func clock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(time.Second)
		return now
	}
}

func reading(c float64) probe.Reading {
	// CapturedAt differs from the archive clock; rows carry push time.
	return probe.Reading{Celsius: c, CapturedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestUploader_SerializesMostRecentFirst(t *testing.T) {
	store := &fakeStore{}
	u := NewUploader(store, "2024-03-01T11:59:00.000Z", Options{BatchSize: 5, Now: clock()})
	ctx := context.Background()

	for _, c := range []float64{20, 20.05, 19.95} {
		if err := u.Push(ctx, reading(c)); err != nil {
			t.Fatalf("Push(%v): %v", c, err)
		}
	}

	if len(store.puts) != 3 {
		t.Fatalf("uploads = %d, want 3 (one per push)", len(store.puts))
	}
	got := store.last(t)
	if got.key != "2024-03-01T11:59:00.000Z/0.csv" {
		t.Errorf("key = %q", got.key)
	}
	want := strings.Join([]string{
		"19.95,2024-03-01T12:00:02.000Z",
		"20.05,2024-03-01T12:00:01.000Z",
		"20,2024-03-01T12:00:00.000Z",
	}, "\n")
	if got.body != want {
		t.Errorf("body =\n%s\nwant\n%s", got.body, want)
	}
	if first := store.puts[0].body; first != "20,2024-03-01T12:00:00.000Z" {
		t.Errorf("first upload = %q, want single row", first)
	}
}

func TestUploader_RotatesAfterThresholdExceeded(t *testing.T) {
	store := &fakeStore{}
	u := NewUploader(store, "p", Options{BatchSize: 2, Now: clock()})
	ctx := context.Background()

	wantKeys := []string{"p/0.csv", "p/0.csv", "p/0.csv", "p/1.csv", "p/1.csv", "p/1.csv", "p/2.csv"}
	wantLens := []int{1, 2, 3, 1, 2, 3, 1}
	for i := range wantKeys {
		if err := u.Push(ctx, reading(float64(i))); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
		if got := store.last(t).key; got != wantKeys[i] {
			t.Errorf("push %d key = %q, want %q", i, got, wantKeys[i])
		}
		if u.Len() != wantLens[i] {
			t.Errorf("push %d Len = %d, want %d", i, u.Len(), wantLens[i])
		}
	}
	if u.KeyIndex() != 2 {
		t.Errorf("KeyIndex = %d, want 2", u.KeyIndex())
	}
	if body := store.last(t).body; strings.Contains(body, "\n") {
		t.Errorf("post-rotation body carries old rows: %q", body)
	}
}

func TestUploader_FailureKeepsWindow(t *testing.T) {
	store := &fakeStore{err: errors.New("network down")}
	arch := &recordingArchival{}
	u := NewUploader(store, "p", Options{BatchSize: 10, Status: arch, Now: clock()})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := u.Push(ctx, reading(21))
		if !errors.Is(err, ErrUpload) {
			t.Fatalf("Push %d error = %v, want ErrUpload", i, err)
		}
	}
	if u.Len() != 3 || u.KeyIndex() != 0 {
		t.Fatalf("after failures Len/KeyIndex = %d/%d, want 3/0", u.Len(), u.KeyIndex())
	}

	store.err = nil
	if err := u.Push(ctx, reading(22)); err != nil {
		t.Fatalf("Push after recovery: %v", err)
	}
	got := store.last(t)
	if got.key != "p/0.csv" {
		t.Errorf("key = %q, want p/0.csv", got.key)
	}
	if rows := strings.Count(got.body, "\n") + 1; rows != 4 {
		t.Errorf("rows = %d, want 4", rows)
	}

	want := []status.Archival{
		status.Writing, status.Error,
		status.Writing, status.Error,
		status.Writing, status.Error,
		status.Writing,
	}
	if len(arch.got) != len(want) {
		t.Fatalf("archival = %v, want %v", arch.got, want)
	}
	for i := range want {
		if arch.got[i] != want[i] {
			t.Errorf("archival[%d] = %v, want %v", i, arch.got[i], want[i])
		}
	}
}

func TestUploader_Disabled(t *testing.T) {
	arch := &recordingArchival{}
	u := NewUploader(nil, "p", Options{Status: arch})

	for i := 0; i < 5; i++ {
		if err := u.Push(context.Background(), reading(20)); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if u.Enabled() {
		t.Error("Enabled() = true, want false")
	}
	if u.Len() != 0 {
		t.Errorf("Len = %d, want 0 (readings discarded)", u.Len())
	}
	if len(arch.got) != 0 {
		t.Errorf("archival = %v, want untouched", arch.got)
	}
}

func TestUploader_Defaults(t *testing.T) {
	u := NewUploader(&fakeStore{}, "p/", Options{})
	if u.batchSize != DefaultBatchSize {
		t.Errorf("batchSize = %d, want %d", u.batchSize, DefaultBatchSize)
	}
	if u.Key() != "p/0.csv" {
		t.Errorf("Key = %q, want trailing slash trimmed", u.Key())
	}
}

type fakePutAPI struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakePutAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	api := &fakePutAPI{}
	store := NewS3Store(api, "cooks", "run-1")

	if err := store.Put(context.Background(), "p/0.csv", []byte("20,2024-03-01T12:00:00.000Z")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if *api.in.Bucket != "cooks" || *api.in.Key != "p/0.csv" {
		t.Errorf("bucket/key = %s/%s", *api.in.Bucket, *api.in.Key)
	}
	if *api.in.ContentType != "text/csv" {
		t.Errorf("ContentType = %q", *api.in.ContentType)
	}
	if api.in.Metadata["run-id"] != "run-1" {
		t.Errorf("metadata = %v", api.in.Metadata)
	}
	body, err := io.ReadAll(api.in.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "20,2024-03-01T12:00:00.000Z" {
		t.Errorf("body = %q", body)
	}

	api.err = errors.New("access denied")
	if err := store.Put(context.Background(), "p/0.csv", nil); err == nil {
		t.Error("Put error = nil, want failure")
	}
}
