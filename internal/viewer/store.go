package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	ErrNoCooks   = errors.New("viewer: no cooks in bucket")
	ErrNoObjects = errors.New("viewer: no objects in cook")
	ErrMalformed = errors.New("viewer: malformed row")
)

// maxObjectBytes caps a window read; a full window is ~30 bytes per row.
const maxObjectBytes = 1 << 20

type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type LastUpdate struct {
	Celsius float64
	Time    time.Time
	Key     string
}

// Store finds the newest archived reading. Cooks are top-level prefixes named
// by their start timestamp, so the greatest prefix is the latest cook; within
// it the object with the highest numeric index holds the newest window, whose
// first row is the newest reading.
type Store struct {
	client s3API
	bucket string
}

func NewStore(client s3API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) Bucket() string { return s.bucket }

func (s *Store) LastUpdate(ctx context.Context) (LastUpdate, error) {
	dir, err := s.latestCook(ctx)
	if err != nil {
		return LastUpdate{}, err
	}
	key, err := s.latestObject(ctx, dir)
	if err != nil {
		return LastUpdate{}, err
	}
	body, err := s.read(ctx, key)
	if err != nil {
		return LastUpdate{}, err
	}
	u, err := parseFirstRow(body)
	if err != nil {
		return LastUpdate{}, fmt.Errorf("%s: %w", key, err)
	}
	u.Key = key
	return u, nil
}

func (s *Store) latestCook(ctx context.Context) (string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
	})

	var latest string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list cooks in %s: %w", s.bucket, err)
		}
		for _, cp := range page.CommonPrefixes {
			if d := aws.ToString(cp.Prefix); d > latest {
				latest = d
			}
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w %s", ErrNoCooks, s.bucket)
	}
	return latest, nil
}

func (s *Store) latestObject(ctx context.Context, dir string) (string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	})

	best, bestIdx := "", -1
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list objects in %s/%s: %w", s.bucket, dir, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			idx, ok := keyIndex(key)
			if ok && idx > bestIdx {
				best, bestIdx = key, idx
			}
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w %s/%s", ErrNoObjects, s.bucket, dir)
	}
	return best, nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, maxObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", s.bucket, key, err)
	}
	return b, nil
}

// keyIndex extracts N from ".../N.csv".
func keyIndex(key string) (int, bool) {
	base := path.Base(key)
	if !strings.HasSuffix(base, ".csv") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(base, ".csv"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func parseFirstRow(body []byte) (LastUpdate, error) {
	first, _, _ := strings.Cut(string(body), "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return LastUpdate{}, fmt.Errorf("%w: empty object", ErrMalformed)
	}

	parts := strings.Split(first, ",")
	if len(parts) != 2 {
		return LastUpdate{}, fmt.Errorf("%w: expected 2 parts got %d: %q", ErrMalformed, len(parts), first)
	}
	c, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return LastUpdate{}, fmt.Errorf("%w: temperature %q: %w", ErrMalformed, parts[0], err)
	}
	t, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return LastUpdate{}, fmt.Errorf("%w: timestamp %q: %w", ErrMalformed, parts[1], err)
	}
	return LastUpdate{Celsius: c, Time: t}, nil
}
