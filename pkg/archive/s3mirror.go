package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/scttfrdmn/probav/pkg/download"
)

// MD5SumsObject is the checksum manifest stored next to mirrored files.
const MD5SumsObject = "md5sums.txt"

// S3API is the subset of the S3 client used by the mirror.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	manager.UploadAPIClient
}

// S3Mirror serves records from s3://bucket/prefix/<record>/.
type S3Mirror struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	progress download.ProgressFunc
}

// ParseS3URI splits s3://bucket/prefix into bucket and prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URI %q: must start with s3://", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing bucket", uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// NewS3Mirror creates a mirror using the default AWS credential chain.
func NewS3Mirror(ctx context.Context, uri, region string) (*S3Mirror, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3MirrorWithClient(s3.NewFromConfig(cfg), uri)
}

// NewS3MirrorWithClient creates a mirror around an existing client.
func NewS3MirrorWithClient(client S3API, uri string) (*S3Mirror, error) {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	return &S3Mirror{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// SetProgress installs a callback receiving download progress of Fetch.
func (m *S3Mirror) SetProgress(fn download.ProgressFunc) {
	m.progress = fn
}

// Name implements Source.
func (m *S3Mirror) Name() string {
	if m.prefix == "" {
		return "s3://" + m.bucket
	}
	return "s3://" + m.bucket + "/" + m.prefix
}

func (m *S3Mirror) key(record, name string) string {
	return path.Join(m.prefix, record, name)
}

// Files implements Source.
func (m *S3Mirror) Files(ctx context.Context, record string) (*Listing, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key(record, MD5SumsObject)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s record %s: %w", m.Name(), record, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", MD5SumsObject, err)
	}
	sums, err := ParseMD5Sums(out.Body)
	out.Body.Close()
	if err != nil {
		return nil, err
	}

	listing := &Listing{Record: record}
	paginator := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucket),
		Prefix: aws.String(m.key(record, "") + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", m.Name(), err)
		}
		for _, obj := range page.Contents {
			name := path.Base(aws.ToString(obj.Key))
			sum, ok := sums[name]
			if !ok || !IsRaster(name) {
				continue
			}
			listing.Files = append(listing.Files, RemoteFile{
				Name: name,
				URL:  "s3://" + m.bucket + "/" + aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
				MD5:  sum,
			})
		}
	}

	sort.Slice(listing.Files, func(i, j int) bool {
		return listing.Files[i].Name < listing.Files[j].Name
	})
	return listing, nil
}

// Fetch implements Source.
func (m *S3Mirror) Fetch(ctx context.Context, file RemoteFile, dst string) (int64, error) {
	bucket, key, err := ParseS3URI(file.URL)
	if err != nil {
		return 0, err
	}
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", file.URL, err)
	}
	defer out.Body.Close()

	if m.progress == nil {
		return download.WriteVerified(dst, out.Body, file.MD5)
	}
	pw := download.NewProgressWriter(m.progress, filepath.Base(dst), aws.ToInt64(out.ContentLength))
	n, err := download.WriteVerified(dst, io.TeeReader(out.Body, pw), file.MD5)
	if err == nil {
		pw.Finish()
	}
	return n, err
}

// Push uploads the files of listing found in dir, then the checksum
// manifest. Files missing from dir are skipped and returned.
func (m *S3Mirror) Push(ctx context.Context, listing *Listing, dir string) (uploaded, missing []string, err error) {
	for _, f := range listing.Files {
		local := filepath.Join(dir, f.Name)
		fh, err := os.Open(local)
		if errors.Is(err, os.ErrNotExist) {
			missing = append(missing, f.Name)
			continue
		}
		if err != nil {
			return uploaded, missing, fmt.Errorf("open file: %w", err)
		}

		_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(m.key(listing.Record, f.Name)),
			Body:   fh,
			Metadata: map[string]string{
				"md5":    f.MD5,
				"record": listing.Record,
			},
		})
		fh.Close()
		if err != nil {
			return uploaded, missing, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		uploaded = append(uploaded, f.Name)
	}

	present := &Listing{Record: listing.Record}
	for _, f := range listing.Files {
		for _, name := range uploaded {
			if name == f.Name {
				present.Files = append(present.Files, f)
			}
		}
	}
	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(m.key(listing.Record, MD5SumsObject)),
		Body:        strings.NewReader(FormatMD5Sums(present)),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return uploaded, missing, fmt.Errorf("upload %s: %w", MD5SumsObject, err)
	}
	return uploaded, missing, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket"
	}
	return false
}
