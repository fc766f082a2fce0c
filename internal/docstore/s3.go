package docstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ultradar/internal/resilience"
)

// S3API is the subset of the S3 client the backend calls.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 is an ObjectStore backed by one S3 bucket.
type S3 struct {
	api    S3API
	bucket string
	retry  resilience.RetryConfig
}

// NewS3 builds a client for region from the default AWS credential chain.
func NewS3(ctx context.Context, region, bucket string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "s3: load aws config")
	}
	return NewS3FromAPI(s3.NewFromConfig(cfg), bucket), nil
}

// NewS3FromAPI wraps an existing client.
func NewS3FromAPI(api S3API, bucket string) *S3 {
	r := resilience.DefaultRetryConfig()
	r.OnRetry = resilience.RetryLogger("s3", "object")
	return &S3{api: api, bucket: bucket, retry: r}
}

func (s *S3) Name() string   { return "s3" }
func (s *S3) Bucket() string { return s.bucket }

func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var out []ObjectInfo
	for p.HasMorePages() {
		page, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*s3.ListObjectsV2Output, error) {
			return p.NextPage(ctx)
		})
		if err != nil {
			return nil, s3Error("list", prefix, err)
		}
		for _, o := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          aws.ToString(o.Key),
				ETag:         aws.ToString(o.ETag),
				LastModified: aws.ToTime(o.LastModified),
				Size:         aws.ToInt64(o.Size),
			})
		}
	}
	return out, nil
}

func (s *S3) Get(ctx context.Context, key string) (*RawObject, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*RawObject, error) {
		out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, s3Error("get", key, err)
		}
		defer out.Body.Close()

		body, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, &StorageError{Op: "get", Key: key, Err: err}
		}
		return &RawObject{
			ObjectInfo: ObjectInfo{
				Key:          key,
				ETag:         aws.ToString(out.ETag),
				LastModified: aws.ToTime(out.LastModified),
				Size:         int64(len(body)),
			},
			Body: body,
		}, nil
	})
}

func (s *S3) Put(ctx context.Context, key string, body []byte, ifMatch string) (string, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (string, error) {
		in := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		}
		if ifMatch != "" {
			in.IfMatch = aws.String(ifMatch)
		}
		out, err := s.api.PutObject(ctx, in)
		if err != nil {
			var re *smithyhttp.ResponseError
			if ifMatch != "" && errors.As(err, &re) &&
				(re.HTTPStatusCode() == http.StatusPreconditionFailed || re.HTTPStatusCode() == http.StatusNotFound) {
				return "", &ConflictError{Key: key, Expected: ifMatch}
			}
			return "", s3Error("put", key, err)
		}
		if etag := aws.ToString(out.ETag); etag != "" {
			return etag, nil
		}
		return ETag(body), nil
	})
}

// s3Error classifies an SDK error. Transient failures are marked so the
// retry loop tries again; everything else becomes a StorageError.
func s3Error(op, key string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return notFound(op, key)
	}
	status := 0
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		status = re.HTTPStatusCode()
	}
	se := &StorageError{Op: op, Key: key, Status: status, Err: err}
	if resilience.IsTransient(err) {
		return resilience.NewTransientError(se, status)
	}
	return se
}
