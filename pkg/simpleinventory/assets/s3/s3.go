package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
	"github.com/tendant/simple-inventory/pkg/simpleinventory/assetkey"
)

const backendName = "s3"

// maxPutAttempts bounds retries when a generated key is already taken.
const maxPutAttempts = 5

// Config options for the S3 asset store
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	Prefix          string // Optional key prefix, e.g. "photos/"
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	CreateBucketIfNotExist bool // Create bucket if it doesn't exist

	// KeyGenerator names new assets. Defaults to assetkey.NewDefaultGenerator().
	KeyGenerator assetkey.Generator
}

// Backend is an S3 implementation of the simpleinventory.AssetStore interface
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   Config
	keys     assetkey.Generator
}

// New creates a new S3 asset store
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Options...), config)
}

// NewWithClient builds the store around an existing client
func NewWithClient(client *s3.Client, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Prefix != "" && !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}

	keys := config.KeyGenerator
	if keys == nil {
		keys = assetkey.NewDefaultGenerator()
	}

	backend := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		config:   config,
		keys:     keys,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.config.Bucket),
	})
	if err == nil {
		return nil
	}
	if !isNotFound(err) && errorCode(err) != "BadRequest" {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(b.config.Bucket),
	}
	if b.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		switch errorCode(err) {
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Store uploads r under a fresh key. The put is conditional on the key not
// existing so an existing object is never overwritten. A taken key is retried
// with the body rewound, so r is spooled to a temp file unless it can seek.
func (b *Backend) Store(ctx context.Context, r io.Reader, extHint string) (string, error) {
	body, start, cleanup, err := rewindable(r)
	if err != nil {
		return "", b.storageError("store", "", err)
	}
	defer cleanup()

	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		ref := b.keys.NewKey(extHint)
		if !assetkey.Validate(ref) {
			return "", fmt.Errorf("%w: generated asset ref %q is not a safe relative path", simpleinventory.ErrValidation, ref)
		}

		if _, err := body.Seek(start, io.SeekStart); err != nil {
			return "", b.storageError("store", ref, fmt.Errorf("failed to rewind photo body: %w", err))
		}

		input := &s3.PutObjectInput{
			Bucket:      aws.String(b.config.Bucket),
			Key:         aws.String(b.objectKey(ref)),
			Body:        seekOnly{body},
			IfNoneMatch: aws.String("*"),
		}
		if contentType := mime.TypeByExtension(path.Ext(ref)); contentType != "" {
			input.ContentType = aws.String(contentType)
		}
		b.applySSE(input)

		_, err := b.uploader.Upload(ctx, input)
		if err == nil {
			return ref, nil
		}
		if errorCode(err) == "PreconditionFailed" {
			continue
		}
		return "", b.storageError("store", ref, fmt.Errorf("failed to upload to S3: %w", err))
	}

	return "", b.storageError("store", "", fmt.Errorf("no free asset key after %d attempts", maxPutAttempts))
}

// seekOnly hides io.ReaderAt so the uploader reads from the current offset
// instead of the start of the underlying file.
type seekOnly struct {
	io.ReadSeeker
}

// rewindable returns a seekable body for r and the offset uploads start at.
// Readers that cannot seek are copied into a temp file removed by cleanup.
func rewindable(r io.Reader) (io.ReadSeeker, int64, func(), error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		start, err := rs.Seek(0, io.SeekCurrent)
		if err == nil {
			return rs, start, func() {}, nil
		}
	}

	tmp, err := os.CreateTemp("", "inventory-s3-*")
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("failed to spool photo body: %w", err)
	}
	return tmp, 0, cleanup, nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

// Resolve heads the object and reports its s3:// location
func (b *Backend) Resolve(ctx context.Context, ref string) (*simpleinventory.Asset, error) {
	if err := validate(ref); err != nil {
		return nil, err
	}

	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.objectKey(ref)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", simpleinventory.ErrAssetNotFound, ref)
		}
		return nil, b.storageError("resolve", ref, fmt.Errorf("failed to get object metadata: %w", err))
	}

	asset := &simpleinventory.Asset{
		Ref:         ref,
		Location:    b.Location(ref),
		Size:        aws.ToInt64(result.ContentLength),
		ContentType: aws.ToString(result.ContentType),
		ModTime:     aws.ToTime(result.LastModified),
	}
	if asset.ContentType == "" {
		asset.ContentType = "application/octet-stream"
	}
	return asset, nil
}

// Open streams the object body
func (b *Backend) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := validate(ref); err != nil {
		return nil, err
	}

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.objectKey(ref)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", simpleinventory.ErrAssetNotFound, ref)
		}
		return nil, b.storageError("open", ref, fmt.Errorf("failed to download from S3: %w", err))
	}
	return result.Body, nil
}

// Release deletes the object. S3 deletes of absent keys already succeed.
func (b *Backend) Release(ctx context.Context, ref string) error {
	if err := validate(ref); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.objectKey(ref)),
	})
	if err != nil && !isNotFound(err) {
		return b.storageError("release", ref, fmt.Errorf("failed to delete from S3: %w", err))
	}
	return nil
}

// ListRefs pages through every object under the prefix
func (b *Backend) ListRefs(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.config.Bucket),
		Prefix: aws.String(b.config.Prefix),
	})

	refs := make([]string, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, b.storageError("list", "", fmt.Errorf("failed to list objects: %w", err))
		}
		for _, object := range page.Contents {
			refs = append(refs, b.refFromKey(aws.ToString(object.Key)))
		}
	}
	sort.Strings(refs)
	return refs, nil
}

// Location returns the s3:// URI of a ref
func (b *Backend) Location(ref string) string {
	return fmt.Sprintf("s3://%s/%s", b.config.Bucket, b.objectKey(ref))
}

func (b *Backend) objectKey(ref string) string {
	return b.config.Prefix + ref
}

func (b *Backend) refFromKey(key string) string {
	return strings.TrimPrefix(key, b.config.Prefix)
}

func (b *Backend) storageError(op, ref string, err error) error {
	return &simpleinventory.StorageError{Backend: backendName, Key: ref, Op: op, Err: err}
}

func validate(ref string) error {
	if !assetkey.Validate(ref) {
		return fmt.Errorf("%w: invalid asset ref %q", simpleinventory.ErrValidation, ref)
	}
	return nil
}

// errorCode extracts the service error code, or "" for transport errors.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	switch errorCode(err) {
	case "NotFound", "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}
