package staging

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/stagingmanager/internal/models"
)

// deleteBatchSize is the DeleteObjects limit.
const deleteBatchSize = 1000

var loadDefaultAWSConfig = config.LoadDefaultConfig

// s3API is the part of *s3.Client used by S3Areas.
type s3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Config selects the bucket and the S3-compatible endpoint.
type S3Config struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// S3Areas keeps every staging area under the "{uuid}/" prefix of one bucket.
// An area exists while at least one object (the marker written on create)
// carries the prefix.
type S3Areas struct {
	client s3API
	bucket string
}

func NewS3Areas(ctx context.Context, c S3Config) (*S3Areas, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Areas(client, c.Bucket), nil
}

func newS3Areas(client s3API, bucket string) *S3Areas {
	return &S3Areas{client: client, bucket: bucket}
}

func prefix(areaUUID string) string {
	return areaUUID + "/"
}

func (a *S3Areas) location(areaUUID string) string {
	return "s3://" + a.bucket + "/" + prefix(areaUUID)
}

func (a *S3Areas) HasStagingArea(ctx context.Context, areaUUID string) (bool, error) {
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(prefix(areaUUID)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("list %s: %w", a.location(areaUUID), err)
	}
	return aws.ToInt32(out.KeyCount) > 0 || len(out.Contents) > 0, nil
}

// CreateStagingArea writes the zero-byte marker object. Writing it again for
// an existing area is harmless.
func (a *S3Areas) CreateStagingArea(ctx context.Context, areaUUID string) (models.StagingCredentials, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(prefix(areaUUID)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", a.location(areaUUID), err)
	}

	loc := a.location(areaUUID)
	return models.StagingCredentials{
		string(models.RefURI): loc,
		string(models.RefURN): loc,
		"bucket":              a.bucket,
		"prefix":              prefix(areaUUID),
	}, nil
}

// DeleteStagingArea removes every object under the area prefix.
func (a *S3Areas) DeleteStagingArea(ctx context.Context, areaUUID string) error {
	p := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(prefix(areaUUID)),
		MaxKeys: aws.Int32(deleteBatchSize),
	})

	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", a.location(areaUUID), err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}

		out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete %s: %w", a.location(areaUUID), err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("delete %s: %d objects failed, first %s: %s",
				a.location(areaUUID), len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}
