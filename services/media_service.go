package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/swiftcab/chat-service/config"
	apiError "github.com/swiftcab/chat-service/errors"
	"github.com/swiftcab/chat-service/models"
)

// attachment MIME types accepted by the gateway
var allowedAttachmentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// MediaService interface
type MediaService interface {
	UploadAttachment(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.Attachment, error)
}

// mediaService struct
type mediaService struct {
	Config *config.Config
	client *s3.Client
}

// NewMediaService instantiates a mediaService backed by S3.
func NewMediaService(conf *config.Config) (MediaService, error) {
	client, err := createS3Client(conf)
	if err != nil {
		return nil, err
	}
	return &mediaService{Config: conf, client: client}, nil
}

func createS3Client(conf *config.Config) (*s3.Client, error) {
	region := conf.AwsRegion
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			conf.AwsAccessKeyID,
			conf.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config, %v", err)
	}

	return s3.NewFromConfig(cfg), nil
}

// UploadAttachment validates and stores one attachment. A storage failure
// aborts the whole send: the caller gets an error and persists nothing.
func (s *mediaService) UploadAttachment(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.Attachment, error) {
	if header.Size > s.Config.AttachmentMaxBytes {
		return nil, apiError.ErrAttachmentTooLarge
	}
	contentType := header.Header.Get("Content-Type")
	if !allowedAttachmentTypes[contentType] {
		return nil, apiError.ErrInvalidMessageType
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, apiError.ErrStorage
	}

	key := fmt.Sprintf("chat-attachments/%s%s", uuid.New().String(), filepath.Ext(header.Filename))
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Config.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return nil, apiError.ErrStorage
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.Config.S3Bucket, s.Config.AwsRegion, key)
	return &models.Attachment{
		URL:         url,
		ContentType: contentType,
		Size:        header.Size,
	}, nil
}
