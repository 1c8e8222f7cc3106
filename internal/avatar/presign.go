// Package avatar はプロフィール画像をS3互換ストレージへ直接アップロードするための
// 署名付きURLを発行する。
package avatar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/nao1215/campusqa/internal/config"
)

// UploadTTL は署名付きURLの有効期間。
const UploadTTL = 15 * time.Minute

// Upload は発行したアップロード先。
type Upload struct {
	// Key はオブジェクトキー。アップロード後にプロフィール画像として保存する。
	Key string `json:"key"`
	// URL はPUTで使用する署名付きURL。
	URL string `json:"uploadUrl"`
	// ExpiresAt はURLの有効期限。
	ExpiresAt time.Time `json:"expiresAt"`
}

// Presigner はアップロード用の署名付きURLを発行する。
type Presigner interface {
	PresignUpload(ctx context.Context, key string) (*Upload, error)
}

// ObjectKey はユーザーのプロフィール画像用のオブジェクトキーを生成する。
func ObjectKey(userID string) string {
	return fmt.Sprintf("avatars/%s/%s", userID, uuid.NewString())
}

// S3Presigner はS3の署名付きPUT URLを発行する。
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
	now    func() time.Time
}

var _ Presigner = (*S3Presigner)(nil)

// NewS3Presigner はS3Presignerを生成する。
// Endpointが設定されている場合はパス形式のアドレスでアクセスする（MinIO等）。
func NewS3Presigner(ctx context.Context, cfg config.S3Config) (*S3Presigner, error) {
	if !cfg.Enabled() {
		return nil, errors.New("S3のバケットが設定されていません")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Presigner{
		client: s3.NewPresignClient(client),
		bucket: cfg.Bucket,
		now:    time.Now,
	}, nil
}

// PresignUpload はkeyへのPUTに使用する署名付きURLを発行する。
func (p *S3Presigner) PresignUpload(ctx context.Context, key string) (*Upload, error) {
	issuedAt := p.now().UTC()
	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(UploadTTL))
	if err != nil {
		return nil, fmt.Errorf("署名付きURLの発行に失敗: %w", err)
	}
	return &Upload{
		Key:       key,
		URL:       req.URL,
		ExpiresAt: issuedAt.Add(UploadTTL),
	}, nil
}
