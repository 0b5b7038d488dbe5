package aws_s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/model"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	jsoniter "github.com/json-iterator/go"
)

// BucketClient archives finished leaderboard runs.
type BucketClient interface {
	WriteLeaderboard(context.Context, *model.Leaderboard) string
}

type S3BucketClient struct {
	client *s3.Client
	cfg    *config.S3Config
	log    *slog.Logger
}

func NewS3BucketClient(cfg *config.S3Config, log *slog.Logger) *S3BucketClient {
	log.Info("connecting to s3...")
	ctx := context.Background()

	s3Config, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithBaseEndpoint(cfg.AwsBaseEndpoint))
	if err != nil {
		log.Error("failed to load s3 config.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	// LocalStack only supports path-style addressing.
	var s3client *s3.Client
	if cfg.AwsAccessKey == "test" {
		log.Warn("test configuration for s3")
		s3client = s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	} else {
		s3client = s3.NewFromConfig(s3Config)
	}
	log.Info("connected to s3")

	return &S3BucketClient{
		client: s3client,
		cfg:    cfg,
		log:    log,
	}
}

// WriteLeaderboard stores the run as JSON and returns its object URL, or "" on failure.
func (bc *S3BucketClient) WriteLeaderboard(ctx context.Context, lb *model.Leaderboard) string {
	s3Key := ArchiveKey(bc.cfg.KeyPrefix, lb)
	body, err := jsoniter.Marshal(lb)
	if err != nil {
		bc.log.Error("marshaling failed.", slog.String("err", err.Error()))
		return ""
	}

	contentType := "application/json"
	_, err = bc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bc.cfg.BucketName,
		Key:         &s3Key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		bc.log.Error("failed to save leaderboard to s3.", slog.String("err", err.Error()))
		return ""
	}
	bc.log.Debug("leaderboard saved to s3.", slog.String("key", s3Key))

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bc.cfg.BucketName, bc.cfg.Region, s3Key)
}

// ArchiveKey is <prefix>/<board>/<YYYY-MM-DD>/<runId>.json.
func ArchiveKey(prefix string, lb *model.Leaderboard) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", prefix, lb.Name, lb.GeneratedAt.UTC().Format("2006-01-02"), lb.RunID)
}
