// Package backup uploads a JSON snapshot of the local store and the pending
// queue to S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/catchkeeper/internal/client/auth"
	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/cryptox"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
)

var ErrNotConfigured = errors.New("backup bucket not configured")

// objectPutter is the part of the S3 client used here.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Settings locate the destination bucket. Empty credentials fall back to
// the default AWS credential chain.
type Settings struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string

	// Passphrase, when set, seals the snapshot with cryptox before upload.
	Passphrase string
}

// Snapshot is the uploaded document.
type Snapshot struct {
	ExportedAt time.Time          `json:"exportedAt"`
	Owner      string             `json:"owner"`
	Records    []models.Catch     `json:"records"`
	Pending    []models.Operation `json:"pending"`
}

type RecordSource interface {
	Snapshot(ctx context.Context) ([]models.Catch, error)
}

type QueueSource interface {
	Drain(ctx context.Context, n int) ([]models.Operation, error)
}

type Service struct {
	settings Settings
	records  RecordSource
	queue    QueueSource
	identity auth.Identity
	clock    timex.Clock
	logger   logging.Logger
}

func NewService(settings Settings, records RecordSource, queue QueueSource, identity auth.Identity, clock timex.Clock, logger logging.Logger) *Service {
	return &Service{
		settings: settings,
		records:  records,
		queue:    queue,
		identity: identity,
		clock:    clock,
		logger:   logger.With("module", "backup"),
	}
}

// EncryptedSuffix is appended to the object key of a sealed snapshot.
const EncryptedSuffix = ".enc"

// ObjectKey is where a snapshot taken at ts by owner is stored.
func ObjectKey(owner string, ts time.Time) string {
	return fmt.Sprintf("backups/%s/%s.json", owner, ts.UTC().Format(time.RFC3339))
}

func (s *Service) client(ctx context.Context) (objectPutter, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.settings.Region)}
	if s.settings.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.settings.AccessKey, s.settings.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.settings.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.settings.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// Run uploads one snapshot and returns its object key. A signed-out device
// files its backups under "local".
func (s *Service) Run(ctx context.Context) (string, error) {
	if s.settings.Bucket == "" {
		return "", ErrNotConfigured
	}

	owner, ok := s.identity.CurrentUser(ctx)
	if !ok {
		owner = "local"
	}
	records, err := s.records.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("read records: %w", err)
	}
	pending, err := s.queue.Drain(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("read queue: %w", err)
	}

	snap := Snapshot{ExportedAt: s.clock.Now().UTC(), Owner: owner, Records: records, Pending: pending}
	key := ObjectKey(owner, snap.ExportedAt)
	var doc any = snap
	if s.settings.Passphrase != "" {
		sealed, err := cryptox.Seal(snap, []byte(s.settings.Passphrase))
		if err != nil {
			return "", fmt.Errorf("encrypt snapshot: %w", err)
		}
		doc, key = sealed, key+EncryptedSuffix
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	client, err := s.client(ctx)
	if err != nil {
		return "", fmt.Errorf("aws config: %w", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.settings.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	s.logger.Info(ctx, "backup uploaded", "bucket", s.settings.Bucket, "key", key, "records", len(records), "pending", len(pending), "encrypted", s.settings.Passphrase != "")
	return key, nil
}
