package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/polycross/relaybot/internal/domain"
)

// Archiver implements domain.Archiver on an S3-compatible bucket. Resolution
// records are written one object per market under
// <prefix>/resolutions/YYYY-MM-DD/<marketID>.json so a day's settlements can
// be listed with a single prefix scan.
type Archiver struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewArchiver creates an Archiver writing under the given key prefix.
func NewArchiver(c *Client, prefix string) *Archiver {
	return &Archiver{
		client:   c.S3(),
		uploader: manager.NewUploader(c.S3()),
		bucket:   c.Bucket(),
		prefix:   prefix,
	}
}

// ArchiveResolution uploads one settled-market record.
func (a *Archiver) ArchiveResolution(ctx context.Context, res domain.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("s3blob: encode resolution %s: %w", res.MarketID, err)
	}

	key := fmt.Sprintf("%s/resolutions/%s/%s.json",
		a.prefix, res.ResolvedAt.UTC().Format("2006-01-02"), res.MarketID)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put resolution %s: %w", key, err)
	}
	return nil
}

// ArchiveOrderBook uploads a JSONL snapshot of the order book. Snapshots can
// grow past single-request comfort, so this path uses the multipart upload
// manager.
func (a *Archiver) ArchiveOrderBook(ctx context.Context, orders []domain.Order) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range orders {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("s3blob: encode order %s: %w", o.Key(), err)
		}
	}

	key := fmt.Sprintf("%s/orderbook/%s.jsonl",
		a.prefix, time.Now().UTC().Format("2006-01-02T15-04-05"))

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        &buf,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload order book snapshot %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
