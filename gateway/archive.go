// Copyright 2025 API-Sec Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/vikasswaminh/api-sec/shared/logger"
)

// objectPutter is the slice of the S3 API the archiver needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver batches audit events into JSONL objects on an S3-compatible
// bucket (AWS S3, MinIO, Cloudflare R2). It is a secondary, best-effort
// sink behind the Postgres audit log: a failed upload is logged and the
// batch dropped.
type Archiver struct {
	client objectPutter
	bucket string
	queue  chan AuditEvent
	log    *logger.Logger

	batchSize     int
	flushInterval time.Duration

	wg sync.WaitGroup
}

// NewArchiver connects to the configured bucket and starts the batcher.
func NewArchiver(ctx context.Context, cfg *Config, log *logger.Logger) (*Archiver, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveRegion),
	}

	// Explicit credentials when provided, default chain otherwise
	if cfg.ArchiveAccessKey != "" && cfg.ArchiveSecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, "")
		optFns = append(optFns, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := []func(*s3.Options){}
	if cfg.ArchiveEndpoint != "" {
		// Custom endpoints (R2, MinIO) need path-style addressing
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.ArchiveEndpoint)
			o.UsePathStyle = true
		})
	}

	return newArchiverWithClient(s3.NewFromConfig(awsCfg, s3Options...), cfg.ArchiveBucket, log), nil
}

// newArchiverWithClient wires an archiver around any objectPutter (tests
// inject a fake).
func newArchiverWithClient(client objectPutter, bucket string, log *logger.Logger) *Archiver {
	a := &Archiver{
		client:        client,
		bucket:        bucket,
		queue:         make(chan AuditEvent, 1000),
		log:           log,
		batchSize:     100,
		flushInterval: 30 * time.Second,
	}

	a.wg.Add(1)
	go a.run()

	return a
}

// Enqueue adds an event to the next batch, dropping it when the queue is
// full.
func (a *Archiver) Enqueue(ev AuditEvent) {
	select {
	case a.queue <- ev:
	default:
	}
}

// run batches events and flushes on size or interval.
func (a *Archiver) run() {
	defer a.wg.Done()

	batch := make([]AuditEvent, 0, a.batchSize)
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-a.queue:
			if !ok {
				if len(batch) > 0 {
					a.flush(batch)
				}
				return
			}
			batch = append(batch, ev)
			if len(batch) >= a.batchSize {
				a.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush uploads one JSONL object per batch, keyed by date for the
// retention job to sweep whole prefixes.
func (a *Archiver) flush(batch []AuditEvent) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range batch {
		if err := enc.Encode(ev); err != nil {
			a.log.WarnWithError("", "", "failed to encode audit event for archive", err, nil)
		}
	}

	key := fmt.Sprintf("audit/%s/%s.jsonl", time.Now().UTC().Format("2006/01/02"), uuid.New().String())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		a.log.WarnWithError("", "", "failed to archive audit batch", err, map[string]interface{}{
			"bucket": a.bucket,
			"events": len(batch),
		})
	}
}

// Close stops the batcher after flushing what is queued.
func (a *Archiver) Close() {
	close(a.queue)
	a.wg.Wait()
}
