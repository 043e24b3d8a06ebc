// Copyright 2025 API-Sec Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func newFakePutter() *fakePutter {
	return &fakePutter{objects: map[string]string{}}
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) snapshot() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.objects))
	for k, v := range f.objects {
		out[k] = v
	}
	return out
}

func TestArchiver_FlushOnClose(t *testing.T) {
	putter := newFakePutter()
	a := newArchiverWithClient(putter, "audit-archive", testLogger())

	a.Enqueue(AuditEvent{ID: "ev-1", UserID: "user-123", Action: ActionBlocked})
	a.Enqueue(AuditEvent{ID: "ev-2", UserID: "user-123", Action: ActionAllowed})
	a.Enqueue(AuditEvent{ID: "ev-3", UserID: "user-456", Action: ActionFlagged})
	a.Close()

	objects := putter.snapshot()
	require.Len(t, objects, 1)

	for key, body := range objects {
		assert.True(t, strings.HasPrefix(key, "audit/"), "key %q", key)
		assert.True(t, strings.HasSuffix(key, ".jsonl"), "key %q", key)

		lines := strings.Split(strings.TrimSpace(body), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], `"id":"ev-1"`)
		assert.Contains(t, lines[2], `"id":"ev-3"`)
	}
}

func TestArchiver_FlushOnBatchSize(t *testing.T) {
	putter := newFakePutter()
	a := newArchiverWithClient(putter, "audit-archive", testLogger())

	for i := 0; i < 150; i++ {
		a.Enqueue(AuditEvent{ID: "ev", Action: ActionAllowed})
	}
	a.Close()

	// Two objects: one full batch plus the remainder at close.
	assert.Len(t, putter.snapshot(), 2)
}

func TestArchiver_UploadFailureDropsBatch(t *testing.T) {
	putter := newFakePutter()
	putter.err = errors.New("access denied")
	a := newArchiverWithClient(putter, "audit-archive", testLogger())

	a.Enqueue(AuditEvent{ID: "ev-1"})
	// Close must not hang or panic on an upload error.
	a.Close()

	assert.Empty(t, putter.snapshot())
}
