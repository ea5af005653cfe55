// Package jobstore persists analysis jobs as whole documents keyed by id.
//
// Backends offer get/set by id plus a full key enumeration. There are no
// secondary indexes: listing by org or time is the caller's full scan.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/analyzr/pkg/models"
)

var ErrNotFound = errors.New("job not found")

// Store reads and writes job documents. Set overwrites unconditionally.
type Store interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Set(ctx context.Context, id string, job *models.Job) error
}

// KeyLister enumerates every job id held by a backend.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Backend is a Store that can also enumerate its keys.
type Backend interface {
	Store
	KeyLister
	Ping(ctx context.Context) error
	Close() error
}

func encode(job *models.Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*models.Job, error) {
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
