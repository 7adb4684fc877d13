package audit

import (
	"context"
	"errors"

	"github.com/tkingovr/spawnguard/api"
)

// ErrReadOnly is returned when writing through a DirReader.
var ErrReadOnly = errors.New("audit store is read-only")

// DirReader answers queries from the JSONL files in a directory. The files
// are read again on every call, so launches recorded by other spawnguard
// processes show up.
type DirReader struct {
	dir string
}

var _ Store = (*DirReader)(nil)

func NewDirReader(dir string) *DirReader {
	return &DirReader{dir: dir}
}

func (r *DirReader) Write(context.Context, *api.AuditRecord) error {
	return ErrReadOnly
}

func (r *DirReader) Query(ctx context.Context, filter api.QueryFilter) ([]*api.AuditRecord, error) {
	s, err := OpenJSONLStore(r.dir)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Query(ctx, filter)
}

func (r *DirReader) Stats(ctx context.Context) (*api.AuditStats, error) {
	s, err := OpenJSONLStore(r.dir)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Stats(ctx)
}

func (r *DirReader) Close() error { return nil }
