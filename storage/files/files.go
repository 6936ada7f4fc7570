package files

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
)

// New returns the core.FileStorage selected by conf.Storage.Backend.
func New(ctx context.Context, conf *core.Config) (core.FileStorage, error) {
	sc := conf.Storage
	switch sc.Backend {
	case "", "disk":
		return NewDiskStorage(sc.Dir)
	case "b2":
		return NewB2Storage(ctx, sc.B2KeyID, sc.B2AppKey, sc.B2Bucket)
	}
	return nil, errors.Errorf("unsupported storage backend %q", sc.Backend)
}
