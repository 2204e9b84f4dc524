//go:build !linux

package intercept

import (
	"context"
	"runtime"

	"github.com/getlantern/errors"
)

func Run(ctx context.Context, opts *Options) error {
	return errors.New("intercept not supported on %s", runtime.GOOS)
}
