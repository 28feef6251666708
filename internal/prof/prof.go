// Package prof starts continuous profiling with Pyroscope.
package prof

import (
	"context"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/linnemanlabs-folio/internal/log"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

type Options struct {
	Enabled           bool
	AppName           string
	ServerAddress     string
	BasicAuthUser     string
	BasicAuthPassword string
	TenantID          string
	Tags              map[string]string

	ProfileMutexFraction int
	BlockProfileRate     int
}

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// Start begins profiling and returns an idempotent stop func. The stop func
// is never nil, even on error.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return func() {}, nil
	}

	if opts.ServerAddress == "" {
		err := xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
		L.Error(ctx, err, "pyroscope options")
		return func() {}, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   opts.AppName,
		ServerAddress:     opts.ServerAddress,
		BasicAuthUser:     opts.BasicAuthUser,
		BasicAuthPassword: opts.BasicAuthPassword,
		TenantID:          opts.TenantID,
		Tags:              opts.Tags,
		ProfileTypes:      profileTypes,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
		return func() {}, err
	}

	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			profiler.Stop()
			L.Info(context.Background(), "pyroscope stopped", "app_name", opts.AppName)
		})
	}, nil
}
