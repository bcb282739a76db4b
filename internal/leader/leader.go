// Package leader serializes one-off startup work, such as schema
// migrations, across replicas through a Kubernetes Lease.
package leader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/jensholdgaard/pregao/internal/config"
)

// identity returns a unique identity for this instance.
// It uses the POD_NAME env var if set, otherwise the hostname.
func identity() string {
	if name := os.Getenv("POD_NAME"); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// ClientFactory creates a Kubernetes clientset.
// Extracted as a variable for testing.
var ClientFactory = func() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("building in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return client, nil
}

// RunExclusive waits until this instance holds the lease, runs fn once and
// releases the lease. It returns fn's error, or ctx's error when ctx ends
// before the lease is acquired. With the lease disabled fn runs directly.
func RunExclusive(ctx context.Context, cfg config.LeaseConfig, logger *slog.Logger, fn func(ctx context.Context) error) error {
	if !cfg.Enabled {
		return fn(ctx)
	}

	id := cfg.Identity
	if id == "" {
		id = identity()
	}
	logger.InfoContext(ctx, "waiting for lease",
		slog.String("identity", id),
		slog.String("lease", cfg.LeaseName),
		slog.String("namespace", cfg.LeaseNamespace),
	)

	client, err := ClientFactory()
	if err != nil {
		return fmt.Errorf("lease client: %w", err)
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      cfg.LeaseName,
			Namespace: cfg.LeaseNamespace,
		},
		Client: client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: id,
		},
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var started atomic.Bool
	result := make(chan error, 1)
	le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   cfg.LeaseDuration,
		RenewDeadline:   cfg.RenewDeadline,
		RetryPeriod:     cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            cfg.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				logger.InfoContext(ctx, "acquired lease", slog.String("identity", id))
				started.Store(true)
				result <- fn(ctx)
				cancel()
			},
			OnStoppedLeading: func() {
				logger.Info("released lease", slog.String("identity", id))
			},
			OnNewLeader: func(newID string) {
				if newID == id {
					return
				}
				logger.Info("lease held elsewhere", slog.String("holder", newID))
			},
		},
	})
	if err != nil {
		return fmt.Errorf("configuring lease: %w", err)
	}

	le.Run(runCtx)

	if !started.Load() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for lease: %w", err)
		}
		return errors.New("lease lost before work ran")
	}
	// OnStartedLeading runs on its own goroutine; wait for fn to finish.
	return <-result
}
