package leader_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/k3s"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/jensholdgaard/pregao/internal/config"
	"github.com/jensholdgaard/pregao/internal/leader"
)

// TestRunExclusive_K3s runs two contenders against a real Lease and checks
// their work never overlaps. Skipped in short mode.
func TestRunExclusive_K3s(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping k3s integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := k3s.Run(ctx, "rancher/k3s:v1.31.6-k3s1")
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting k3s container: %v", err)
	}

	kubeConfigYaml, err := ctr.GetKubeConfig(ctx)
	if err != nil {
		t.Fatalf("getting kubeconfig: %v", err)
	}
	restCfg, err := clientcmd.RESTConfigFromKubeConfig(kubeConfigYaml)
	if err != nil {
		t.Fatalf("building rest config: %v", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		t.Fatalf("creating kubernetes client: %v", err)
	}

	origFactory := leader.ClientFactory
	leader.ClientFactory = func() (kubernetes.Interface, error) {
		return clientset, nil
	}
	t.Cleanup(func() { leader.ClientFactory = origFactory })

	cfg := config.LeaseConfig{
		Enabled:        true,
		LeaseName:      "pregaod-test-migrations",
		LeaseNamespace: "default",
		LeaseDuration:  5 * time.Second,
		RenewDeadline:  3 * time.Second,
		RetryPeriod:    1 * time.Second,
	}

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		runs    atomic.Int32
	)
	work := func(context.Context) error {
		if inside.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(2 * time.Second)
		inside.Add(-1)
		runs.Add(1)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range []string{"replica-a", "replica-b"} {
		c := cfg
		c.Identity = id
		g.Go(func() error {
			return leader.RunExclusive(gctx, c, slog.Default(), work)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("RunExclusive() error = %v", err)
	}
	if got := runs.Load(); got != 2 {
		t.Errorf("work ran %d times, want 2", got)
	}
	if overlap.Load() {
		t.Error("work ran concurrently on two lease holders")
	}
}
