package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/meshboard/meshboard/common"
	"github.com/meshboard/meshboard/server"
	servercache "github.com/meshboard/meshboard/server/cache"
	"github.com/meshboard/meshboard/server/metrics"
	"github.com/meshboard/meshboard/server/resource"
	"github.com/meshboard/meshboard/util/cli"
	"github.com/meshboard/meshboard/util/env"
	logutil "github.com/meshboard/meshboard/util/log"
)

const cliName = "meshboard-server"

// NewCommand returns a new instance of the meshboard-server command
func NewCommand() *cobra.Command {
	var (
		listenPort   int
		metricsPort  int
		clusterName  string
		logFormat    string
		logLevel     string
		clientConfig clientcmd.ClientConfig
		cacheSrc     func() (*servercache.Cache, error)
	)
	command := &cobra.Command{
		Use:   cliName,
		Short: "Run the meshboard API server",
		RunE: func(c *cobra.Command, args []string) error {
			logutil.SetLogFormat(logFormat)
			logutil.SetLogLevel(logLevel)

			cache, err := cacheSrc()
			if err != nil {
				return fmt.Errorf("failed to initialize query cache: %w", err)
			}

			restConfig, err := clientConfig.ClientConfig()
			if err != nil {
				return fmt.Errorf("failed to load kube config: %w", err)
			}
			kubeClient, err := kubernetes.NewForConfig(restConfig)
			if err != nil {
				return err
			}
			dynamicClient, err := dynamic.NewForConfig(restConfig)
			if err != nil {
				return err
			}
			registry := resource.NewRegistry()
			registry.Add(clusterName, &resource.ClusterClients{Kube: kubeClient, Dynamic: dynamicClient})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metricsServer := metrics.NewMetricsServer("", metricsPort, cache.Store())
			cache.Store().SetMetricsRegistry(metricsServer)
			go func() {
				log.Infof("meshboard metrics listening on %s", metricsServer.Addr)
				if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("Metrics server failed: %v", err)
				}
			}()
			go func() {
				<-ctx.Done()
				if err := metricsServer.Close(); err != nil {
					log.Warnf("Failed to close metrics server: %v", err)
				}
			}()

			cache.StartMonitor(ctx)

			return server.NewServer(listenPort, cache, registry).Run(ctx)
		},
	}
	command.Flags().IntVar(&listenPort, "port", common.DefaultListenPort, "Listen on given port")
	command.Flags().IntVar(&metricsPort, "metrics-port", common.DefaultMetricsPort, "Start metrics server on given port")
	command.Flags().StringVar(&clusterName, "cluster-name", "local", "Name under which the target cluster's queries are cached")
	command.Flags().StringVar(&logFormat, "logformat", env.StringFromEnv(common.EnvLogFormat, "text"), "Set the logging format. One of: text|json")
	command.Flags().StringVar(&logLevel, "loglevel", env.StringFromEnv(common.EnvLogLevel, "info"), "Set the logging level. One of: debug|info|warn|error")
	clientConfig = cli.AddKubectlFlagsToCmd(command)
	cacheSrc = servercache.AddCacheFlagsToCmd(command)
	return command
}
