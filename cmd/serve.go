package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/rtzll/youpac/internal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with live project subscriptions",
	Long: `Run the HTTP API used by the canvas frontend.

Endpoints live under /api. Clients subscribe to project changes on
/api/projects/{id}/subscribe (websocket) and may send canvas snapshots on the
same connection to have them autosaved. Prometheus metrics are served on
/metrics.

Requests act as the configured user_id unless an X-User-ID header is sent.
Only one server may run per data directory.`,
	Example: `  youpac serve
  youpac serve --addr 0.0.0.0:8080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			config.ListenAddr = addr
		}
		if model, _ := cmd.Flags().GetString("model"); model != "" {
			if err := internal.ValidateModel(model); err != nil {
				return err
			}
			config.ChatModel = model
		}

		lock := flock.New(filepath.Join(config.DataDir, "serve.lock"))
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another youpac server is already running for %s", config.DataDir)
		}
		defer lock.Unlock()

		metrics := internal.NewMetrics()
		app, err := openApp(cmd, internal.WithMetrics(metrics))
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Printf("Listening on http://%s\n", config.ListenAddr)
		return internal.NewServer(app).ListenAndServe(cmd.Context(), config.ListenAddr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config listen_addr)")
	internal.AddOpenAIFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
