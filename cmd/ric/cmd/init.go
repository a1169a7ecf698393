package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/havenops/ric/configs"
	"github.com/havenops/ric/internal/config"
)

func newInitCmd() *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated config file",
		Long: `Init writes the annotated configuration template. Without --path it
targets the user config location (~/.config/ric/config.yaml), which the
server reads automatically on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.GetUserConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return exitf(ExitConfigError,
					"%s already exists (pass --force to overwrite)", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return exitf(ExitConfigError, "create config dir: %v", err)
			}
			if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
				return exitf(ExitConfigError, "write config: %v", err)
			}
			statusOK(cmd.ErrOrStderr(), "wrote %s", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "destination path (default: user config location)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
