package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"zapdesk/internal/config"
	"zapdesk/internal/daemon"
	"zapdesk/internal/profile"
)

func main() {
	var profileFlag, listenFlag string

	root := &cobra.Command{
		Use:          "zapdeskd",
		Short:        "zapdesk cache daemon",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			name := profile.Resolve(profileFlag)
			if err := profile.ValidateName(name); err != nil {
				return err
			}
			cfg, err := config.Load(profile.ConfigPath())
			if err != nil {
				if !os.IsNotExist(err) {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = &config.Config{}
				cfg.ApplyDefaults()
			}

			app := fx.New(
				daemon.Module(daemon.Params{
					Profile: name,
					Config:  cfg,
					Listen:  listenFlag,
				}),
			)
			app.Run()
			return nil
		},
	}
	root.Flags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	root.Flags().StringVar(&listenFlag, "listen", "", "listen address (overrides config)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
