package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

func newProfilesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List actor profiles and the configured actor mix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sc := cfg.LoadScenario()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROFILE\tSHARE\tTHINK TIME\tENDPOINT\tMETHOD\tPATH\tWEIGHT\tAUTH")
			for _, name := range loadtest.ProfileNames(sc.Profiles) {
				p := sc.Profiles[name]
				for i, ep := range p.Endpoints {
					profile, share, think := "", "", ""
					if i == 0 {
						profile = name
						share = fmt.Sprintf("%.2f", sc.ActorMix[name])
						think = p.ThinkTime.String()
					}
					auth := string(ep.Auth)
					if auth == "" {
						auth = string(loadtest.AuthNone)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
						profile, share, think, ep.Name, ep.Method, ep.Path, ep.Weight, auth)
				}
			}
			return w.Flush()
		},
	}
}
