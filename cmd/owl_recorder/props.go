package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/OCAP2/owl/internal/config"
)

func propsCmd(a *app) *cobra.Command {
	var (
		address    string
		initialize bool
		tables     bool
	)

	cmd := &cobra.Command{
		Use:   "props",
		Short: "Open a session and print the server's properties",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetServerConfig()
			if address != "" {
				cfg.Address = address
			}

			session, err := openSession(cfg, a.log)
			if err != nil {
				return err
			}
			defer closeSession(session, cfg.DoneOptions, a.log)

			if initialize {
				if err := initializeSession(session, cfg.InitOptions); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, key := range slices.Sorted(slices.Values(session.Properties())) {
				fmt.Fprintf(out, "%s=%s\n", key, session.PropertyText(key))
			}
			if !tables {
				return nil
			}

			for _, t := range session.TrackerInfos() {
				fmt.Fprintf(out, "tracker id=%d type=%s name=%s markers=%v options=%q\n", t.ID, t.Type, t.Name, t.MarkerIDs, t.Options)
			}
			for _, m := range session.MarkerInfos() {
				fmt.Fprintf(out, "marker id=%d tracker=%d name=%s options=%q\n", m.ID, m.TrackerID, m.Name, m.Options)
			}
			for _, d := range session.DeviceInfos() {
				fmt.Fprintf(out, "device hwid=0x%016x type=%s name=%s status=%q\n", d.HWID, d.Type, d.Name, d.Status)
			}
			for _, f := range session.FilterInfos() {
				fmt.Fprintf(out, "filter name=%s period=%d options=%q\n", f.Name, f.Period, f.Options)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "server address, host[:offset] (default from config)")
	cmd.Flags().BoolVar(&initialize, "init", false, "initialize the session before reading properties")
	cmd.Flags().BoolVar(&tables, "tables", false, "also print the tracker, marker, device and filter tables")

	return cmd
}
