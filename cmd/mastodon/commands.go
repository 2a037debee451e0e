package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	gomastodon "github.com/goliatone/go-mastodon"
	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/providers/mastodon"
	"github.com/spf13/cobra"
)

const (
	envBaseURL     = "MASTODON_BASE_URL"
	envAccessToken = "MASTODON_ACCESS_TOKEN"
	envConfig      = "MASTODON_CONFIG"
)

type globalOptions struct {
	baseURL     string
	accessToken string
	configPath  string
	debug       bool
}

type clientFactory func(opts globalOptions) (*mastodon.Client, error)

func defaultClientFactory(opts globalOptions) (*mastodon.Client, error) {
	var serviceOpts []gomastodon.Option
	if opts.configPath != "" {
		serviceOpts = append(serviceOpts, gomastodon.WithConfigProvider(
			core.NewCfgxConfigProvider(core.YAMLFileConfigLoader{Path: opts.configPath, Section: "mastodon"}),
		))
	}
	if !opts.debug {
		serviceOpts = append(serviceOpts, gomastodon.WithLogger(glog.Nop()))
	}
	return gomastodon.NewClient(gomastodon.DefaultConfig(), serviceOpts)
}

func newRootCommand(out io.Writer, newClient clientFactory) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "mastodon",
		Short:         "Verify Mastodon access tokens and sync timeline read markers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			opts.applyEnv()
			return nil
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", "", "instance base URL (env "+envBaseURL+")")
	flags.StringVar(&opts.accessToken, "access-token", "", "access token (env "+envAccessToken+")")
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (env "+envConfig+")")
	flags.BoolVar(&opts.debug, "debug", false, "log runtime operations")

	root.AddCommand(newVerifyCommand(opts, out, newClient))
	root.AddCommand(newMarkersCommand(opts, out, newClient))
	return root
}

func (o *globalOptions) applyEnv() {
	if strings.TrimSpace(o.baseURL) == "" {
		o.baseURL = os.Getenv(envBaseURL)
	}
	if strings.TrimSpace(o.accessToken) == "" {
		o.accessToken = os.Getenv(envAccessToken)
	}
	if strings.TrimSpace(o.configPath) == "" {
		o.configPath = os.Getenv(envConfig)
	}
}

func (o *globalOptions) connection() (mastodon.ConnectionRef, error) {
	cred := mastodon.TokenCredential{BaseURL: o.baseURL, AccessToken: o.accessToken}.WithDefaults()
	if err := cred.Validate(); err != nil {
		return mastodon.ConnectionRef{}, err
	}
	return mastodon.ConnectionRef{Credential: &cred}, nil
}

func newVerifyCommand(opts *globalOptions, out io.Writer, newClient clientFactory) *cobra.Command {
	var app bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the access token against " + mastodon.VerifyCredentialsPath,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := opts.connection()
			if err != nil {
				return err
			}
			client, err := newClient(*opts)
			if err != nil {
				return err
			}
			if app {
				application, err := client.VerifyAppCredentials(cmd.Context(), ref)
				if err != nil {
					return describeVerifyError(err)
				}
				return writeJSON(out, application)
			}
			account, err := client.VerifyCredentials(cmd.Context(), ref)
			if err != nil {
				return describeVerifyError(err)
			}
			return writeJSON(out, account)
		},
	}
	cmd.Flags().BoolVar(&app, "app", false, "verify an application token instead of a user token")
	return cmd
}

func newMarkersCommand(opts *globalOptions, out io.Writer, newClient clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markers",
		Short: "Read or save home and notifications read markers",
	}
	cmd.AddCommand(newMarkersGetCommand(opts, out, newClient))
	cmd.AddCommand(newMarkersSaveCommand(opts, out, newClient))
	return cmd
}

func newMarkersGetCommand(opts *globalOptions, out io.Writer, newClient clientFactory) *cobra.Command {
	var timelines []string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch markers for the selected timelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed := make([]mastodon.Timeline, 0, len(timelines))
			for _, value := range timelines {
				timeline, err := mastodon.ParseTimeline(value)
				if err != nil {
					return err
				}
				parsed = append(parsed, timeline)
			}
			ref, err := opts.connection()
			if err != nil {
				return err
			}
			client, err := newClient(*opts)
			if err != nil {
				return err
			}
			res, err := client.GetMarkers(cmd.Context(), ref, parsed...)
			if err != nil {
				return err
			}
			return writeJSON(out, res)
		},
	}
	cmd.Flags().StringSliceVar(&timelines, "timeline", nil, "timeline to read: home or notifications (repeatable, default both)")
	return cmd
}

func newMarkersSaveCommand(opts *globalOptions, out io.Writer, newClient clientFactory) *cobra.Command {
	var home, notifications string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save last-read ids for home and/or notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			update := mastodon.NewMarkerUpdateRequest(home, notifications)
			if update.IsEmpty() {
				return fmt.Errorf("at least one of --home or --notifications is required")
			}
			ref, err := opts.connection()
			if err != nil {
				return err
			}
			client, err := newClient(*opts)
			if err != nil {
				return err
			}
			res, err := client.SaveMarkers(cmd.Context(), ref, update)
			if err != nil {
				return err
			}
			return writeJSON(out, res)
		},
	}
	cmd.Flags().StringVar(&home, "home", "", "last read status id for the home timeline")
	cmd.Flags().StringVar(&notifications, "notifications", "", "last read notification id")
	return cmd
}

func describeVerifyError(err error) error {
	switch {
	case mastodon.IsInvalidToken(err):
		return fmt.Errorf("access token rejected by instance: %w", err)
	case mastodon.IsInstanceUnreachable(err):
		return fmt.Errorf("instance unreachable: %w", err)
	default:
		return err
	}
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
