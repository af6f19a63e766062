package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/itchan-dev/starter/frontend/internal/fetcher"
	"github.com/spf13/cobra"
)

type getFlags struct {
	method   string
	data     string
	params   []string
	headers  []string
	mock     bool
	fixture  string
	delay    time.Duration
	timeout  time.Duration
	noDialog bool
}

func newGetCmd(global *globalFlags) *cobra.Command {
	flags := &getFlags{}
	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Dispatch one request and print the data field of its envelope",
		Example: `  fetch get v1/boards --fixture boards/list.json
  fetch get v1/admin/boards -X POST -d '{"name":"Random","short_name":"b"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return wrapErr(cmd, runGet(cmd, global, flags, args[0]))
		},
	}
	cmd.Flags().StringVarP(&flags.method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&flags.data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&flags.params, "param", "p", nil, "query parameter key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&flags.headers, "header", "H", nil, "request header 'Key: value' (repeatable)")
	cmd.Flags().BoolVar(&flags.mock, "mock", true, "serve the fixture in development mode")
	cmd.Flags().StringVar(&flags.fixture, "fixture", "", "fixture path under the mock root, e.g. boards/list.json")
	cmd.Flags().DurationVar(&flags.delay, "delay", 0, "simulated latency before dispatch")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-request timeout")
	cmd.Flags().BoolVar(&flags.noDialog, "no-dialog", false, "do not print the error dialog")
	return cmd
}

func (f *getFlags) requestOptions() ([]fetcher.RequestOption, error) {
	opts := []fetcher.RequestOption{
		fetcher.WithMethod(strings.ToUpper(f.method)),
		fetcher.WithMock(f.mock),
		fetcher.WithJSONMockup(f.fixture),
		fetcher.WithDelay(f.delay),
		fetcher.WithTimeout(f.timeout),
		fetcher.WithErrorDialog(!f.noDialog),
	}
	for _, p := range f.params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", p)
		}
		opts = append(opts, fetcher.WithParam(key, value))
	}
	for _, h := range f.headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --header %q, want 'Key: value'", h)
		}
		opts = append(opts, fetcher.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}
	if f.data != "" {
		if !json.Valid([]byte(f.data)) {
			return nil, fmt.Errorf("--data is not valid JSON")
		}
		opts = append(opts, fetcher.WithBody(json.RawMessage(f.data)))
	}
	return opts, nil
}

func runGet(cmd *cobra.Command, global *globalFlags, flags *getFlags, url string) error {
	opts, err := flags.requestOptions()
	if err != nil {
		return err
	}
	e, err := newEnv(cmd, global)
	if err != nil {
		return err
	}

	raw, err := fetcher.Raw(cmd.Context(), e.fetcher, url, opts...)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(e.out)
	return err
}
