package main

import (
	"context"
	"fmt"
	"io"

	"github.com/itchan-dev/starter/frontend/internal/apiclient"
	"github.com/itchan-dev/starter/frontend/internal/dialog"
	"github.com/itchan-dev/starter/frontend/internal/fetcher"
	"github.com/itchan-dev/starter/frontend/internal/query"
	"github.com/itchan-dev/starter/frontend/internal/session"
	"github.com/itchan-dev/starter/frontend/internal/setup"
	"github.com/itchan-dev/starter/shared/config"
	"github.com/itchan-dev/starter/shared/logger"
	"github.com/spf13/cobra"
)

const defaultTokenFile = ".itchan_token"

type globalFlags struct {
	configFolder string
	tokenFile    string
	verbose      bool
}

// env is what every subcommand dispatches through.
type env struct {
	cfg     *config.Config
	session *session.File
	fetcher *fetcher.Fetcher
	out     io.Writer
	errOut  io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "fetch",
		Short:         "Send backend requests through the frontend dispatch layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&flags.configFolder, "config", "frontend/config", "path to folder with configs")
	root.PersistentFlags().StringVar(&flags.tokenFile, "token-file", defaultTokenFile, "file holding the session token")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log every dispatch")

	root.AddCommand(newGetCmd(flags), newLoginCmd(flags), newLogoutCmd(flags))
	return root
}

// wrapErr prints err to stderr once and hands it back for the exit code.
func wrapErr(cmd *cobra.Command, err error) error {
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	}
	return err
}

func newEnv(cmd *cobra.Command, flags *globalFlags) (*env, error) {
	cfg, err := config.Load(flags.configFolder)
	if err != nil {
		return nil, err
	}
	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	logger.InitializeWriter(cmd.ErrOrStderr(), level, false)

	sess := session.NewFile(flags.tokenFile)
	tr, err := setup.Transport(cfg)
	if err != nil {
		return nil, err
	}
	tr = tr.Bind(sess.Token)

	errOut := cmd.ErrOrStderr()
	dialogs := dialog.NewRegistry()
	dialogs.Register(dialog.ErrorDialogKey, func(_ context.Context, opts dialog.Options) {
		fmt.Fprintf(errOut, "[%s] %s\n", opts.Title, opts.Message)
	})

	opts := append(setup.FetcherOptions(cfg),
		fetcher.WithSession(sess),
		fetcher.WithPresenter(dialogs),
		fetcher.WithNavigator(fetcher.NavigatorFunc(func(string) {
			fmt.Fprintln(errOut, "session expired: run `fetch login` to sign in again")
		})),
	)
	return &env{
		cfg:     cfg,
		session: sess,
		fetcher: fetcher.New(tr, opts...),
		out:     cmd.OutOrStdout(),
		errOut:  errOut,
	}, nil
}

func (e *env) apiClient() *apiclient.APIClient {
	return apiclient.New(e.fetcher, query.NewClient())
}
