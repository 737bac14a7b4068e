// Package cli implements expoctl, the terminal client for expohub.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expohub/internal/auth"
	"expohub/internal/client"
	"expohub/internal/models"
)

var errSignedOut = errors.New("not signed in, run: expoctl login")

// runner carries the per-invocation state shared by every command.
type runner struct {
	v   *viper.Viper
	out io.Writer

	path      string
	session   Session
	client    *client.Client
	holder    *auth.Holder
	navigated chan string
	stop      context.CancelFunc
}

func NewRootCmd() *cobra.Command {
	r := &runner{v: viper.New()}

	root := &cobra.Command{
		Use:           "expoctl",
		Short:         "Browse and manage expohub expositions and sale ads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("url", "http://localhost:8080", "expohub server URL")
	pf.String("api-key", "", "shared API key sent in the apikey header")
	pf.String("session-file", DefaultSessionPath(), "where the session token is kept")

	r.v.SetEnvPrefix("EXPOHUB")
	r.v.AutomaticEnv()
	_ = r.v.BindPFlag("url", pf.Lookup("url"))
	_ = r.v.BindPFlag("api_key", pf.Lookup("api-key"))
	_ = r.v.BindPFlag("session_file", pf.Lookup("session-file"))

	root.AddCommand(
		r.registerCmd(), r.loginCmd(), r.logoutCmd(), r.whoamiCmd(),
		r.listCmd(), r.showCmd(), r.searchCmd(),
		r.createCmd(), r.editCmd(), r.deleteCmd(),
		r.reactCmd("like", models.Like), r.reactCmd("dislike", models.Dislike),
		r.commentCmd(), r.dashboardCmd(), r.uploadCmd(), r.unuploadCmd(),
	)
	return root
}

// run wraps a command body with session setup and teardown.
func (r *runner) run(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r.out = cmd.OutOrStdout()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := r.open(ctx); err != nil {
			return err
		}
		defer r.close()
		return fn(ctx, args)
	}
}

func (r *runner) open(ctx context.Context) error {
	r.path = r.v.GetString("session_file")
	s, err := LoadSession(r.path)
	if err != nil {
		return err
	}
	url := r.v.GetString("url")
	if s.URL != url {
		// A token issued by another server is useless here.
		s = Session{URL: url}
	}
	r.session = s

	c, err := client.New(url, client.WithAPIKey(r.v.GetString("api_key")), client.WithToken(s.Token))
	if err != nil {
		return err
	}
	r.client = c

	r.navigated = make(chan string, 1)
	r.holder = auth.NewHolder(c, auth.NavigatorFunc(func(path string) {
		select {
		case r.navigated <- path:
		default:
		}
	}))
	runCtx, stop := context.WithCancel(ctx)
	r.stop = stop
	go r.holder.Run(runCtx)
	r.holder.Init(ctx)
	return nil
}

// close persists the token when the command changed it.
func (r *runner) close() {
	r.stop()
	if tok := r.client.Token(); tok != r.session.Token {
		r.session.Token = tok
		if tok == "" {
			r.session.SetUser(nil)
		}
		if err := r.session.Save(r.path); err != nil {
			fmt.Fprintf(r.out, "warning: could not save session: %v\n", err)
		}
	}
}

func (r *runner) requireUser() (*models.User, error) {
	u := r.holder.CurrentUser()
	if u == nil {
		return nil, errSignedOut
	}
	return u, nil
}

// waitNavigation reports where the holder sent the user, if it did so promptly.
func (r *runner) waitNavigation(d time.Duration) (string, bool) {
	select {
	case p := <-r.navigated:
		return p, true
	case <-time.After(d):
		return "", false
	}
}

func categoryOf(ads bool) models.Category {
	if ads {
		return models.SaleAds
	}
	return models.Expositions
}
