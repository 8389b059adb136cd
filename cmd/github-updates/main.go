package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/nanato/wp-github-updates/pkg/client"
	"github.com/nanato/wp-github-updates/pkg/updates"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

const defaultServerURL = "http://127.0.0.1:8080"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	cmd := &cobra.Command{
		Use:     "github-updates",
		Short:   "Manage GitHub hosted WordPress plugins and themes",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("server-url", "s", defaultServerURL, "the wp-github-updates server URL")
	cmd.PersistentFlags().String("admin-access-token", os.Getenv("GITHUB_UPDATES_ADMIN_ACCESS_TOKEN"), "admin access token")
	cmd.PersistentFlags().SortFlags = false

	cmd.AddCommand(
		testConnectionCmd(log),
		reposCmd(log),
		searchCmd(log),
		releasesCmd(log),
		installCmd(log),
		logsCmd(log),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Errorf("ERROR: %v", err)
		stop()
		os.Exit(1)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	serverURL := must(cmd.Flags().GetString("server-url"))
	adminAccessToken := must(cmd.Flags().GetString("admin-access-token"))
	if adminAccessToken == "" {
		return nil, errors.New("no admin access token provided")
	}
	serverURL = strings.TrimSuffix(serverURL, "/")
	if !strings.HasSuffix(serverURL, "/api/v1") {
		serverURL += "/api/v1"
	}
	return client.New(serverURL, adminAccessToken), nil
}

func testConnectionCmd(log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Test the GitHub connection of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			status, err := c.TestConnection(cmd.Context(), must(cmd.Flags().GetString("token")))
			if err != nil {
				return err
			}
			log.Info(status.Message)
			log.Infof("rate limit: %d/%d remaining, resets at %s", status.RateLimit.Remaining, status.RateLimit.Limit, status.RateLimit.Reset)
			return nil
		},
	}
	cmd.Flags().String("token", "", "test this token instead of the saved one")
	return cmd
}

func reposCmd(log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repos",
		Short: "Manage the repositories checked for updates",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			repos, err := c.Repositories(cmd.Context())
			if err != nil {
				return err
			}
			for i, r := range repos {
				fmt.Printf("%d\t%s\t%s\t%s\n", i, r.Type, r.FullName(), r.Key())
			}
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <plugin|theme> <owner/repo>",
		Short: "Register a repository for updates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := splitRepository(args[1])
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			reg := &updates.Registration{
				Type:  updates.PackageType(args[0]),
				Owner: owner,
				Name:  name,
				Slug:  must(cmd.Flags().GetString("slug")),
				File:  must(cmd.Flags().GetString("file")),
			}
			if err := c.AddRepository(cmd.Context(), reg); err != nil {
				return err
			}
			log.Infof("registered %s %s", reg.Type, reg.FullName())
			return nil
		},
	}
	addCmd.Flags().String("slug", "", "theme directory name")
	addCmd.Flags().String("file", "", "plugin main file, relative to the plugins directory")

	removeCmd := &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a registered repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			reg, err := c.RemoveRepository(cmd.Context(), index)
			if err != nil {
				return err
			}
			log.Infof("removed %s %s", reg.Type, reg.FullName())
			return nil
		},
	}

	cmd.AddCommand(listCmd, addCmd, removeCmd)
	return cmd
}

func searchCmd(_ *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search GitHub repositories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Search(cmd.Context(), strings.Join(args, " "), must(cmd.Flags().GetInt("page")), must(cmd.Flags().GetInt("per-page")))
			if err != nil {
				return err
			}
			fmt.Printf("%d repositories found\n", res.TotalCount)
			for _, r := range res.Repositories {
				fmt.Printf("%s\t%d\t%s\n", r.FullName, r.Stars, r.Description)
			}
			return nil
		},
	}
	cmd.Flags().Int("page", 1, "result page")
	cmd.Flags().Int("per-page", 30, "results per page")
	return cmd
}

func releasesCmd(_ *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "releases <owner/repo>",
		Short: "List the releases of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := splitRepository(args[0])
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			releases, err := c.Releases(cmd.Context(), owner, name)
			if err != nil {
				return err
			}
			for _, r := range releases {
				fmt.Printf("%s\t%s\t%s\n", r.Version, r.PublishedAt, r.Name)
			}
			return nil
		},
	}
}

func installCmd(log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <plugin|theme> <owner/repo>",
		Short: "Install a plugin or theme from GitHub",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, name, err := splitRepository(args[1])
			if err != nil {
				return err
			}
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Install(cmd.Context(), &updates.InstallRequest{
				Type:         updates.PackageType(args[0]),
				Owner:        owner,
				Name:         name,
				DownloadURL:  must(cmd.Flags().GetString("download-url")),
				Version:      must(cmd.Flags().GetString("version")),
				Slug:         must(cmd.Flags().GetString("slug")),
				Activate:     must(cmd.Flags().GetBool("activate")),
				AddToUpdater: must(cmd.Flags().GetBool("add-to-updater")),
			})
			if err != nil {
				return err
			}
			log.WithField("directory", res.Directory).Info(res.Message)
			return nil
		},
	}
	cmd.Flags().String("slug", "", "target directory name")
	cmd.Flags().String("download-url", "", "archive to install instead of the latest release")
	cmd.Flags().String("version", "", "tag or branch to install instead of the latest release")
	cmd.Flags().Bool("activate", false, "activate after installation")
	cmd.Flags().Bool("add-to-updater", false, "register the repository for updates")
	return cmd
}

func logsCmd(log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show or clear the activity log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			if must(cmd.Flags().GetBool("clear")) {
				if err := c.ClearLogs(cmd.Context()); err != nil {
					return err
				}
				log.Info("activity log cleared")
				return nil
			}
			entries, err := c.Logs(cmd.Context(), must(cmd.Flags().GetInt("limit")))
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s\t%s\t%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), strings.ToUpper(e.Level), e.Message)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "maximum number of entries, 0 for all")
	cmd.Flags().Bool("clear", false, "clear the activity log")
	return cmd
}

func splitRepository(fullName string) (string, string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/repo", fullName)
	}
	return owner, name, nil
}
