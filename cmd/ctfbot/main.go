// Command ctfbot runs the CTF community bot
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/config"
	"github.com/weixuan0110/ctfbot/contentstore"
	"github.com/weixuan0110/ctfbot/ctftime"
	"github.com/weixuan0110/ctfbot/monitor"
	"github.com/weixuan0110/ctfbot/plugins"
	"github.com/weixuan0110/ctfbot/retry"
	"github.com/weixuan0110/ctfbot/tracker"
	"github.com/weixuan0110/ctfbot/writeup"
)

const (
	name          = "ctfbot"
	writeupsDB    = "writeups"
	gatewayIntent = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   name,
	Short: "Discord bot for CTF communities",
	Long: `ctfbot manages the channels, roles and scheduled events of CTF competitions on a Discord
server, forwards anonymous questions and publishes writeups to a GitHub repository.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and process events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.Load(configPath, envFile)
		if err != nil {
			return err
		}

		return run(v)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration without connecting",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.Load(configPath, envFile)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration valid for server [%s] with writeup backend [%s]\n", v.GetString(config.GuildIDKey), v.GetString(config.WriteupBackendKey))
		if v.GetString(config.WriteupBackendKey) != config.LevelDBBackend {
			return nil
		}

		return listStoredWriteups(cmd.OutOrStdout(), v.GetString(config.StoragePathKey))
	},
}

// listStoredWriteups prints the writeups published to the local leveldb store
func listStoredWriteups(w io.Writer, storagePath string) (err error) {
	ldb, err := contentstore.NewLevelDB(writeupsDB, storagePath)
	if err != nil {
		return err
	}
	defer ldb.Close()

	entries, err := ldb.Scan()
	if err != nil {
		return errors.Wrap(err, "failed to scan stored writeups")
	}

	paths := make([]string, 0, len(entries))
	for p := range entries {
		if !strings.HasSuffix(p, "/"+contentstore.PlaceholderFile) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	fmt.Fprintf(w, "%d writeups stored under [%s]\n", len(paths), storagePath)
	for _, p := range paths {
		fmt.Fprintf(w, "  %s\n", p)
	}

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", name, ctfbot.VERSION)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to an optional .env file")
	rootCmd.AddCommand(runCmd, checkCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(v *viper.Viper) (err error) {
	stdLogger := log.New(os.Stdout, name+": ", log.Lshortfile|log.LstdFlags)
	logger := ctfbot.NewSLogger(stdLogger, v.GetBool(config.DebugKey))

	timeLoc, err := config.GetTimeLocation(v)
	if err != nil {
		return err
	}

	timeout := v.GetDuration(config.HTTPTimeoutKey)
	policy := retry.DefaultPolicy(v.GetInt(config.RetryAttemptsKey))

	session, err := discordgo.New("Bot " + v.GetString(config.TokenKey))
	if err != nil {
		return errors.Wrap(err, "failed to create discord session")
	}
	session.Identify.Intents = gatewayIntent

	driver, err := chat.NewDriverWithTelemetry(chat.NewSession(session, v.GetString(config.GuildIDKey), chat.OptionTimeout(timeout), chat.OptionRetryPolicy(policy)), name, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	members, err := chat.NewCachingMemberFinder(v.GetInt(config.UserInfoCacheSizeKey), driver, logger)
	if err != nil {
		return err
	}

	feed, err := ctftime.NewFeedWithTelemetry(ctftime.NewClient(v.GetString(config.CtftimeBaseURLKey), timeout, ctftime.OptionRetryPolicy(policy)), name, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	store, closer, err := newContentStore(v, timeout, policy)
	if err != nil {
		return err
	}

	store, err = contentstore.NewStoreWithTelemetry(store, name, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	settings, err := plugins.NewSettings(v)
	if err != nil {
		return err
	}

	t := tracker.New(tracker.NewEpoch(time.Now().In(timeLoc).Year()), driver, logger, tracker.OptionLocation(timeLoc))
	publisher := writeup.NewPublisher(store, v.GetString(config.GithubParentFolderKey), logger)

	bot, err := ctfbot.NewBot(name, v, session, driver, ctfbot.OptionLog(stdLogger)).
		WithPlugin(plugins.NewAsker(driver, members, t, settings).Plugin).
		WithPlugin(plugins.NewEvents(driver, feed, t, settings).Plugin).
		WithPlugin(plugins.NewWriteups(driver, t, publisher, settings).Plugin).
		WithPlugin(plugins.NewYearly(t, settings).Plugin).
		WithCloser(closer).
		Build()
	if err != nil {
		return err
	}

	if addr := v.GetString(config.MetricsListenAddressKey); addr != "" {
		m := monitor.New(addr, prometheus.DefaultGatherer, logger, monitor.OptionHealthCheck(bot.Healthy))
		if err = m.Start(); err != nil {
			return err
		}
		defer m.Close()
	}

	return bot.Run()
}

// newContentStore returns the configured writeup store along with the closer releasing it, if any
func newContentStore(v *viper.Viper, timeout time.Duration, policy retry.Policy) (store contentstore.Store, closer io.Closer, err error) {
	switch v.GetString(config.WriteupBackendKey) {
	case config.LevelDBBackend:
		ldb, err := contentstore.NewLevelDB(writeupsDB, v.GetString(config.StoragePathKey))
		if err != nil {
			return nil, nil, err
		}

		return ldb, ldb, nil
	default:
		gh, err := contentstore.NewGitHub(context.Background(), v.GetString(config.GithubTokenKey), v.GetString(config.GithubOwnerKey), v.GetString(config.GithubRepoKey),
			contentstore.OptionBranch(v.GetString(config.GithubBranchKey)),
			contentstore.OptionTimeout(timeout),
			contentstore.OptionRetryPolicy(policy))
		if err != nil {
			return nil, nil, err
		}

		return gh, nil, nil
	}
}
