// Command ppcron recomputes leaderboard scores, ranks and player pp. It runs
// the stages on a schedule (ppcron run) or one at a time from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/beatrank/ppcron/config"
	"github.com/beatrank/ppcron/internal/application/command"
	"github.com/beatrank/ppcron/internal/domain/scoring"
	"github.com/beatrank/ppcron/internal/infrastructure/persistence/postgres"
	"github.com/beatrank/ppcron/internal/infrastructure/scheduler/jobs"
	"github.com/beatrank/ppcron/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FLAGS
// ══════════════════════════════════════════════════════════════════════════════

var (
	contextFlag = &cli.StringFlag{
		Name:  "context",
		Usage: "leaderboard context: general, nomods, nopause, golf or scpm",
		Value: "general",
	}
	allContextsFlag = &cli.BoolFlag{
		Name:  "all-contexts",
		Usage: "process every context; --context is ignored",
	}
	leaderboardFlag = &cli.StringFlag{
		Name:  "leaderboard",
		Usage: "restrict the run to one leaderboard id",
	}
	statusFlag = &cli.StringSliceFlag{
		Name:  "status",
		Usage: "leaderboard statuses to normalize (default from config)",
	}
	playerFlag = &cli.StringSliceFlag{
		Name:  "player",
		Usage: "restrict the run to these player ids",
	}
)

func newCLI() *cli.App {
	return &cli.App{
		Name:  "ppcron",
		Usage: "score and ranking recomputation for the leaderboard database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				EnvVars: []string{"PPCRON_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			migrateCommand(),
			{
				Name:  "refresh-scores",
				Usage: "normalize accuracy, pp and weight of stored scores",
				Flags: []cli.Flag{leaderboardFlag, statusFlag},
				Action: withApp(func(c *cli.Context, a *app) error {
					statuses, err := parseStatuses(c.StringSlice("status"))
					if err != nil {
						return err
					}
					return printResult(a.scores.Handle(c.Context, command.RefreshScoresCommand{
						LeaderboardID: c.String("leaderboard"),
						Statuses:      statuses,
					}))
				}),
			},
			{
				Name:  "refresh-leaderboard-ranks",
				Usage: "rank scores within each leaderboard",
				Flags: []cli.Flag{leaderboardFlag, contextFlag, allContextsFlag},
				Action: withApp(func(c *cli.Context, a *app) error {
					lc, err := parseContext(c)
					if err != nil {
						return err
					}
					return printResult(a.leaderboardRanks.Handle(c.Context, command.RefreshLeaderboardRanksCommand{
						LeaderboardID: c.String("leaderboard"),
						Context:       lc,
						AllContexts:   c.Bool("all-contexts"),
					}))
				}),
			},
			{
				Name:  "refresh-players-context",
				Usage: "recompute score weights and player pp totals",
				Flags: []cli.Flag{contextFlag, allContextsFlag, playerFlag},
				Action: withApp(func(c *cli.Context, a *app) error {
					lc, err := parseContext(c)
					if err != nil {
						return err
					}
					return printResult(a.playersContext.Handle(c.Context, command.RefreshPlayersContextCommand{
						Context:     lc,
						AllContexts: c.Bool("all-contexts"),
						PlayerIDs:   c.StringSlice("player"),
					}))
				}),
			},
			{
				Name:  "refresh-ranks",
				Usage: "assign global and country ranks to players",
				Flags: []cli.Flag{contextFlag, allContextsFlag},
				Action: withApp(func(c *cli.Context, a *app) error {
					lc, err := parseContext(c)
					if err != nil {
						return err
					}
					return printResult(a.ranks.Handle(c.Context, command.RefreshRanksCommand{
						Context:     lc,
						AllContexts: c.Bool("all-contexts"),
					}))
				}),
			},
			{
				Name:  "refresh-all-contexts-pp",
				Usage: "recompute the cross-context pp of every player",
				Action: withApp(func(c *cli.Context, a *app) error {
					return printResult(a.allContextsPp.Handle(c.Context))
				}),
			},
			{
				Name:  "refresh-stats",
				Usage: "recompute player score statistics",
				Flags: []cli.Flag{contextFlag, allContextsFlag, playerFlag},
				Action: withApp(func(c *cli.Context, a *app) error {
					lc, err := parseContext(c)
					if err != nil {
						return err
					}
					ids := c.StringSlice("player")
					if len(ids) == 0 {
						return printResult(a.playersStats.Handle(c.Context, command.RefreshPlayersStatsCommand{
							Context:     lc,
							AllContexts: c.Bool("all-contexts"),
						}))
					}
					if c.Bool("all-contexts") {
						return fmt.Errorf("--all-contexts cannot be combined with --player")
					}
					results := make([]*command.RefreshStatsResult, 0, len(ids))
					for _, id := range ids {
						res, err := a.stats.Handle(c.Context, command.RefreshStatsCommand{PlayerID: id, Context: lc})
						if err != nil {
							return err
						}
						results = append(results, res)
					}
					return printResult(results, nil)
				}),
			},
			{
				Name:  "recompute-all",
				Usage: "run every stage in order",
				Flags: []cli.Flag{
					statusFlag,
					&cli.BoolFlag{Name: "skip-stats", Usage: "leave player statistics out"},
				},
				Action: withApp(func(c *cli.Context, a *app) error {
					statuses, err := parseStatuses(c.StringSlice("status"))
					if err != nil {
						return err
					}
					if len(statuses) == 0 {
						if statuses, err = a.cfg.Pipeline.Statuses(); err != nil {
							return err
						}
					}
					job := jobs.NewRecomputeAllJob(a.pipeline(), jobs.RecomputeAllConfig{
						Statuses:  statuses,
						SkipStats: c.Bool("skip-stats"),
					}, a.log)
					err = job.Run(c.Context)
					if perr := printResult(job.Summary(), nil); perr != nil {
						a.log.Warn("print summary", logger.Err(perr))
					}
					return err
				}),
			},
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: withApp(func(c *cli.Context, a *app) error {
					n, err := postgres.NewMigrator(a.db, a.log).Migrate(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("applied %d migration(s)\n", n)
					return nil
				}),
			},
			{
				Name:  "down",
				Usage: "roll back the last applied migration",
				Action: withApp(func(c *cli.Context, a *app) error {
					return postgres.NewMigrator(a.db, a.log).Rollback(c.Context)
				}),
			},
			{
				Name:  "status",
				Usage: "print migration status",
				Action: withApp(func(c *cli.Context, a *app) error {
					migrations, err := postgres.NewMigrator(a.db, a.log).Status(c.Context)
					if err != nil {
						return err
					}
					for _, m := range migrations {
						state := "pending"
						if m.IsApplied {
							state = "applied " + m.AppliedAt.Format("2006-01-02 15:04:05")
						}
						fmt.Printf("%04d %-40s %s\n", m.Version, m.Name, state)
					}
					return nil
				}),
			},
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// withApp loads config, wires the app and closes it after the action.
func withApp(action func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadFile(c.String("config"))
		if err != nil {
			return err
		}
		a, err := newApp(c.Context, cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer a.close()
		return action(c, a)
	}
}

func parseContext(c *cli.Context) (scoring.Context, error) {
	if c.Bool("all-contexts") {
		return scoring.ContextGeneral, nil
	}
	return scoring.ParseContext(c.String("context"))
}

func parseStatuses(names []string) ([]scoring.DifficultyStatus, error) {
	statuses := make([]scoring.DifficultyStatus, 0, len(names))
	for _, name := range names {
		s, err := scoring.ParseStatus(name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// printResult writes a command result to stdout as indented JSON.
func printResult(result any, err error) error {
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
