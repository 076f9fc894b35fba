package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/authorization"
	"github.com/smallbiznis/storefront/internal/business"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/dnsverify"
	"github.com/smallbiznis/storefront/internal/domainbinding"
	"github.com/smallbiznis/storefront/internal/migration"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	"github.com/smallbiznis/storefront/internal/tenant"
	tenantdomain "github.com/smallbiznis/storefront/internal/tenant/domain"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log level",
			Aliases: []string{"l"},
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "warn",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "overall deadline for the command",
			Value: time.Minute,
		},
	}
}

func before(c *cli.Context) error {
	level, err := zap.ParseAtomicLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	log, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(log)
	return nil
}

// withApp builds the dependency graph for one command, fills targets and
// stops everything once fn returns.
func withApp(c *cli.Context, fn func(ctx context.Context) error, targets ...any) error {
	app := fx.New(
		fx.NopLogger,
		config.Module,
		fx.Provide(zap.L),
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		authorization.Module,
		domainbinding.Module,
		business.Module,
		tenant.Module,
		dnsverify.Module,
		fx.Populate(targets...),
	)

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}

func registerSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations",
		Action: func(c *cli.Context) error {
			var (
				conn *gorm.DB
				log  *zap.Logger
			)
			return withApp(c, func(context.Context) error {
				return migration.Migrate(conn, log)
			}, &conn, &log)
		},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "show which business a host or slug routes to",
		ArgsUsage: "<host-or-slug>",
		Action: func(c *cli.Context) error {
			host := c.Args().First()
			if host == "" {
				return errors.New("host or slug is required")
			}
			var resolver tenantdomain.Resolver
			return withApp(c, func(ctx context.Context) error {
				resolution, err := resolver.ResolveWithSource(ctx, host)
				if err != nil {
					return err
				}
				return printJSON(resolution)
			}, &resolver)
		},
	}
}

func businessCommand() *cli.Command {
	return &cli.Command{
		Name:      "business",
		Usage:     "show a business by id or slug, whatever its status",
		ArgsUsage: "<id-or-slug>",
		Action: func(c *cli.Context) error {
			ref := c.Args().First()
			if ref == "" {
				return errors.New("business id or slug is required")
			}
			var businesses businessdomain.Service
			return withApp(c, func(ctx context.Context) error {
				var (
					found businessdomain.Business
					err   error
				)
				err = businessdomain.ErrNotFound
				if id, parseErr := snowflake.ParseString(ref); parseErr == nil {
					found, err = businesses.GetByID(ctx, id)
				}
				// numeric slugs are legal, so fall back to a slug lookup
				if errors.Is(err, businessdomain.ErrNotFound) {
					found, err = businesses.GetBySlug(ctx, ref)
				}
				if err != nil {
					return err
				}
				return printJSON(found)
			}, &businesses)
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "check custom domain TXT records now",
		ArgsUsage: "[hostname]",
		Description: "With a hostname, checks that binding only. Without one, runs a single " +
			"batch of the background verifier.",
		Action: func(c *cli.Context) error {
			var verifier *dnsverify.Verifier
			return withApp(c, func(ctx context.Context) error {
				if host := c.Args().First(); host != "" {
					outcome, err := verifier.VerifyHost(ctx, host)
					if err != nil {
						return err
					}
					return printJSON(outcome)
				}
				return verifier.RunOnce(ctx)
			}, &verifier)
		},
	}
}

func grantRoleCommand() *cli.Command {
	return &cli.Command{
		Name:  "grant-role",
		Usage: "give a user a role inside a business",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "business-id", Required: true},
			&cli.StringFlag{Name: "user", Usage: "user id as forwarded in X-Actor-ID", Required: true},
			&cli.StringFlag{Name: "role", Value: authorization.RoleAdmin, Usage: "owner or admin"},
		},
		Action: func(c *cli.Context) error {
			businessID, err := snowflake.ParseString(c.String("business-id"))
			if err != nil {
				return err
			}
			var authz authorization.Service
			return withApp(c, func(ctx context.Context) error {
				return authz.GrantRole(ctx, "user:"+c.String("user"), businessID, c.String("role"))
			}, &authz)
		},
	}
}
