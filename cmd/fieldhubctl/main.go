// cmd/fieldhubctl/main.go
//
// fieldhubctl is the operator CLI: integrity checks and account
// bootstrapping that should not require the HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/dalemusser/fieldhub/internal/app/store/audit"
	userstore "github.com/dalemusser/fieldhub/internal/app/store/users"
	"github.com/dalemusser/fieldhub/internal/app/system/assignment"
	"github.com/dalemusser/fieldhub/internal/app/system/auditlog"
	"github.com/dalemusser/fieldhub/internal/app/system/authutil"
	"github.com/dalemusser/fieldhub/internal/app/system/indexes"
	"github.com/dalemusser/fieldhub/internal/app/system/status"
	"github.com/dalemusser/fieldhub/internal/domain/models"
)

var (
	mongoURI string
	mongoDB  string
)

func main() {
	root := &cobra.Command{
		Use:          "fieldhubctl",
		Short:        "FieldHub operator tools",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&mongoURI, "mongo-uri", envOr("FIELDHUB_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	root.PersistentFlags().StringVar(&mongoDB, "mongo-database", envOr("FIELDHUB_MONGO_DATABASE", "fieldhub"), "MongoDB database name")

	root.AddCommand(newOrphansCommand())
	root.AddCommand(newSeedAdminCommand())
	root.AddCommand(newEnsureIndexesCommand())
	root.AddCommand(newAuditTailCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// connect opens the database for one command invocation.
func connect(ctx context.Context) (*mongo.Client, *mongo.Database, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return client, client.Database(mongoDB), nil
}

func newOrphansCommand() *cobra.Command {
	var (
		repair       bool
		neighborhood string
	)
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List (or repair) active workers missing a supervisor in supervised neighborhoods",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)

			neighborhoodID := primitive.NilObjectID
			if neighborhood != "" {
				id, err := primitive.ObjectIDFromHex(neighborhood)
				if err != nil {
					return fmt.Errorf("invalid --neighborhood id %q", neighborhood)
				}
				neighborhoodID = id
			}

			logger := zap.NewNop()
			balancer := assignment.New(db, logger, auditlog.New(audit.New(db), logger, auditlog.Config{Assignment: "db"}))

			orphans, err := balancer.FindOrphanWorkers(ctx, neighborhoodID)
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Println("no orphan workers found")
				return nil
			}
			for _, w := range orphans {
				fmt.Printf("%s  %-30s  neighborhood %s\n", w.ID.Hex(), w.FullName, w.NeighborhoodID.Hex())
			}
			fmt.Printf("%d orphan worker(s)\n", len(orphans))

			if !repair {
				return nil
			}
			repaired, err := balancer.RepairOrphans(ctx, assignment.Actor{Name: "fieldhubctl"}, neighborhoodID)
			if err != nil {
				return err
			}
			fmt.Printf("repaired %d worker(s)\n", repaired)
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "adopt each orphan into its neighborhood's least-loaded supervisor")
	cmd.Flags().StringVar(&neighborhood, "neighborhood", "", "restrict to one neighborhood ID")
	return cmd
}

func newSeedAdminCommand() *cobra.Command {
	var (
		loginID  string
		name     string
		password string
	)
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin account (for first-run setup)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loginID == "" || password == "" {
				return fmt.Errorf("--login-id and --password are required")
			}
			if name == "" {
				name = loginID
			}

			ctx := cmd.Context()
			client, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)

			hash, err := authutil.HashPassword(password)
			if err != nil {
				return err
			}
			u, err := userstore.New(db).Create(ctx, models.User{
				FullName:     name,
				LoginID:      loginID,
				AuthMethod:   "internal",
				PasswordHash: hash,
				Role:         "admin",
				Status:       status.Active,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created admin %s (%s)\n", u.LoginID, u.ID.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&loginID, "login-id", "", "login ID for the new admin")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the login ID)")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	return cmd
}

func newAuditTailCommand() *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "audit-tail",
		Short: "Print the most recent audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)

			events, err := audit.New(db).GetRecent(ctx, limit)
			if err != nil {
				return err
			}
			for _, e := range events {
				actor := "-"
				if e.ActorID != nil {
					actor = e.ActorID.Hex()
				}
				fmt.Printf("%s  %-12s %-24s actor %s\n",
					e.Timestamp.Format(time.RFC3339), e.Category, e.EventType, actor)
			}
			fmt.Printf("%d event(s)\n", len(events))
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 50, "number of events to print")
	return cmd
}

func newEnsureIndexesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-indexes",
		Short: "Create any missing collection indexes (also runs at server startup)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer client.Disconnect(ctx)

			if err := indexes.EnsureAll(ctx, db); err != nil {
				return err
			}
			fmt.Println("indexes up to date")
			return nil
		},
	}
}
