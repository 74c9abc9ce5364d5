package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"garrison-gate/config"
	"garrison-gate/core/guard"
	"garrison-gate/core/janitor"
	"garrison-gate/core/rbac"
	"garrison-gate/core/session"
	"garrison-gate/core/store"
	"garrison-gate/core/utils"
)

func Run() {
	routesCmd := flag.NewFlagSet("routes", flag.ExitOnError)
	rolesFlag := routesCmd.String("roles", "", "comma separated roles to evaluate the route table for (empty = anonymous)")

	if len(os.Args) < 2 {
		fmt.Println("commands: sweep, routes")
		return
	}

	switch os.Args[1] {
	case "sweep":
		runSweep()
	case "routes":
		_ = routesCmd.Parse(os.Args[2:])
		printRoutes(splitRoles(*rolesFlag))
	default:
		fmt.Println("unknown command")
	}
}

// runSweep executes one janitor pass against the shared store, for
// cleaning up outside the gateway's own schedule.
func runSweep() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(db, cfg); err != nil {
		logger.Fatalf("migrations: %v", err)
	}

	jan := janitor.New(store.NewPendingAuthStore(db), store.NewVerifyEventsStore(db),
		cfg.Janitor.Schedule, cfg.EventRetention(), logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	jan.RunOnce(ctx)

	stats := jan.StatsSnapshot()
	fmt.Printf("expired pending-auth records: %d\n", stats.ExpiredPending)
	fmt.Printf("pruned events: %d\n", stats.PrunedEvents)
	if stats.LastErr != "" {
		fmt.Fprintf(os.Stderr, "sweep error: %s\n", stats.LastErr)
		os.Exit(1)
	}
}

// printRoutes evaluates the static admission table for a role set and
// prints the verdict per route.
func printRoutes(roles []string) {
	policy := rbac.NewPolicy(rbac.DefaultRoles())
	gate := guard.NewGate(rbac.NewEvaluator(policy), nil, false)

	snap := session.Snapshot{}
	if len(roles) > 0 {
		snap = session.Snapshot{
			LoggedIn: true,
			User:     &session.User{ID: 0, Email: "cli@local", Roles: roles},
			Version:  1,
		}
	}

	fmt.Printf("%-20s %-18s %s\n", "PATH", "NAME", "VERDICT")
	for _, meta := range guard.DefaultRoutes() {
		d := gate.CanEnter(meta, snap)
		verdict := "allow"
		if !d.Allowed {
			verdict = "redirect " + d.RedirectTo
		}
		fmt.Printf("%-20s %-18s %s\n", meta.Path, meta.Name, verdict)
	}
}

func splitRoles(r string) []string {
	var res []string
	for _, part := range strings.Split(r, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			res = append(res, part)
		}
	}
	return res
}
