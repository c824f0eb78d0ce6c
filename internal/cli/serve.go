package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/brightmatter/internal/cache"
	"github.com/rcliao/brightmatter/internal/scheduler"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled pruning and cleanup until interrupted",
		Long:  "Run the maintenance scheduler in the foreground: pruning on pruning.schedule, session expiry and cache sweeps on session.cleanup_schedule.",
		Run:   runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mustApp(ctx)
	defer a.Close()

	opts := []scheduler.Option{
		scheduler.WithPruneSchedule(a.cfg.Pruning.Schedule),
		scheduler.WithCleanupSchedule(a.cfg.Session.CleanupSchedule),
		scheduler.WithSessions(a.sessions),
		scheduler.WithLogger(a.logger),
	}
	if mb, ok := a.cache.Backend().(*cache.MemoryBackend); ok {
		opts = append(opts, scheduler.WithSweeper(mb))
	}
	s, err := scheduler.New(a.memory, a.pruner, opts...)
	if err != nil {
		exitErr("serve", err)
	}

	s.Start(ctx)
	a.logger.Info("serving", "db", a.cfg.DBPath, "next_runs", s.Entries())
	<-ctx.Done()
	s.Stop()
}
