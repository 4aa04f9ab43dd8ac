package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.io/infrasutra/portfolio/internal/config"
	"github.io/infrasutra/portfolio/internal/content"
	"github.io/infrasutra/portfolio/internal/roles"
)

var rolesCycles int

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Play the role-text animation in the terminal",
	RunE:  runRoles,
}

func init() {
	rolesCmd.Flags().IntVar(&rolesCycles, "cycles", 1, "full passes over every role (0 runs until interrupted)")
}

func runRoles(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	site, err := content.Load(cfg.ContentPath)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	width := roles.Width(site.Roles)
	// One initial frame, then two ticks per entry per cycle.
	want := 1 + 2*len(site.Roles)*rolesCycles
	var mu sync.Mutex
	drawn := 0
	renderer := roles.Fade{
		Duration: cfg.Roles.Transition,
		Draw: func(f roles.Frame) {
			mu.Lock()
			defer mu.Unlock()
			line := roles.Pad(f.Text, width)
			if f.Translation != "" {
				line += "  (" + f.Translation + ")"
			}
			fmt.Fprintln(out, line)
			drawn++
			if rolesCycles > 0 && drawn >= want {
				cancel()
			}
		},
	}

	animator, err := roles.New(site.Roles, renderer, roles.WithInterval(cfg.Roles.Interval))
	if err != nil {
		return err
	}
	animator.Start(ctx)
	<-ctx.Done()
	animator.Stop()
	return nil
}
