package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/worktimer/internal/api"
	"github.com/goodtune/worktimer/internal/config"
	"github.com/goodtune/worktimer/internal/display"
	"github.com/goodtune/worktimer/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current attendance status from the backend",
	Long:  `Query the attendance backend once and print whether the configured user is checked in, online or offline, and the working hours so far.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	timeout := parseDuration(cfg.Backend.RequestTimeout, api.DefaultTimeout)
	client, err := api.NewClient(api.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: timeout,
	}, zerolog.Nop())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()

	status, err := client.UserStatus(ctx, cfg.Backend.UserID)
	if err != nil {
		return fmt.Errorf("failed to fetch user status: %w", err)
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed)

	_, _ = bold.Printf("User:   %s\n", cfg.Backend.UserID)

	if !status.Open() {
		_, _ = red.Println("State:  not checked in")
		return nil
	}

	state := ledger.StatusFromOnline(status.IsOnline)
	if state == ledger.StatusOnline {
		_, _ = green.Println("State:  Online")
	} else {
		_, _ = yellow.Println("State:  Offline")
	}

	if status.CheckIn != nil {
		fmt.Fprintf(os.Stdout, "Since:  %s (check-in)\n", status.CheckIn.Local().Format(time.Kitchen))
	}
	if status.LastStatusChange != nil {
		fmt.Fprintf(os.Stdout, "Change: %s\n", status.LastStatusChange.Local().Format(time.Kitchen))
	}

	if status.AttendanceID == "" {
		return nil
	}

	wh, err := client.WorkingHours(ctx, string(status.AttendanceID))
	if err != nil {
		_, _ = red.Fprintf(os.Stderr, "Could not fetch working hours: %v\n", err)
		return nil
	}

	// Backend totals already include the open segment.
	fmt.Fprintf(os.Stdout, "Worked: %s\n", display.Format(wh.TotalOnlineSeconds))
	fmt.Fprintf(os.Stdout, "Paused: %s\n", display.Format(wh.TotalOfflineSeconds))

	return nil
}
