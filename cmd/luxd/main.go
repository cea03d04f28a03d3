// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

// luxd is the headless Lux core: the catalog, install lifecycle, auth,
// and presence machinery without the desktop shell. Each invocation
// runs one operation against the configured catalog and local state.
//
// Configuration comes from the file named by --config or the
// LUX_CONFIG environment variable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/lux-foundation/lux/lib/config"
	"github.com/lux-foundation/lux/session"
)

const usage = `Usage: luxd [flags] <command> [arguments]

Commands:
  list                        list catalog apps and install state
  detail <id>                 show the full catalog descriptor for an app
  install <id>                download, verify, and install an app
  uninstall <id>              remove an installed app
  launch <id>                 launch an installed app (waits for it to exit)
  verify <id>                 check installed files against the catalog hash
  updates <id>                report whether a newer version is published
  auth status                 show authentication state and the login URL
  auth complete <url>         finish login with the redirect URL
  auth logout                 discard the stored credential

Flags:
      --config string   path to lux.yaml (overrides LUX_CONFIG)
  -v, --verbose         enable debug logging
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("luxd", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to lux.yaml (overrides LUX_CONFIG)")
	verbose := flagSet.BoolP("verbose", "v", false, "enable debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			fmt.Print(usage)
			return nil
		}
		return err
	}
	args := flagSet.Args()
	if len(args) == 0 {
		fmt.Print(usage)
		return fmt.Errorf("a command is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	coordinator, err := session.New(session.CoordinatorConfig{Config: cfg})
	if err != nil {
		return err
	}
	defer coordinator.Close()

	ctx := context.Background()
	command, arguments := args[0], args[1:]
	switch command {
	case "list":
		return runList(ctx, coordinator)
	case "detail":
		return runDetail(ctx, coordinator, arguments)
	case "install":
		return runInstall(ctx, coordinator, arguments)
	case "uninstall":
		return withAppID("uninstall", arguments, func(id string) error {
			return coordinator.Uninstall(ctx, id)
		})
	case "launch":
		return runLaunch(ctx, coordinator, arguments)
	case "verify":
		return runVerify(ctx, coordinator, arguments)
	case "updates":
		return runUpdates(ctx, coordinator, arguments)
	case "auth":
		return runAuth(coordinator, arguments)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func withAppID(command string, arguments []string, operation func(id string) error) error {
	if len(arguments) != 1 {
		return fmt.Errorf("%s requires exactly one app id", command)
	}
	return operation(arguments[0])
}

func runList(ctx context.Context, coordinator *session.Coordinator) error {
	summaries, err := coordinator.Apps(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tINSTALLED")
	for _, summary := range summaries {
		fmt.Fprintf(writer, "%s\t%s\t%t\n", summary.ID, summary.Name, summary.Installed)
	}
	return writer.Flush()
}

func runDetail(ctx context.Context, coordinator *session.Coordinator, arguments []string) error {
	return withAppID("detail", arguments, func(id string) error {
		detail, err := coordinator.AppDetail(ctx, id)
		if err != nil {
			return err
		}
		encoded, err := json.MarshalIndent(detail, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	})
}

func runInstall(ctx context.Context, coordinator *session.Coordinator, arguments []string) error {
	return withAppID("install", arguments, func(id string) error {
		err := coordinator.Install(ctx, id, func(percent float64) {
			fmt.Fprintf(os.Stderr, "\rdownloading %s: %3.0f%%", id, percent)
		})
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		fmt.Printf("installed %s\n", id)
		return nil
	})
}

func runLaunch(ctx context.Context, coordinator *session.Coordinator, arguments []string) error {
	return withAppID("launch", arguments, func(id string) error {
		if err := coordinator.Launch(ctx, id); err != nil {
			return err
		}
		// The relay lives in this process; stay alive until the
		// launched app's relay session ends.
		if done := coordinator.RelayDone(); done != nil {
			<-done
		}
		return nil
	})
}

func runVerify(ctx context.Context, coordinator *session.Coordinator, arguments []string) error {
	return withAppID("verify", arguments, func(id string) error {
		ok, err := coordinator.VerifyFiles(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s failed file verification", id)
		}
		fmt.Printf("%s verified\n", id)
		return nil
	})
}

func runUpdates(ctx context.Context, coordinator *session.Coordinator, arguments []string) error {
	return withAppID("updates", arguments, func(id string) error {
		outdated, err := coordinator.CheckForUpdates(ctx, id)
		if err != nil {
			return err
		}
		if outdated {
			fmt.Printf("%s has an update available\n", id)
		} else {
			fmt.Printf("%s is up to date\n", id)
		}
		return nil
	})
}

func runAuth(coordinator *session.Coordinator, arguments []string) error {
	if len(arguments) == 0 {
		return fmt.Errorf("auth requires a subcommand: status, complete, logout")
	}
	switch arguments[0] {
	case "status":
		status := coordinator.StartAuth()
		if status.Authenticated {
			fmt.Println("authenticated")
		} else {
			fmt.Printf("not authenticated; log in at %s\n", status.AuthURL)
		}
		return nil
	case "complete":
		if len(arguments) != 2 {
			return fmt.Errorf("auth complete requires the redirect URL")
		}
		if err := coordinator.CompleteAuth(arguments[1]); err != nil {
			return err
		}
		fmt.Println("authenticated")
		return nil
	case "logout":
		if err := coordinator.Logout(); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil
	default:
		return fmt.Errorf("unknown auth subcommand %q", arguments[0])
	}
}
