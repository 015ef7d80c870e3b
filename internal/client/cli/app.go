// Package cli is the terminal front end: an app shell that picks the
// unauthenticated or authenticated command set from the stored session.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"driveguard/internal/client/api"
	"driveguard/internal/client/session"
)

// State is the app shell's place in its startup/auth state machine.
type State string

const (
	StateLoading         State = "loading"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

type App struct {
	api     *api.Client
	session *session.Manager
	state   State
	reader  *bufio.Reader
	out     io.Writer
}

func NewApp(apiClient *api.Client, sess *session.Manager, in io.Reader, out io.Writer) *App {
	return &App{
		api:     apiClient,
		session: sess,
		state:   StateLoading,
		reader:  bufio.NewReader(in),
		out:     out,
	}
}

// State returns the shell's current state.
func (a *App) State() State {
	return a.state
}

// Bootstrap performs the one-time startup transition out of Loading: it reads
// the stored session and lands on Authenticated or Unauthenticated. Nothing
// is printed while Loading. There is no later re-check of token validity; an
// expired token surfaces as a 401 on the first authenticated call.
func (a *App) Bootstrap(ctx context.Context) {
	if a.state != StateLoading {
		return
	}
	a.session.Load(ctx)
	if a.session.IsAuthenticated() {
		a.state = StateAuthenticated
	} else {
		a.state = StateUnauthenticated
	}
}

// Run bootstraps the shell and enters the command loop.
func (a *App) Run(ctx context.Context) {
	a.Bootstrap(ctx)
	fmt.Fprintln(a.out, "DriveGuard (type 'help' for commands)")

	for {
		fmt.Fprintf(a.out, "driveguard %s> ", a.state)
		line, err := a.reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			a.help()
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			if a.state == StateAuthenticated {
				a.dispatchAuthenticated(ctx, cmd, args)
			} else {
				a.dispatchUnauthenticated(ctx, cmd)
			}
		}
	}
}

func (a *App) help() {
	if a.state == StateAuthenticated {
		fmt.Fprintln(a.out, "Available commands: home, detect <file>, reports, media <report-id>, profile, logout, quit")
	} else {
		fmt.Fprintln(a.out, "Available commands: signup, login, quit")
	}
}

func (a *App) dispatchUnauthenticated(ctx context.Context, cmd string) {
	switch cmd {
	case "login":
		a.login(ctx)
	case "signup":
		a.signup(ctx)
	default:
		fmt.Fprintln(a.out, "Unknown command:", cmd)
	}
}

func (a *App) dispatchAuthenticated(ctx context.Context, cmd string, args []string) {
	switch cmd {
	case "home":
		a.home()
	case "detect":
		if len(args) == 0 {
			fmt.Fprintln(a.out, "Usage: detect <file>")
			return
		}
		a.detect(ctx, args[0])
	case "reports":
		a.listReports(ctx)
	case "media":
		if len(args) == 0 {
			fmt.Fprintln(a.out, "Usage: media <report-id>")
			return
		}
		a.reportMedia(ctx, args[0])
	case "profile":
		a.profile(ctx)
	case "logout":
		a.logout(ctx)
	default:
		fmt.Fprintln(a.out, "Unknown command:", cmd)
	}
}

func (a *App) home() {
	fmt.Fprintln(a.out, "Abnormal Driver Detection")
	fmt.Fprintln(a.out, "Monitoring driver behavior for safety")
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
