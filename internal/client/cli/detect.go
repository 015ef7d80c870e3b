package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"driveguard/internal/client/api"
)

func (a *App) detect(ctx context.Context, path string) {
	token := a.session.Token(ctx)

	fmt.Fprintln(a.out, "Processing...")
	report, err := a.api.Detect(ctx, token, path)
	if err != nil {
		if errors.Is(err, api.ErrInvalidCredentials) {
			fmt.Fprintln(a.out, "Session expired, please log in again.")
			a.logout(ctx)
			return
		}
		fmt.Fprintln(a.out, "Something went wrong.")
		return
	}

	a.printReport(report)
}

func (a *App) listReports(ctx context.Context) {
	token := a.session.Token(ctx)

	reports, err := a.api.Reports(ctx, token)
	if err != nil {
		if errors.Is(err, api.ErrInvalidCredentials) {
			fmt.Fprintln(a.out, "Session expired, please log in again.")
			a.logout(ctx)
			return
		}
		fmt.Fprintln(a.out, "Something went wrong.")
		return
	}

	if len(reports) == 0 {
		fmt.Fprintln(a.out, "No reports yet.")
		return
	}
	for _, report := range reports {
		fmt.Fprintf(a.out, "--- %s (%s)\n", report.FileName, report.CreatedAt)
		a.printReport(report)
	}
}

func (a *App) reportMedia(ctx context.Context, reportID string) {
	token := a.session.Token(ctx)

	url, err := a.api.ReportMedia(ctx, token, reportID)
	if err != nil {
		if errors.Is(err, api.ErrInvalidCredentials) {
			fmt.Fprintln(a.out, "Session expired, please log in again.")
			a.logout(ctx)
			return
		}
		fmt.Fprintln(a.out, err.Error())
		return
	}

	fmt.Fprintln(a.out, "Media link (valid for a few minutes):")
	fmt.Fprintln(a.out, url)
}

func (a *App) printReport(report api.Report) {
	if len(report.Behaviors) > 0 {
		fmt.Fprintln(a.out, "Detected behaviors:", strings.Join(report.Behaviors, ", "))
	} else {
		fmt.Fprintln(a.out, "Detected behaviors: none")
	}
	if report.Emotion != "" {
		fmt.Fprintln(a.out, "Emotional state:", report.Emotion)
	}
	fmt.Fprintf(a.out, "Drowsiness score: %.1f\n", report.Drowsiness)
}
