package cli

import (
	"context"
	"errors"
	"fmt"

	"driveguard/internal/client/api"
	"driveguard/internal/client/session"
)

func (a *App) login(ctx context.Context) {
	email, err := a.prompt("Email")
	if err != nil {
		return
	}
	password, err := a.prompt("Password")
	if err != nil {
		return
	}

	fmt.Fprintln(a.out, "Logging in...")
	result, err := a.api.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, api.ErrInvalidCredentials) {
			fmt.Fprintln(a.out, "Invalid credentials.")
		} else {
			fmt.Fprintln(a.out, "Something went wrong.")
		}
		return
	}

	profile := session.Profile{Username: result.User.Username, Email: result.User.Email}
	if err := a.session.SetSession(ctx, result.Token, profile); err != nil {
		fmt.Fprintln(a.out, "Something went wrong.")
		return
	}

	a.state = StateAuthenticated
	fmt.Fprintf(a.out, "Welcome, %s!\n", result.User.Username)
}

func (a *App) signup(ctx context.Context) {
	username, err := a.prompt("Username")
	if err != nil {
		return
	}
	email, err := a.prompt("Email")
	if err != nil {
		return
	}
	password, err := a.prompt("Password")
	if err != nil {
		return
	}

	fmt.Fprintln(a.out, "Signing up...")
	if err := a.api.Signup(ctx, username, email, password); err != nil {
		if errors.Is(err, api.ErrEmailInUse) {
			fmt.Fprintln(a.out, "Email is already in use.")
		} else {
			fmt.Fprintln(a.out, "Signup failed:", err)
		}
		return
	}

	// signup does not log the user in; they authenticate explicitly
	fmt.Fprintln(a.out, "Sign-up successful! Please log in.")
}

func (a *App) logout(ctx context.Context) {
	if err := a.session.Clear(ctx); err != nil {
		fmt.Fprintln(a.out, "Something went wrong.")
		return
	}
	a.state = StateUnauthenticated
	fmt.Fprintln(a.out, "Logged out.")
}

func (a *App) profile(ctx context.Context) {
	profile := a.session.Profile(ctx)
	username := profile.Username
	if username == "" {
		username = "Guest User"
	}
	email := profile.Email
	if email == "" {
		email = "No Email Available"
	}
	fmt.Fprintln(a.out, "Username:", username)
	fmt.Fprintln(a.out, "Email:", email)
}
