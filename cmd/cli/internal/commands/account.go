package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfeidau/profiledir/internal/credentials"
	"github.com/wolfeidau/profiledir/internal/identity"
	"github.com/wolfeidau/profiledir/internal/models"
)

// RegisterCmd creates an account. It does not log in.
type RegisterCmd struct {
	Username  string `arg:"" help:"Username for the new account"`
	FirstName string `help:"First name"`
	LastName  string `help:"Last name"`
	Email     string `help:"Email address"`
	Phone     string `help:"Phone number"`
	City      string `help:"City"`
	Desc      string `help:"Short description shown on your profile"`
	Skills    string `help:"Comma separated skills"`
	Role      string `help:"Account role" default:"freelancer" enum:"freelancer,client"`
	Rating    string `help:"Initial rating" default:"0"`
	Available bool   `help:"Show as available for work"`
	Password  string `help:"Password (prompted when empty)" env:"PROFILEDIR_PASSWORD"`
}

func (c *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	newUser := models.NewUser{
		Username:    strings.TrimSpace(c.Username),
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.Phone,
		City:        c.City,
		Desc:        c.Desc,
		Skills:      c.Skills,
		Role:        c.Role,
		IsAvailable: c.Available,
		Rating:      c.Rating,
		Password:    c.Password,
		Password2:   c.Password,
	}

	if newUser.Password == "" {
		var err error
		if newUser.Password, err = promptPassword(globals.out(), "Password: "); err != nil {
			return err
		}
		if newUser.Password2, err = promptPassword(globals.out(), "Confirm password: "); err != nil {
			return err
		}
	}

	if err := newUser.CheckPasswords(); err != nil {
		return err
	}

	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	defer a.close()

	user, err := a.client.Register(ctx, newUser)
	if err != nil {
		return fmt.Errorf("registration failed: %s", identity.Reason(err))
	}

	fmt.Fprintf(globals.out(), "Registered %s.\n", user.Username)
	fmt.Fprintln(globals.out())
	fmt.Fprintln(globals.out(), "To log in:")
	fmt.Fprintf(globals.out(), "  profiledir login %s\n", user.Username)

	return nil
}

// LoginCmd exchanges a username and password for a session.
type LoginCmd struct {
	Username string `arg:"" help:"Username"`
	Password string `help:"Password (prompted when empty)" env:"PROFILEDIR_PASSWORD"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password := c.Password
	if password == "" {
		var err error
		if password, err = promptPassword(globals.out(), "Password: "); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.start(ctx); err != nil {
		return err
	}

	bundle, err := a.client.Login(ctx, models.Credentials{Username: c.Username, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %s", identity.Reason(err))
	}

	if err := a.session.Login(ctx, *bundle); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	fmt.Fprintf(globals.out(), "Logged in as %s (@%s)\n", bundle.User.DisplayName(), bundle.User.Username)
	return nil
}

// LogoutCmd clears the stored session. Logout itself makes no request; a
// revalidation already in flight is awaited and its answer discarded.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.session.Start(ctx); err != nil {
		return err
	}

	if err := a.session.Logout(ctx); err != nil {
		return err
	}

	if err := a.session.Wait(ctx); err != nil {
		return err
	}

	fmt.Fprintln(globals.out(), "Logged out.")
	return nil
}

// WhoamiCmd shows the current session.
type WhoamiCmd struct {
	Wait bool `help:"Wait for the server to confirm the stored session"`
}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.session.Start(ctx); err != nil {
		return err
	}

	s := a.session.Session()
	if c.Wait || s.Status != models.StatusResolved {
		if err := a.session.Wait(ctx); err != nil {
			return err
		}
		s = a.session.Session()
	}

	w := globals.out()

	if !s.Authenticated() {
		fmt.Fprintln(w, "Not logged in.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "To log in:")
		fmt.Fprintln(w, "  profiledir login <username>")
		return nil
	}

	printUser(w, s.User)

	state := "confirmed"
	if s.Stale {
		state = "cached (not confirmed by server)"
	}
	fmt.Fprintf(w, "Session:      %s\n", state)

	if token, ok := a.session.AccessToken(); ok {
		fmt.Fprintf(w, "Token:        %s\n", credentials.Fingerprint(token))
		if info, ok := credentials.Inspect(token); ok && !info.ExpiresAt.IsZero() {
			expires := info.ExpiresAt.Format(time.RFC3339)
			if info.Expired(time.Now()) {
				expires += " (expired)"
			}
			fmt.Fprintf(w, "Expires:      %s\n", expires)
		}
	}

	return nil
}

// sessionToken returns the access token of a confirmed session.
func (a *app) sessionToken(ctx context.Context) (string, error) {
	if err := a.start(ctx); err != nil {
		return "", err
	}

	if !a.session.Session().Authenticated() {
		return "", errors.New("not logged in\n\nTo log in:\n  profiledir login <username>")
	}

	token, ok := a.session.AccessToken()
	if !ok {
		return "", errors.New("not logged in")
	}

	return token, nil
}
