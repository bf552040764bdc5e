package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/profiledir/internal/identity"
	"github.com/wolfeidau/profiledir/internal/models"
)

// UsersCmd browses the public directory.
type UsersCmd struct {
	List UsersListCmd `cmd:"" help:"List users"`
	Show UsersShowCmd `cmd:"" help:"Show a user's profile"`
}

// UsersListCmd lists the directory.
type UsersListCmd struct {
	Role      string `help:"Only users with this role"`
	City      string `help:"Only users in this city"`
	Search    string `help:"Free text search"`
	Available bool   `help:"Only users available for work"`
}

func (c *UsersListCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	defer a.close()

	filter := models.UserFilter{Role: c.Role, City: c.City, Search: c.Search}
	if c.Available {
		available := true
		filter.Available = &available
	}

	users := a.client.FetchUsers(ctx, filter)

	if len(users) == 0 {
		fmt.Fprintln(globals.out(), "No users found.")
		return nil
	}

	w := tabwriter.NewWriter(globals.out(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tNAME\tROLE\tCITY\tRATING\tAVAILABLE")

	for _, user := range users {
		available := ""
		if user.IsAvailable {
			available = "*"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
			user.Username, user.DisplayName(), user.Role, user.City, user.Rating, available)
	}

	w.Flush()
	return nil
}

// UsersShowCmd shows one profile.
type UsersShowCmd struct {
	Username string `arg:"" help:"Username"`
}

func (c *UsersShowCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	defer a.close()

	// the token is optional here, an anonymous lookup is fine
	token, _ := a.store.AccessToken()

	user, err := a.client.FetchUserByUsername(ctx, c.Username, token)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return fmt.Errorf("user %q not found\n\nRun 'profiledir users list' to see available users", c.Username)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	printUser(globals.out(), user)
	return nil
}

func printUser(w io.Writer, user *models.User) {
	fmt.Fprintf(w, "Username:     %s\n", user.Username)
	fmt.Fprintf(w, "Name:         %s\n", user.DisplayName())

	if user.Email != "" {
		fmt.Fprintf(w, "Email:        %s\n", user.Email)
	}
	if user.PhoneNumber != "" {
		fmt.Fprintf(w, "Phone:        %s\n", user.PhoneNumber)
	}
	if user.City != "" {
		fmt.Fprintf(w, "City:         %s\n", user.City)
	}
	if user.Role != "" {
		fmt.Fprintf(w, "Role:         %s\n", user.Role)
	}

	fmt.Fprintf(w, "Rating:       %.1f (%s)\n", user.Rating, user.RatingBand())
	fmt.Fprintf(w, "Available:    %v\n", user.IsAvailable)

	if user.IsVIP {
		fmt.Fprintln(w, "VIP:          yes")
	}
	if skills := user.SkillList(); len(skills) > 0 {
		fmt.Fprintf(w, "Skills:       %s\n", strings.Join(skills, ", "))
	}
	if user.Desc != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, user.Desc)
		fmt.Fprintln(w)
	}
}

// ProfileCmd edits the logged in user's profile.
type ProfileCmd struct {
	Update ProfileUpdateCmd `cmd:"" help:"Update your profile"`
}

// ProfileUpdateCmd sends a partial profile edit. Only flags that are set are changed.
type ProfileUpdateCmd struct {
	FirstName   *string `help:"First name"`
	LastName    *string `help:"Last name"`
	Email       *string `help:"Email address"`
	Phone       *string `help:"Phone number"`
	City        *string `help:"City"`
	Desc        *string `help:"Short description shown on your profile"`
	Skills      *string `help:"Comma separated skills"`
	Role        *string `help:"Account role (freelancer or client)"`
	Available   bool    `help:"Show as available for work" xor:"availability"`
	Unavailable bool    `help:"Show as unavailable for work" xor:"availability"`
}

func (c *ProfileUpdateCmd) update() models.ProfileUpdate {
	update := models.ProfileUpdate{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.Phone,
		City:        c.City,
		Desc:        c.Desc,
		Skills:      c.Skills,
	}

	if c.Role != nil && *c.Role != "" {
		update.Role = c.Role
	}

	switch {
	case c.Available:
		available := true
		update.IsAvailable = &available
	case c.Unavailable:
		available := false
		update.IsAvailable = &available
	}

	return update
}

func (c *ProfileUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	update := c.update()
	if update.IsEmpty() {
		return errors.New("nothing to update\n\nRun 'profiledir profile update --help' to see the fields you can change")
	}

	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	defer a.close()

	token, err := a.sessionToken(ctx)
	if err != nil {
		return err
	}

	user, err := a.client.UpdateCurrentUser(ctx, token, update)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			if err := a.session.Logout(ctx); err != nil {
				return err
			}
		}
		return fmt.Errorf("profile update failed: %s", identity.Reason(err))
	}

	if err := a.session.UpdateUser(ctx, *user); err != nil {
		return err
	}

	fmt.Fprintln(globals.out(), "Profile updated.")
	fmt.Fprintln(globals.out())
	printUser(globals.out(), user)

	return nil
}
