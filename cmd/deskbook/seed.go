package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/desk-reservations/internal/application"
)

// seedFile is the YAML layout accepted by the seed command.
//
//	users:
//	  - name: Alice
//	    email: alice@ide-tech.com
//	    admin: true
//	desks:
//	  - id: D1
//	    label: Window 1
//	    owner: alice@ide-tech.com
type seedFile struct {
	Users []seedUser `yaml:"users"`
	Desks []seedDesk `yaml:"desks"`
}

type seedUser struct {
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Admin   bool   `yaml:"admin"`
	Enabled *bool  `yaml:"enabled"`
}

type seedDesk struct {
	ID      string `yaml:"id"`
	Label   string `yaml:"label"`
	Owner   string `yaml:"owner"`
	Enabled *bool  `yaml:"enabled"`
}

type seedAdmin interface {
	UpsertUser(ctx context.Context, principal application.Principal, input application.UserInput) (application.User, error)
	UpsertDesk(ctx context.Context, principal application.Principal, input application.DeskInput) (application.Desk, error)
}

type seedDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (application.User, error)
}

var seedPrincipal = application.Principal{UserID: "deskbook-seed", IsAdmin: true}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert users and desks from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			seed, err := parseSeed(f)
			if err != nil {
				return err
			}

			cfg, logger, err := opts.bootstrap()
			if err != nil {
				return err
			}
			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			admin := application.NewAdminServiceWithLogger(store, nil, nil, logger)
			directory := application.NewDirectoryServiceWithLogger(store, nil, nil, logger)
			users, desks, err := applySeed(cmd.Context(), admin, directory, seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users and %d desks\n", users, desks)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "seed.yaml", "YAML file listing users and desks")
	return cmd
}

func parseSeed(r io.Reader) (seedFile, error) {
	var seed seedFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return seedFile{}, nil
		}
		return seedFile{}, fmt.Errorf("parse seed file: %w", err)
	}

	for i, u := range seed.Users {
		if strings.TrimSpace(u.Email) == "" {
			return seedFile{}, fmt.Errorf("parse seed file: users[%d]: email is required", i)
		}
	}
	for i, d := range seed.Desks {
		if strings.TrimSpace(d.Label) == "" {
			return seedFile{}, fmt.Errorf("parse seed file: desks[%d]: label is required", i)
		}
	}
	return seed, nil
}

// applySeed upserts users first so desk owners can be resolved by email.
func applySeed(ctx context.Context, admin seedAdmin, directory seedDirectory, seed seedFile) (int, int, error) {
	for _, u := range seed.Users {
		_, err := admin.UpsertUser(ctx, seedPrincipal, application.UserInput{
			Name:    u.Name,
			Email:   u.Email,
			Enabled: enabledOrDefault(u.Enabled),
			IsAdmin: u.Admin,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}

	for _, d := range seed.Desks {
		ownerID := ""
		if owner := strings.TrimSpace(d.Owner); owner != "" {
			user, err := directory.FindUserByEmail(ctx, owner)
			if err != nil {
				return 0, 0, fmt.Errorf("seed desk %s owner %s: %w", d.Label, owner, err)
			}
			ownerID = user.ID
		}
		_, err := admin.UpsertDesk(ctx, seedPrincipal, application.DeskInput{
			ID:          d.ID,
			Label:       d.Label,
			Enabled:     enabledOrDefault(d.Enabled),
			OwnerUserID: ownerID,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("seed desk %s: %w", d.Label, err)
		}
	}
	return len(seed.Users), len(seed.Desks), nil
}

func enabledOrDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
