// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"codeberg.org/oliverandrich/resumekit/internal/server"
	"codeberg.org/oliverandrich/resumekit/internal/services/account"
	"github.com/urfave/cli/v3"
)

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Delete stale passcodes, pending signups and expired email holds",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := server.Open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Services.Janitor.RunOnce(ctx)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.Root().Writer, "removed %d passcodes, %d pending signups, %d vacated emails\n",
				report.Passcodes, report.PendingSignups, report.VacatedEmails)
			return err
		},
	}
}

func deleteAccountCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-account",
		Usage: "Delete an account with all of its data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Usage:    "Email address of the account",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm the deletion",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Only report what would be deleted",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dryRun := cmd.Bool("dry-run")
			if !dryRun && !cmd.Bool("yes") {
				return errors.New("refusing to delete without --yes")
			}

			app, err := server.Open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			accounts := app.Services.Accounts
			var d *account.Deletion
			if dryRun {
				d, err = accounts.Preview(ctx, cmd.String("email"))
			} else {
				d, err = accounts.Purge(ctx, cmd.String("email"))
			}
			if err != nil {
				return err
			}
			return printDeletion(cmd.Root().Writer, d)
		},
	}
}

func printDeletion(w io.Writer, d *account.Deletion) error {
	verb := "deleted"
	if d.DryRun {
		verb = "would delete"
	}
	r := d.Records
	_, err := fmt.Fprintf(w,
		"%s account %d (%s): %d profiles, %d educations, %d experiences, %d projects, %d generated documents\n",
		verb, d.UserID, d.Email, r.Profiles, r.Educations, r.Experiences, r.Projects, r.GeneratedDocuments,
	)
	return err
}
