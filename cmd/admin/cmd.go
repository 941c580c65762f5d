package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/term"

	"schoolboard/internal/credentials"
	"schoolboard/internal/roster"
	"schoolboard/internal/school"
	"schoolboard/internal/staff"
	"schoolboard/internal/store"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	store    store.Store
	staff    *staff.Service
	registry *credentials.Registry
	roster   *roster.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate - create the document schema")
	fmt.Fprintln(cli.out, "  addadmin -first NAME -last NAME -email EMAIL [-department DEPT] - create an admin; the password is prompted next")
	fmt.Fprintln(cli.out, "  resetpassword -type admin|teacher|student -email EMAIL [-default] - reset a user's password")
	fmt.Fprintln(cli.out, "  renumber [-check] - close gaps in grNo and rollNo numbering")
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return err
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "migrate":
		return cli.migrate(ctx)

	case "addadmin":
		cmd := cli.flagSet("addadmin")
		first := cmd.String("first", "", "The admin's first name.")
		last := cmd.String("last", "", "The admin's last name.")
		email := cmd.String("email", "", "The admin's login email.")
		dept := cmd.String("department", school.Departments[0], "The admin's department.")
		if err := cli.parse(cmd, args[2:]); err != nil {
			return err
		}
		if *first == "" || *last == "" || *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.prompt("Enter password (empty for the default):")
		if err != nil {
			return err
		}
		return cli.addAdmin(ctx, school.Admin{FirstName: *first, LastName: *last, Email: *email, Department: *dept}, pwd)

	case "resetpassword":
		cmd := cli.flagSet("resetpassword")
		typ := cmd.String("type", string(school.RoleAdmin), "The user type: admin, teacher or student.")
		email := cmd.String("email", "", "The user's email. The password will be prompted next.")
		useDefault := cmd.Bool("default", false, "Restore the default password instead of prompting.")
		if err := cli.parse(cmd, args[2:]); err != nil {
			return err
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		if *useDefault {
			return cli.resetPassword(ctx, school.Role(*typ), *email, "")
		}
		pwd, err := cli.prompt("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, school.Role(*typ), *email, pwd)

	case "renumber":
		cmd := cli.flagSet("renumber")
		check := cmd.Bool("check", false, "Only report students whose numbers are out of sequence.")
		if err := cli.parse(cmd, args[2:]); err != nil {
			return err
		}
		return cli.renumber(ctx, *check)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) prompt(msg string) (string, error) {
	fmt.Fprint(cli.out, msg)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) migrate(ctx context.Context) error {
	sqlStore, ok := cli.store.(*store.SQLStore)
	if !ok {
		fmt.Fprintln(cli.out, "memory store has no schema")
		return nil
	}
	if err := sqlStore.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "schema is up to date")
	return nil
}

func (cli *commandLine) addAdmin(ctx context.Context, a school.Admin, pwd string) error {
	created, err := cli.staff.CreateAdmin(ctx, a, nil, pwd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created admin %s (%s)\n", created.FullName(), created.ID)
	if pwd == "" {
		fmt.Fprintf(cli.out, "default password: %s\n", credentials.DeriveSecret(created.LoginName()))
	}
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, typ school.Role, email, pwd string) error {
	accounts, err := cli.registry.Accounts(ctx, typ, "")
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		if !strings.EqualFold(acc.Email, email) {
			continue
		}
		if pwd == "" {
			secret, err := cli.registry.ResetSecret(ctx, acc.ID, typ)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "password of %s reset to %s\n", acc.Name, secret)
			return nil
		}
		if err := cli.registry.SetSecret(ctx, acc.ID, typ, pwd); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "password of %s updated\n", acc.Name)
		return nil
	}
	return fmt.Errorf("no %s with email %q", typ, email)
}

func (cli *commandLine) renumber(ctx context.Context, check bool) error {
	if check {
		pending, err := cli.roster.Check(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(cli.out, "numbering is dense")
			return nil
		}
		for _, st := range pending {
			fmt.Fprintf(cli.out, "%s\t%s\tgrNo=%d rollNo=%d\n", st.ID, st.FullName, st.GRNo, st.RollNo)
		}
		return fmt.Errorf("%d students out of sequence", len(pending))
	}
	n, err := cli.roster.Repair(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "renumbered %d students\n", n)
	return nil
}
