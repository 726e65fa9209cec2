package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"profilebus/internal/config"
	"profilebus/internal/database"
	"profilebus/internal/events"
	"profilebus/internal/export"
	"profilebus/internal/models"
	"profilebus/internal/profiles"
)

var errUsage = errors.New("usage")

const usage = `usage: profiles [-config PATH] COMMAND [ARGS]

commands:
  list                                 list all profiles
  get ID                               show one profile
  add -dll PATH -token NAME            create an inactive profile
  update ID [-dll PATH] [-token NAME] [-active=BOOL]
                                       update a profile (others become inactive)
  delete ID                            delete a profile
  active                               show the active profile
  submit-key [-user ID] KEY            publish a key for the active profile's token
  export PATH                          write all profiles to an .xlsx file
  backup                               snapshot the database into backup.storage_path
  ping                                 check the Redis connection and pub/sub
`

type app struct {
	cfg    *config.Config
	db     *database.DB
	svc    *profiles.Service
	out    io.Writer
	logger *zerolog.Logger
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		return a.list(ctx)
	case "get":
		return a.get(ctx, rest)
	case "add":
		return a.add(ctx, rest)
	case "update":
		return a.update(ctx, rest)
	case "delete":
		return a.delete(ctx, rest)
	case "active":
		return a.active(ctx)
	case "submit-key":
		return a.submitKey(ctx, rest)
	case "export":
		return a.export(ctx, rest)
	case "backup":
		return a.backup(ctx)
	case "ping":
		return a.ping(ctx)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (a *app) list(ctx context.Context) error {
	list, err := a.svc.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no profiles")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTIVE\tDLL PATH\tTOKEN NAME")
	for _, p := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, yesNo(p.Active), p.DLLPath, p.TokenName)
	}
	return tw.Flush()
}

func (a *app) get(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	p, err := a.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	a.printProfile(p)
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	dll := fs.String("dll", "", "PKCS#11 module path")
	token := fs.String("token", "", "token name")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	p := &models.Profile{DLLPath: *dll, TokenName: *token}
	if err := a.svc.Create(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "profile %d added\n", p.ID)
	return nil
}

func (a *app) update(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	fs := newFlagSet("update")
	dll := fs.String("dll", "", "PKCS#11 module path")
	token := fs.String("token", "", "token name")
	active := fs.Bool("active", true, "mark the profile active")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	p, err := a.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["dll"] {
		p.DLLPath = *dll
	}
	if set["token"] {
		p.TokenName = *token
	}
	p.Active = *active

	if err := a.svc.Update(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "profile %d updated\n", p.ID)
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := a.svc.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "profile %d deleted\n", id)
	return nil
}

func (a *app) active(ctx context.Context) error {
	p, err := a.svc.Active(ctx)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Fprintln(a.out, profiles.NoActiveToken)
		return nil
	}
	a.printProfile(p)
	return nil
}

func (a *app) submitKey(ctx context.Context, args []string) error {
	fs := newFlagSet("submit-key")
	user := fs.String("user", "", "submitting user id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: submit-key needs exactly one KEY", errUsage)
	}

	token, err := a.svc.SubmitKey(ctx, fs.Arg(0), *user)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "key submitted for token %s\n", token)
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: export needs a PATH", errUsage)
	}
	list, err := a.svc.List(ctx)
	if err != nil {
		return err
	}
	if err := export.ProfilesToFile(args[0], list); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "exported %d profiles to %s\n", len(list), args[0])
	return nil
}

func (a *app) backup(ctx context.Context) error {
	svc := database.NewBackupService(a.db, a.cfg.Backup, a.logger)
	path, err := svc.PerformBackup(ctx)
	if err != nil {
		return err
	}
	removed := svc.CleanupOldBackups()
	fmt.Fprintf(a.out, "backup written to %s (%d old backups removed)\n", path, removed)
	return nil
}

func (a *app) ping(ctx context.Context) error {
	conn := a.cfg.Redis.ConnOptions()
	if err := events.CheckBroker(ctx, conn, "test_channel"); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "redis at %s is reachable and pub/sub works\n", conn.Addr())
	return nil
}

func (a *app) printProfile(p *models.Profile) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", p.ID)
	fmt.Fprintf(tw, "Active:\t%s\n", yesNo(p.Active))
	fmt.Fprintf(tw, "DLL Path:\t%s\n", p.DLLPath)
	fmt.Fprintf(tw, "Token Name:\t%s\n", p.TokenName)
	_ = tw.Flush()
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%w: missing profile ID", errUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid profile ID %q", errUsage, args[0])
	}
	return id, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
