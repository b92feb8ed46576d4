package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/expiry"
	"github.com/labtrack/labtrack-client/internal/inventory"
	"github.com/labtrack/labtrack-client/internal/material"
	"github.com/labtrack/labtrack-client/internal/outbound"
	"github.com/labtrack/labtrack-client/internal/spreadsheet"
	"github.com/labtrack/labtrack-client/pkg/config"
	"github.com/labtrack/labtrack-client/pkg/permissions"
)

var (
	errUsage       = errors.New("invalid usage")
	errFetchFailed = errors.New("request failed")
)

type command func(ctx context.Context, args []string) error

// run executes one command line. Help requested with -h is not a failure.
func (a *app) run(ctx context.Context, args []string) error {
	err := a.execute(ctx, args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func (a *app) execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usage)
		return errUsage
	}

	name, rest := args[0], args[1:]
	switch name {
	case "login":
		return a.login(ctx, rest)
	case "logout":
		a.session.Logout()
		fmt.Fprintln(a.stdout, "logged out")
		return nil
	case "whoami":
		return a.whoami()
	case "inventory":
		return a.dispatch(ctx, name, rest, map[string]command{
			"list":    a.inventoryList,
			"create":  a.inventoryCreate,
			"import":  a.inventoryImport,
			"delete":  a.inventoryDelete,
			"consume": a.inventoryConsume,
		})
	case "material":
		return a.dispatch(ctx, name, rest, map[string]command{
			"list":   a.materialList,
			"create": a.materialCreate,
			"import": a.materialImport,
			"delete": a.materialDelete,
		})
	case "outbound":
		return a.dispatch(ctx, name, rest, map[string]command{
			"mine":    a.outboundList(outbound.Mine),
			"all":     a.outboundList(outbound.All),
			"pending": a.outboundPending,
			"audit":   a.outboundAudit,
			"finish":  a.outboundFinish,
		})
	case "stats":
		return a.stats(ctx, rest)
	case "report":
		return a.report(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.stdout, usage)
		return nil
	}

	fmt.Fprint(a.stderr, usage)
	return fmt.Errorf("unknown command %q", name)
}

func (a *app) dispatch(ctx context.Context, group string, args []string, cmds map[string]command) error {
	names := make([]string, 0, len(cmds))
	for n := range cmds {
		names = append(names, n)
	}
	sort.Strings(names)

	if len(args) == 0 {
		fmt.Fprintf(a.stderr, "usage: labtrackctl %s <%s>\n", group, strings.Join(names, "|"))
		return errUsage
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		fmt.Fprintf(a.stderr, "usage: labtrackctl %s <%s>\n", group, strings.Join(names, "|"))
		return fmt.Errorf("unknown %s command %q", group, args[0])
	}
	return cmd(ctx, args[1:])
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// require mirrors the approval view's role guard. The server still decides.
func (a *app) require(permission string) error {
	user := a.session.CurrentUser()
	if user == nil {
		return errors.New("not logged in, run `labtrackctl login` first")
	}
	if !user.Can(permission) {
		return fmt.Errorf("role %s may not %s", a.session.RoleName(), strings.ReplaceAll(permission, ".", " "))
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flags("login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (defaults to $LABTRACK_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = config.GetEnv("LABTRACK_PASSWORD", "")
	}

	user, err := a.session.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "logged in as %s (%s)\n", user.Username, user.RoleName())
	return nil
}

func (a *app) whoami() error {
	user := a.session.CurrentUser()
	if user == nil {
		return errors.New("not logged in")
	}

	name := user.Username
	if user.RealName != "" {
		name = fmt.Sprintf("%s (%s)", user.RealName, user.Username)
	}
	fmt.Fprintf(a.stdout, "%s\nrole: %s\ncan approve: %t\n", name, a.session.RoleName(), user.CanApprove())
	return nil
}

func (a *app) inventoryList(ctx context.Context, args []string) error {
	fs := a.flags("inventory list")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 20, "page size")
	name := fs.String("name", "", "material name contains")
	code := fs.String("code", "", "material code")
	batch := fs.String("batch", "", "batch number")
	tier := fs.String("tier", "", "expiry tier: normal, warning, expired")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := inventory.Filter{Page: *page, PageSize: *size, MaterialName: *name, Code: *code, BatchNo: *batch}
	if *tier != "" {
		t, ok := expiry.ParseTier(*tier)
		if !ok {
			return fmt.Errorf("unknown tier %q", *tier)
		}
		f.Tier = t
	}

	mark := a.mark()
	a.inventory.Fetch(ctx, f)
	if err := a.failedSince(mark); err != nil {
		return err
	}
	printInventory(a.stdout, a.inventory.Classified())
	fmt.Fprintf(a.stdout, "total: %d\n", a.inventory.Total())
	return nil
}

func (a *app) inventoryCreate(ctx context.Context, args []string) error {
	fs := a.flags("inventory create")
	file := fs.String("file", "", "inbound workbook (.xlsx)")
	mode := fs.String("mode", string(domain.InboundAppend), "append or overwrite")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	reqs, err := spreadsheet.ReadInboundSheet(f)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return fmt.Errorf("%s contains no inbound records", *file)
	}
	for i := range reqs {
		reqs[i].Mode = domain.InboundMode(*mode)
	}

	if err := a.inventory.CreateMany(ctx, reqs); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "recorded %d inbound batches\n", len(reqs))
	return nil
}

func (a *app) inventoryImport(ctx context.Context, args []string) error {
	fs := a.flags("inventory import")
	file := fs.String("file", "", "inbound workbook (.xlsx)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.inventory.ImportFile(ctx, filepath.Base(*file), f)
	if err != nil {
		return err
	}
	printImportResult(a.stdout, res)
	return nil
}

func (a *app) inventoryDelete(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := a.inventory.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted batch %d\n", id)
	return nil
}

func (a *app) inventoryConsume(ctx context.Context, args []string) error {
	fs := a.flags("inventory consume")
	id := fs.Int64("id", 0, "inventory batch id")
	qty := fs.Int("qty", 0, "quantity to take out")
	purpose := fs.String("purpose", "", "purpose of use")
	opening := fs.String("opening", time.Now().Format(domain.DateLayout), "opening date (YYYY-MM-DD)")
	remarks := fs.String("remarks", "", "remarks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	err := a.inventory.Consume(ctx, domain.InventoryItem{ID: *id}, inventory.Consumption{
		Quantity:    *qty,
		Purpose:     *purpose,
		OpeningDate: *opening,
		Remarks:     *remarks,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "outbound request for %d unit(s) of batch %d submitted, pending approval\n", *qty, *id)
	return nil
}

func (a *app) materialList(ctx context.Context, args []string) error {
	fs := a.flags("material list")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 20, "page size")
	name := fs.String("name", "", "name contains")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mark := a.mark()
	a.materials.Fetch(ctx, material.Query{Page: *page, PageSize: *size, Name: *name})
	if err := a.failedSince(mark); err != nil {
		return err
	}
	printMaterials(a.stdout, a.materials.Materials(), a.cfg.Expiry.DefaultAlertDays)
	fmt.Fprintf(a.stdout, "total: %d\n", a.materials.Total())
	return nil
}

func (a *app) materialCreate(ctx context.Context, args []string) error {
	fs := a.flags("material create")
	req := domain.CreateMaterialRequest{}
	fs.StringVar(&req.Code, "code", "", "material code")
	fs.StringVar(&req.Name, "name", "", "material name")
	fs.StringVar(&req.Category, "category", "", "category")
	fs.StringVar(&req.Spec, "spec", "", "specification")
	fs.StringVar(&req.Unit, "unit", "", "unit")
	fs.StringVar(&req.Brand, "brand", "", "brand")
	safety := fs.Int("safety-stock", -1, "reorder threshold")
	alert := fs.Int("alert-days", -1, "expiry warning window in days")
	opened := fs.Int("opened-days", -1, "shelf life after opening in days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req.SafetyStock = optionalInt(*safety)
	req.ExpiryAlertDays = optionalInt(*alert)
	req.OpenedExpiryDays = optionalInt(*opened)

	if err := a.materials.Create(ctx, req); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "created material %s\n", req.Code)
	return nil
}

func (a *app) materialImport(ctx context.Context, args []string) error {
	fs := a.flags("material import")
	file := fs.String("file", "", "material workbook (.xlsx)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.materials.ImportFile(ctx, filepath.Base(*file), f)
	if err != nil {
		return err
	}
	printImportResult(a.stdout, res)
	return nil
}

func (a *app) materialDelete(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := a.materials.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted material %d\n", id)
	return nil
}

func (a *app) outboundList(list outbound.List) command {
	return func(ctx context.Context, args []string) error {
		fs := a.flags("outbound " + string(list))
		page := fs.Int("page", 1, "page number")
		size := fs.Int("size", 20, "page size")
		if err := fs.Parse(args); err != nil {
			return err
		}

		q := outbound.Query{Page: *page, PageSize: *size}
		mark := a.mark()
		if list == outbound.Mine {
			a.outbound.FetchMine(ctx, q)
		} else {
			a.outbound.FetchAll(ctx, q)
		}
		if err := a.failedSince(mark); err != nil {
			return err
		}
		printOutbound(a.stdout, a.outbound.Items(list))
		fmt.Fprintf(a.stdout, "total: %d\n", a.outbound.Total(list))
		return nil
	}
}

func (a *app) outboundPending(ctx context.Context, args []string) error {
	fs := a.flags("outbound pending")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", 20, "page size")
	status := fs.String("status", string(domain.ApprovalPending), "approval status: PENDING, APPROVED, REJECTED")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.require(permissions.OutboundAudit); err != nil {
		return err
	}

	s := domain.ApprovalStatus(strings.ToUpper(*status))
	if !s.Valid() {
		return fmt.Errorf("unknown approval status %q", *status)
	}

	mark := a.mark()
	a.outbound.FetchPending(ctx, outbound.Query{Page: *page, PageSize: *size, ApprovalStatus: s})
	if err := a.failedSince(mark); err != nil {
		return err
	}
	printOutbound(a.stdout, a.outbound.Items(outbound.Pending))
	fmt.Fprintf(a.stdout, "total: %d\n", a.outbound.Total(outbound.Pending))
	return nil
}

func (a *app) outboundAudit(ctx context.Context, args []string) error {
	fs := a.flags("outbound audit")
	id := fs.Int64("id", 0, "outbound request id")
	approve := fs.Bool("approve", false, "approve the request")
	reject := fs.Bool("reject", false, "reject the request")
	opinion := fs.String("opinion", "", "approval opinion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *approve == *reject {
		return errors.New("exactly one of -approve or -reject is required")
	}
	if err := a.require(permissions.OutboundAudit); err != nil {
		return err
	}

	req := domain.AuditRequest{ID: *id, Approved: *approve, Opinion: *opinion}
	if err := a.outbound.Audit(ctx, req); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "request %d %s\n", *id, req.Decision())
	return nil
}

func (a *app) outboundFinish(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := a.outbound.MarkFinished(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "request %d marked %s\n", id, domain.OutboundFinished)
	return nil
}

func (a *app) stats(ctx context.Context, args []string) error {
	fs := a.flags("stats")
	size := fs.Int("size", a.cfg.Agent.PageSize, "batches to classify when the server has no aggregate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Without an aggregate the summary is classified locally; only a failed
	// fallback fetch fails the command.
	a.dashboard.FetchStats(ctx)
	if _, ok := a.dashboard.Aggregate(); !ok {
		mark := a.mark()
		a.inventory.Fetch(ctx, inventory.Filter{Page: 1, PageSize: *size})
		if err := a.failedSince(mark); err != nil {
			return err
		}
	}

	printStats(a.stdout, a.inventory.Stats(), a.dashboard.Trend())
	return nil
}

func (a *app) report(ctx context.Context, args []string) error {
	fs := a.flags("report")
	out := fs.String("o", "inventory.xlsx", "output file")
	size := fs.Int("size", a.cfg.Agent.PageSize, "batches to export")
	tier := fs.String("tier", "", "expiry tier: normal, warning, expired")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := inventory.Filter{Page: 1, PageSize: *size}
	if *tier != "" {
		t, ok := expiry.ParseTier(*tier)
		if !ok {
			return fmt.Errorf("unknown tier %q", *tier)
		}
		f.Tier = t
	}

	mark := a.mark()
	a.inventory.Fetch(ctx, f)
	if err := a.failedSince(mark); err != nil {
		return err
	}
	items := a.inventory.Classified()
	rows := make([]spreadsheet.ReportRow, len(items))
	for i, c := range items {
		rows[i] = spreadsheet.ReportRow{Item: c.InventoryItem, Status: c.Expiry}
	}

	data, err := spreadsheet.InventoryReport(rows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "wrote %d batches to %s\n", len(rows), *out)
	return nil
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one id argument")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func optionalInt(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}
