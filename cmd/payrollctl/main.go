// Command payrollctl drives payroll operations from the shell: run
// lifecycle transitions, period reopening, backpay previews and
// confirmed import execution. Errors go to stderr as a single JSON
// object and the process exits non-zero.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/config"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/backpay"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/importer"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/run"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

const usage = `usage: payrollctl --tenant <id> <command> [args]

commands:
  compute <run_id>                      compute a draft run
  approve <run_id>                      approve a computed run
  pay <run_id>                          settle an approved run
  reopen <period_id> [--force] [--reason <text>]
  backpay preview <employee_id> <from> <to>
  import execute <session_id>           execute a confirmed import
`

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	tenant := flag.String("tenant", "", "tenant identifier (required)")
	actor := flag.String("actor", "payrollctl", "actor recorded on audit entries")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if *tenant == "" || len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(
		store.WithTenant(context.Background(), *tenant), cfg.ComputeTimeout)
	defer cancel()

	if err := dispatch(ctx, db, args, *actor); err != nil {
		fail(err)
	}
}

func dispatch(ctx context.Context, db *gorm.DB, args []string, actor string) error {
	orch := run.New(db, nil)
	orch.Backpay = backpay.New(db)

	switch args[0] {
	case "compute":
		runID, err := argUUID(args, 1, "run_id")
		if err != nil {
			return err
		}
		return orch.Compute(ctx, runID, actor)

	case "approve":
		runID, err := argUUID(args, 1, "run_id")
		if err != nil {
			return err
		}
		return orch.Approve(ctx, runID, actor)

	case "pay":
		runID, err := argUUID(args, 1, "run_id")
		if err != nil {
			return err
		}
		return orch.ProcessPayment(ctx, runID, actor)

	case "reopen":
		return reopen(ctx, orch, args[1:], actor)

	case "backpay":
		if len(args) < 2 || args[1] != "preview" {
			return fmt.Errorf("unknown backpay command, expected: backpay preview <employee_id> <from> <to>")
		}
		return backpayPreview(ctx, db, args[2:])

	case "import":
		if len(args) < 2 || args[1] != "execute" {
			return fmt.Errorf("unknown import command, expected: import execute <session_id>")
		}
		sessionID, err := argUUID(args, 2, "session_id")
		if err != nil {
			return err
		}
		return importer.New(db, nil, nil).Execute(ctx, sessionID)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func reopen(ctx context.Context, orch *run.Orchestrator, args []string, actor string) error {
	fs := flag.NewFlagSet("reopen", flag.ContinueOnError)
	force := fs.Bool("force", false, "allow reopening PAID or CLOSED periods")
	reason := fs.String("reason", "", "reason recorded on the audit trail")
	resetRuns := fs.Bool("reset-runs", false, "demote the period's runs to draft")
	if len(args) == 0 {
		return fmt.Errorf("reopen needs a period_id")
	}
	periodID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid period_id %q", args[0])
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	return orch.Reopen(ctx, periodID, run.ReopenInput{
		Force:     *force,
		Reason:    *reason,
		ResetRuns: *resetRuns,
		Actor:     actor,
	})
}

func backpayPreview(ctx context.Context, db *gorm.DB, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("backpay preview needs <employee_id> <from> <to>")
	}
	employeeID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid employee_id %q", args[0])
	}
	from, err := time.Parse("2006-01-02", args[1])
	if err != nil {
		return fmt.Errorf("invalid from date %q, expected YYYY-MM-DD", args[1])
	}
	to, err := time.Parse("2006-01-02", args[2])
	if err != nil {
		return fmt.Errorf("invalid to date %q, expected YYYY-MM-DD", args[2])
	}

	calc, err := backpay.New(db).Calculate(ctx, backpay.CalcInput{
		EmployeeID: employeeID,
		From:       from,
		To:         to,
		Reason:     "cli preview",
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(calc)
}

func argUUID(args []string, i int, name string) (uuid.UUID, error) {
	if len(args) <= i {
		return uuid.Nil, fmt.Errorf("missing %s argument", name)
	}
	id, err := uuid.Parse(args[i])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", name, args[i])
	}
	return id, nil
}

// fail emits one JSON error object on stderr and exits non-zero.
func fail(err error) {
	log.Debug().Err(err).Msg("command failed")
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	fmt.Fprintln(os.Stderr, string(out))
	os.Exit(1)
}
