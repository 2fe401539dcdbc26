package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/ibrahimkeyboad/stenaledger/internal/adapter/storage"
	"github.com/ibrahimkeyboad/stenaledger/internal/app"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/config"
	"github.com/ibrahimkeyboad/stenaledger/internal/core/domain"
)

var commands = []subcommands.Command{
	&approveCmd{},
	&declineCmd{},
	&pendingCmd{},
	&historyCmd{},
	&balanceCmd{},
}

// open is replaced in tests.
var open = func(ctx context.Context) (*app.Services, error) {
	cfg := config.LoadConfig()
	if cfg.StoreBackend == "" || cfg.StoreBackend == storage.BackendMemory {
		fmt.Fprintln(os.Stderr, "warning: STORE_BACKEND=memory, changes are not visible to the server")
	}
	return app.New(ctx, cfg, slog.Default())
}

// run opens the services, hands them to fn and maps the error to an exit status.
func run(ctx context.Context, fn func(*app.Services) error) subcommands.ExitStatus {
	s, err := open(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	if err := fn(s); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", domain.KindOf(err), err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func oneID(f *flag.FlagSet) (string, bool) {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "exactly one account id is required")
		return "", false
	}
	return f.Arg(0), true
}

var stdout io.Writer = os.Stdout

type approveCmd struct{}

func (*approveCmd) Name() string     { return "approve" }
func (*approveCmd) Synopsis() string { return "activate a pending account and credit its welcome allowance" }
func (*approveCmd) Usage() string {
	return `ledgerctl approve <account_id>

  Moves the account from PENDING to ACTIVE. Approving an active account
  does nothing.
`
}
func (*approveCmd) SetFlags(*flag.FlagSet) {}

func (*approveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, ok := oneID(f)
	if !ok {
		return subcommands.ExitUsageError
	}
	return run(ctx, func(s *app.Services) error {
		acc, err := s.Gate.Approve(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s is %s with %s\n", acc.ID, acc.Status, domain.Display(acc.Balance, s.Config.Currency))
		return nil
	})
}

type declineCmd struct{}

func (*declineCmd) Name() string     { return "decline" }
func (*declineCmd) Synopsis() string { return "remove a pending account" }
func (*declineCmd) Usage() string {
	return `ledgerctl decline <account_id>

  Deletes a PENDING account. Declining an unknown id does nothing.
`
}
func (*declineCmd) SetFlags(*flag.FlagSet) {}

func (*declineCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, ok := oneID(f)
	if !ok {
		return subcommands.ExitUsageError
	}
	return run(ctx, func(s *app.Services) error {
		if err := s.Gate.Decline(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s declined\n", id)
		return nil
	})
}

type pendingCmd struct{}

func (*pendingCmd) Name() string     { return "pending" }
func (*pendingCmd) Synopsis() string { return "list accounts awaiting approval" }
func (*pendingCmd) Usage() string {
	return `ledgerctl pending
`
}
func (*pendingCmd) SetFlags(*flag.FlagSet) {}

func (*pendingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(s *app.Services) error {
		accounts, err := s.Gate.Pending(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCELL\tSIGNED UP")
		for _, acc := range accounts {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", acc.ID, acc.Profile.Name, acc.Profile.Surname, acc.Profile.Cell, acc.CreatedAt.Format(time.DateTime))
		}
		return w.Flush()
	})
}

type historyCmd struct{}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print the ledger entries of an account" }
func (*historyCmd) Usage() string {
	return `ledgerctl history <account_id>
`
}
func (*historyCmd) SetFlags(*flag.FlagSet) {}

func (*historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, ok := oneID(f)
	if !ok {
		return subcommands.ExitUsageError
	}
	return run(ctx, func(s *app.Services) error {
		history, err := s.Coordinator.History(ctx, id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tFROM\tTO\tAMOUNT\tMESSAGE")
		for _, tx := range history {
			amount := domain.Display(tx.Amount, s.Config.Currency)
			if tx.From == id {
				amount = "-" + amount
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tx.Timestamp.Format(time.RFC3339), tx.From, tx.To, amount, tx.Message)
		}
		return w.Flush()
	})
}

type balanceCmd struct{}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "show the status and balance of an account" }
func (*balanceCmd) Usage() string {
	return `ledgerctl balance <account_id>
`
}
func (*balanceCmd) SetFlags(*flag.FlagSet) {}

func (*balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, ok := oneID(f)
	if !ok {
		return subcommands.ExitUsageError
	}
	return run(ctx, func(s *app.Services) error {
		acc, err := s.Accounts.Get(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", acc.ID, acc.Status, domain.Display(acc.Balance, s.Config.Currency))
		return nil
	})
}
