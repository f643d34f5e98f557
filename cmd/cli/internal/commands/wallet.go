package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/upiwallet/internal/wallet"
)

type BalanceCmd struct{}

func (b *BalanceCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	if _, err := a.requireSession(); err != nil {
		return err
	}

	bal, err := a.wallet.Balance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}

	fmt.Printf("Wallet:  %d\n", bal.WalletID)
	fmt.Printf("Balance: ₹%s\n", bal.Amount.StringFixed(2))
	return nil
}

type HistoryCmd struct {
	Limit int `help:"Number of transactions to show, 0 for all" default:"20"`
}

func (h *HistoryCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	if _, err := a.requireSession(); err != nil {
		return err
	}

	txns, err := a.wallet.Transactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}
	if h.Limit > 0 && len(txns) > h.Limit {
		txns = txns[:h.Limit]
	}

	if len(txns) == 0 {
		fmt.Println("No transactions yet.")
		return nil
	}
	printTransactions(os.Stdout, txns)
	return nil
}

func printTransactions(out io.Writer, txns []wallet.Transaction) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTYPE\tAMOUNT\tCOUNTERPARTY\tSTATUS")
	for _, t := range txns {
		sign := "-"
		if t.Type == wallet.Credit {
			sign = "+"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s₹%s\t%d\t%s\n",
			t.ID,
			t.Timestamp.Local().Format("2006-01-02 15:04"),
			t.Type,
			sign, t.Amount.StringFixed(2),
			t.CounterpartyWalletID,
			t.Status,
		)
	}
	w.Flush()
}

type UPIIDCmd struct{}

func (u *UPIIDCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := newApp(ctx, globals)
	if err != nil {
		return err
	}
	if _, err := a.requireSession(); err != nil {
		return err
	}

	id, err := a.wallet.MyUPIID(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch UPI id: %w", err)
	}

	fmt.Println(id)
	return nil
}
