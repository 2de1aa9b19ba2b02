package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/finance"
)

// generateFees creates the fees of `month` for one class group, or for every class group when empty.
func (cli *commandLine) generateFees(month, amount, due, classGroup string) error {
	gf := finance.GenerateForm{ReferenceMonth: month, Amount: cli.conf.Finance.DefaultFeeAmount}
	if amount != "" {
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return errors.Wrapf(err, "invalid amount %q", amount)
		}
		gf.Amount = a
	}
	if due != "" {
		d, err := core.ParseDate(due)
		if err != nil {
			return errors.Wrapf(err, "invalid due date %q", due)
		}
		gf.DueDate = d
	} else if ref, err := time.Parse("2006-01", month); err == nil {
		gf.DueDate = finance.DueDate(ref.Year(), ref.Month(), cli.conf.Finance.DueDay)
	}

	classes := child.ClassGroups
	if classGroup != "" {
		classes = []string{classGroup}
	}
	total := 0
	for _, class := range classes {
		gf.ClassGroup = class
		if err := gf.Validate(cli.validate); err != nil {
			return err
		}
		n, err := cli.fees.Generate(context.Background(), gf)
		if err != nil {
			return errors.Wrapf(err, "generating fees of %s", class)
		}
		total += n
	}
	fmt.Printf("%d fees created for %s\n", total, gf.ReferenceMonth)
	return nil
}

func (cli *commandLine) exportFees(out string, filter finance.QueryFilter) error {
	filter.Clean()
	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	defer f.Close()

	n, err := cli.fees.Export(context.Background(), &filter, f)
	if err != nil {
		return err
	}
	fmt.Printf("%d fees exported to %s\n", n, out)
	return nil
}
